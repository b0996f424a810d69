package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestCacheSetPeekDelete(t *testing.T) {
	c := New(Options{TTL: 50 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	c.Set("alpha", "value")
	if val, ok := c.Peek("alpha"); !ok || val.(string) != "value" {
		t.Fatalf("expected peeked value")
	}

	c.Delete("alpha")
	if _, ok := c.Peek("alpha"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func TestCacheGetHitAndMiss(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 10}, MetricsHooks{})

	var mu sync.Mutex
	callCount := 0
	loader := func(_ context.Context, _ string) (interface{}, bool, error) {
		mu.Lock()
		defer mu.Unlock()
		callCount++
		return callCount, true, nil
	}

	val, ok, err := c.Get(context.Background(), "alpha", loader)
	if err != nil || !ok || val.(int) != 1 {
		t.Fatalf("expected first load, got val=%v ok=%v err=%v", val, ok, err)
	}

	val, ok, err = c.Get(context.Background(), "alpha", loader)
	if err != nil || !ok || val.(int) != 1 {
		t.Fatalf("expected cache hit, got val=%v ok=%v err=%v", val, ok, err)
	}

	mu.Lock()
	if callCount != 1 {
		t.Fatalf("expected exactly one upstream load, got %d", callCount)
	}
	mu.Unlock()
}

func TestCacheExpiryTriggersReload(t *testing.T) {
	c := New(Options{TTL: 10 * time.Millisecond, MaxEntries: 10}, MetricsHooks{})

	callCount := 0
	loader := func(_ context.Context, _ string) (interface{}, bool, error) {
		callCount++
		return callCount, true, nil
	}

	if _, _, err := c.Get(context.Background(), "alpha", loader); err != nil {
		t.Fatalf("first load failed: %v", err)
	}
	time.Sleep(15 * time.Millisecond)
	val, _, err := c.Get(context.Background(), "alpha", loader)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if val.(int) != 2 {
		t.Fatalf("expected reload after expiry, got %v", val)
	}
}

func TestCacheFailedLoadNotStored(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 10}, MetricsHooks{})

	errBoom := errors.New("boom")
	loader := func(_ context.Context, _ string) (interface{}, bool, error) {
		return nil, false, errBoom
	}

	if _, ok, err := c.Get(context.Background(), "neg", loader); ok || !errors.Is(err, errBoom) {
		t.Fatalf("expected load error to propagate")
	}
	if _, ok := c.Peek("neg"); ok {
		t.Fatalf("failed load must not be cached")
	}
}

func TestCacheEviction(t *testing.T) {
	c := New(Options{TTL: time.Minute, MaxEntries: 2}, MetricsHooks{})

	c.Set("a", 1)
	c.Set("b", 2)
	c.Set("c", 3)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries after eviction, got %d", c.Len())
	}
	if _, ok := c.Peek("a"); ok {
		t.Fatalf("expected oldest entry evicted")
	}
}

func TestCacheMetricsHooks(t *testing.T) {
	var hits, misses, stores int
	c := New(Options{TTL: time.Minute, MaxEntries: 10}, MetricsHooks{
		OnHit:   func(map[string]string) { hits++ },
		OnMiss:  func(map[string]string) { misses++ },
		OnStore: func(map[string]string) { stores++ },
	})

	loader := func(_ context.Context, _ string) (interface{}, bool, error) {
		return "v", true, nil
	}
	_, _, _ = c.Get(context.Background(), "k", loader)
	_, _, _ = c.Get(context.Background(), "k", loader)

	if misses != 1 || stores != 1 || hits != 1 {
		t.Fatalf("unexpected hook counts: hits=%d misses=%d stores=%d", hits, misses, stores)
	}
}
