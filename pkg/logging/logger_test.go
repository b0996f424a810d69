package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewLoggerWithService(t *testing.T) {
	l := NewLoggerWithService("telegraph")
	entry := l.WithField("k", "v")
	if entry == nil {
		t.Fatalf("expected non-nil entry")
	}
}

func TestServiceFieldInOutput(t *testing.T) {
	l := NewLoggerWithService("telegraph")
	var buf bytes.Buffer
	l.SetOutput(&buf)
	l.Info("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if line["service"] != "telegraph" {
		t.Fatalf("expected service field, got %v", line["service"])
	}
}
