package reports

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"telegraph/pkg/logging"
	"telegraph/pkg/pagination"
)

// BatchQuota is both the reveal batch size and the per-source fetch page
// size. Keeping them equal means one consumer page generally costs at most
// one round-trip per source.
const BatchQuota = 500

// EngineHooks are optional observation points for service metrics. Nil
// funcs are skipped.
type EngineHooks struct {
	OnFetch    func(kind Kind, cached bool, err error)
	OnFallback func()
	OnReveal   func(count int)
}

// Engine drives the multi-source merge: it refills per-source buffers in
// parallel, interleaves them by descending event time, deduplicates against
// everything already revealed, and hands out fixed-size batches. The engine
// itself is stateless; all per-consumer state lives in the Session.
type Engine struct {
	fetcher Fetcher
	cache   *QueryCache
	logger  logging.Logger
	hooks   EngineHooks
}

func NewEngine(fetcher Fetcher, cache *QueryCache, logger logging.Logger, hooks EngineHooks) *Engine {
	return &Engine{fetcher: fetcher, cache: cache, logger: logger, hooks: hooks}
}

// sourceState tracks one report kind's progress through the current query
// window: its read-ahead buffer, continuation cursor, and terminal flags.
type sourceState struct {
	kind      Kind
	buffer    []Record
	cursor    string
	started   bool
	exhausted bool
	failed    bool
	err       error
}

// settled reports whether this source can contribute nothing further
// without a window change.
func (s *sourceState) settled() bool {
	return len(s.buffer) == 0 && (s.exhausted || s.failed)
}

// Session is the per-consumer reveal state. It is owned by exactly one
// merge loop at a time; the mutex only guards against a consumer replaying
// a cursor concurrently.
type Session struct {
	ID     string
	Tenant string
	Kinds  []Kind

	mu          sync.Mutex
	window      Window
	fallbackEnd time.Time
	sources     []*sourceState
	revealed    []Record
	seen        map[string]bool
	nextBatch   int
	exhausted   bool
}

// NewSession starts a fresh reveal sequence for one query.
func NewSession(tenant string, kinds []Kind, w Window) *Session {
	sources := make([]*sourceState, 0, len(kinds))
	for _, k := range kinds {
		sources = append(sources, &sourceState{kind: k})
	}
	return &Session{
		ID:      uuid.NewString(),
		Tenant:  tenant,
		Kinds:   kinds,
		window:  w,
		sources: sources,
		seen:    make(map[string]bool),
	}
}

// NextBatchSeq is the batch sequence number the session expects next. A
// cursor carrying any other sequence is a replay or a skip.
func (s *Session) NextBatchSeq() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextBatch
}

// RevealedCount reports how many records the session has handed out.
func (s *Session) RevealedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.revealed)
}

// Batch is one reveal step: up to the quota of merged records, any
// per-source failure warnings from the fetch rounds it ran, and whether the
// session has nothing further to offer.
type Batch struct {
	Records   []Record
	Warnings  []Warning
	Exhausted bool

	// Failures carries the typed per-source errors behind Warnings so the
	// HTTP layer can pick the most specific message when nothing succeeded.
	Failures []*SourceFailure `json:"-"`
}

// AllSourcesFailed reports whether every requested source failed in the
// rounds this batch ran.
func (b *Batch) AllSourcesFailed(kinds []Kind) bool {
	if len(b.Failures) == 0 {
		return false
	}
	failed := make(map[Kind]bool, len(b.Failures))
	for _, f := range b.Failures {
		failed[f.Kind] = true
	}
	for _, k := range kinds {
		if !failed[k] {
			return false
		}
	}
	return true
}

// effectiveWindow is the window the next fetch round should query. Fallback
// rounds pull the end bound backwards; the start bound never moves.
func (s *Session) effectiveWindow() Window {
	w := s.window
	if !s.fallbackEnd.IsZero() {
		w.End = s.fallbackEnd
	}
	return w
}

// NextBatch produces the session's next reveal batch. Safe to call again
// after the session reports exhaustion; further calls return empty
// exhausted batches.
func (e *Engine) NextBatch(ctx context.Context, s *Session, limit int) (*Batch, error) {
	if limit <= 0 {
		limit = BatchQuota
	}
	if limit > pagination.MaxLimit {
		limit = pagination.MaxLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := &Batch{Records: make([]Record, 0, limit)}
	if s.exhausted {
		batch.Exhausted = true
		return batch, nil
	}

	warned := make(map[Kind]bool)

	for len(batch.Records) < limit {
		if err := e.refill(ctx, s, limit, batch, warned); err != nil {
			return nil, err
		}

		progressed := e.merge(s, limit, batch)

		if len(batch.Records) >= limit {
			break
		}
		if progressed {
			continue
		}

		// Buffers are empty and the last merge moved nothing. If any source
		// can still fetch within the current window, loop back to refill;
		// otherwise try to move the window.
		if !allSettled(s.sources) {
			continue
		}
		if !e.beginFallback(s) {
			s.exhausted = true
			break
		}
	}

	// Refills can interleave newer rows behind older ones across fallback
	// windows; re-assert the ordering invariant on every reveal.
	sortDescending(batch.Records)
	sortDescending(s.revealed)

	s.nextBatch++
	batch.Exhausted = s.exhausted
	if e.hooks.OnReveal != nil {
		e.hooks.OnReveal(len(batch.Records))
	}
	return batch, nil
}

// refill tops up, in parallel, every source whose buffer is below the batch
// quota and whose cursor is still live. A source failure is recorded on its
// state and surfaced as a batch warning, never as a fatal error.
func (e *Engine) refill(ctx context.Context, s *Session, limit int, batch *Batch, warned map[Kind]bool) error {
	w := s.effectiveWindow()

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range s.sources {
		if src.failed || src.exhausted || len(src.buffer) >= limit {
			continue
		}
		src := src
		g.Go(func() error {
			e.fetchInto(gctx, s, src, w)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, src := range s.sources {
		if src.failed && !warned[src.kind] {
			warned[src.kind] = true
			batch.Warnings = append(batch.Warnings, Warning{Kind: src.kind, Message: src.err.Error()})
			if failure, ok := src.err.(*SourceFailure); ok {
				batch.Failures = append(batch.Failures, failure)
			}
		}
	}
	return nil
}

// fetchInto performs one page fetch for one source and folds the result
// into its state. First pages of a window go through the query cache;
// continuation pages are always live.
func (e *Engine) fetchInto(ctx context.Context, s *Session, src *sourceState, w Window) {
	var (
		rows    []map[string]any
		nextKey string
		err     error
	)

	firstPage := !src.started && src.cursor == ""
	if firstPage && e.cache != nil {
		rows, nextKey, err = e.cache.FirstPage(ctx, src.kind, s.Tenant, w, func(ctx context.Context) ([]map[string]any, string, error) {
			return e.fetcher.Fetch(ctx, src.kind, s.Tenant, w, "", BatchQuota)
		})
	} else {
		rows, nextKey, err = e.fetcher.Fetch(ctx, src.kind, s.Tenant, w, src.cursor, BatchQuota)
	}

	if e.hooks.OnFetch != nil {
		e.hooks.OnFetch(src.kind, firstPage, err)
	}
	if err != nil {
		src.failed = true
		src.err = &SourceFailure{Kind: src.kind, Err: err}
		if e.logger != nil {
			e.logger.WithFields(logging.Fields{
				"kind":   string(src.kind),
				"tenant": s.Tenant,
				"error":  err.Error(),
			}).Warn("Report source failed after retries")
		}
		return
	}

	src.started = true
	src.cursor = nextKey
	if nextKey == "" {
		src.exhausted = true
	}
	if len(rows) > 0 {
		src.buffer = append(src.buffer, NormalizeRows(src.kind, rows)...)
		sortDescending(src.buffer)
	}
}

// merge drains buffer heads into the batch, newest first, until the quota
// fills or every buffer empties. Reports whether it revealed or dropped
// anything, so the caller can tell stalls from progress.
func (e *Engine) merge(s *Session, limit int, batch *Batch) bool {
	progressed := false
	for len(batch.Records) < limit {
		best := -1
		for i, src := range s.sources {
			if len(src.buffer) == 0 {
				continue
			}
			// Ties keep the earlier source, so priority follows the fixed
			// kind order rather than fetch completion timing.
			if best == -1 || src.buffer[0].newerThan(s.sources[best].buffer[0]) {
				best = i
			}
		}
		if best == -1 {
			break
		}

		src := s.sources[best]
		rec := src.buffer[0]
		src.buffer = src.buffer[1:]
		progressed = true

		// A later duplicate never counts toward the quota.
		if s.seen[rec.CallID] {
			continue
		}
		s.seen[rec.CallID] = true
		s.revealed = append(s.revealed, rec)
		batch.Records = append(batch.Records, rec)
	}
	return progressed
}

// beginFallback re-arms every source against a window ending one second
// before the oldest revealed record, compensating for upstreams whose
// cursors die before the tenant's history truly ends. Returns false when no
// further window exists, which is the session's terminal condition.
func (e *Engine) beginFallback(s *Session) bool {
	oldest := oldestEventTime(s.revealed)
	if oldest.IsZero() {
		return false
	}

	newEnd := oldest.Add(-time.Second)
	// Each fallback must strictly shrink the window or the loop would spin
	// on the same page forever.
	if !s.fallbackEnd.IsZero() && !newEnd.Before(s.fallbackEnd) {
		return false
	}
	if !s.window.End.IsZero() && !newEnd.Before(s.window.End) {
		return false
	}
	if !s.window.Start.IsZero() && !newEnd.After(s.window.Start) {
		return false
	}

	s.fallbackEnd = newEnd
	for _, src := range s.sources {
		src.cursor = ""
		src.started = false
		src.exhausted = false
		src.failed = false
		src.err = nil
	}
	if e.hooks.OnFallback != nil {
		e.hooks.OnFallback()
	}
	if e.logger != nil {
		e.logger.WithFields(logging.Fields{
			"tenant":  s.Tenant,
			"new_end": newEnd.Format(time.RFC3339),
		}).Debug("Starting fallback window round")
	}
	return true
}

func allSettled(sources []*sourceState) bool {
	for _, src := range sources {
		if !src.settled() {
			return false
		}
	}
	return true
}

// oldestEventTime returns the oldest non-zero event time among revealed
// records. Records with unknown times sort last and never anchor a
// fallback window.
func oldestEventTime(revealed []Record) time.Time {
	for i := len(revealed) - 1; i >= 0; i-- {
		if !revealed[i].EventTime.IsZero() {
			return revealed[i].EventTime
		}
	}
	return time.Time{}
}

func sortDescending(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].newerThan(records[j])
	})
}
