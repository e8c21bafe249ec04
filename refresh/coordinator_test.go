package refresh

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/michaellenahan/amazon-product-widget/events"
	"github.com/michaellenahan/amazon-product-widget/logger"
	"github.com/michaellenahan/amazon-product-widget/product"
	"github.com/michaellenahan/amazon-product-widget/staleness"
	"github.com/michaellenahan/amazon-product-widget/store"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

const day = 24 * time.Hour

var (
	testNow    = time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	testPolicy = staleness.Policy{TTL: 30 * day, RetryBackoff: time.Hour}
)

func clock() time.Time { return testNow }

func record(title string) *product.Record {
	return &product.Record{Title: title, Price: decimal.RequireFromString("19.99"), Currency: "EUR"}
}

// fakeFetcher serves a record for every key unless told otherwise
type fakeFetcher struct {
	batchSize int

	mu       sync.Mutex
	calls    [][]string
	failKeys map[string]error
	// rateLimitCall makes the nth call (1-based) fail with a rate limit
	rateLimitCall int
	// panicCall makes the nth call (1-based) panic
	panicCall int
	// block, when set, holds every call until it is closed
	block   chan struct{}
	started chan struct{}

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (f *fakeFetcher) BatchSize() int { return f.batchSize }

func (f *fakeFetcher) Fetch(_ context.Context, keys []string) (map[string]product.Result, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxInFlight.Load()
		if n <= m || f.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, slices.Clone(keys))
	call := len(f.calls)
	f.mu.Unlock()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if call == f.rateLimitCall {
		return nil, product.ErrRateLimited
	}
	if call == f.panicCall {
		panic("upstream client bug")
	}

	out := make(map[string]product.Result, len(keys))
	for _, key := range keys {
		if kind, ok := f.failKeys[key]; ok {
			out[key] = product.Failure(key, kind, nil)
			continue
		}
		out[key] = product.Result{Record: record("title " + key)}
	}
	return out, nil
}

func (f *fakeFetcher) fetchedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for _, c := range f.calls {
		keys = append(keys, c...)
	}
	return keys
}

type recordingSink struct {
	mu     sync.Mutex
	events []events.Event
}

func (s *recordingSink) Emit(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewBadger(logger.NewNop(), &store.BadgerConfig{InMemory: true}, testPolicy)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestCoordinator(t *testing.T, st store.Store, f Fetcher, sink events.Sink, concurrency int) *Coordinator {
	t.Helper()
	c, err := New(logger.NewNop(), st, f, testPolicy, sink, &Config{Concurrency: concurrency}, WithClock(clock))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func mustPut(t *testing.T, st store.Store, key string, at time.Time) {
	t.Helper()
	if err := st.Put(context.Background(), key, record("seed "+key), at); err != nil {
		t.Fatalf("seeding %s failed: %v", key, err)
	}
}

func mustGet(t *testing.T, st store.Store, key string) *product.Entry {
	t.Helper()
	e, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%s) failed: %v", key, err)
	}
	return e
}

func TestRunOnce_RefreshesOnlyOutdatedKeys(t *testing.T) {
	st := newTestStore(t)
	mustPut(t, st, "A", testNow.Add(-1*day))
	mustPut(t, st, "B", testNow.Add(-40*day))

	f := &fakeFetcher{batchSize: 10}
	sink := &recordingSink{}
	c := newTestCoordinator(t, st, f, sink, 1)

	report, err := c.RunOnce(context.Background(), []string{"A", "B", "C"}, false)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	if diff := cmp.Diff([]string{"B", "C"}, f.fetchedKeys()); diff != "" {
		t.Errorf("fetched keys mismatch (-want +got):\n%s", diff)
	}
	want := &Report{Attempted: 2, Succeeded: 2}
	if diff := cmp.Diff(want, report, cmpopts.IgnoreFields(Report{}, "Duration")); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}

	for _, key := range []string{"B", "C"} {
		e := mustGet(t, st, key)
		if e == nil || e.Record == nil || e.Record.Title != "title "+key || !e.LastRefreshedAt.Equal(testNow) {
			t.Errorf("%s not refreshed: %+v", key, e)
		}
	}
	if a := mustGet(t, st, "A"); a.Record.Title != "seed A" {
		t.Errorf("fresh key A should be untouched, got %q", a.Record.Title)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	if e := sink.events[0]; e.Name != events.NameRefreshCompleted || e.Succeeded != 2 || e.RemainingStale {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestRunOnce_NothingOutdated(t *testing.T) {
	st := newTestStore(t)
	mustPut(t, st, "A", testNow.Add(-time.Hour))
	f := &fakeFetcher{batchSize: 10}
	c := newTestCoordinator(t, st, f, nil, 1)

	report, err := c.RunOnce(context.Background(), []string{"A"}, false)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Attempted != 0 || report.RemainingStale {
		t.Errorf("unexpected report: %+v", report)
	}
	if len(f.calls) != 0 {
		t.Errorf("expected no fetches, got %d", len(f.calls))
	}
}

func TestRunOnce_ForceAll(t *testing.T) {
	st := newTestStore(t)
	mustPut(t, st, "A", testNow.Add(-time.Hour))
	f := &fakeFetcher{batchSize: 10}
	c := newTestCoordinator(t, st, f, nil, 1)

	report, err := c.RunOnce(context.Background(), []string{"B", "A", "A"}, true)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if diff := cmp.Diff([][]string{{"A", "B"}}, f.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
	if report.Succeeded != 2 {
		t.Errorf("expected 2 succeeded, got %d", report.Succeeded)
	}
}

func TestRunOnce_PartialFailure(t *testing.T) {
	st := newTestStore(t)
	mustPut(t, st, "B", testNow.Add(-40*day))
	f := &fakeFetcher{batchSize: 10, failKeys: map[string]error{"B": product.ErrNetwork}}
	c := newTestCoordinator(t, st, f, nil, 1)

	report, err := c.RunOnce(context.Background(), []string{"A", "B"}, false)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Succeeded != 1 || report.Failed != 1 || report.Attempted != 2 {
		t.Errorf("unexpected report: %+v", report)
	}

	if a := mustGet(t, st, "A"); a == nil || a.Record == nil {
		t.Error("A should have a record")
	}
	b := mustGet(t, st, "B")
	if b.Record == nil || b.Record.Title != "seed B" {
		t.Errorf("B record should be unchanged, got %+v", b.Record)
	}
	if b.FailureCount != 1 || !b.LastAttemptAt.Equal(testNow) {
		t.Errorf("B failure not recorded: %+v", b)
	}
	// B is inside its retry backoff, so nothing is left to do right now
	if report.RemainingStale {
		t.Error("expected no remaining stale data")
	}
}

func TestRunOnce_NotFoundCreatesEntry(t *testing.T) {
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 10, failKeys: map[string]error{"X": product.ErrNotFound}}
	c := newTestCoordinator(t, st, f, nil, 1)

	if _, err := c.RunOnce(context.Background(), []string{"X"}, false); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	x := mustGet(t, st, "X")
	if x == nil || x.Record != nil || x.FailureCount != 1 {
		t.Errorf("expected a failed entry without record, got %+v", x)
	}
}

func TestRunOnce_RateLimitAbortsRemainingBatches(t *testing.T) {
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 2, rateLimitCall: 2}
	c := newTestCoordinator(t, st, f, nil, 1)

	report, err := c.RunOnce(context.Background(), []string{"a", "b", "c", "d", "e", "f"}, false)
	if err != nil {
		t.Fatalf("rate limit must not be a run error: %v", err)
	}

	if len(f.calls) != 2 {
		t.Errorf("expected 2 fetch calls, got %d", len(f.calls))
	}
	want := &Report{Attempted: 4, Succeeded: 2, Deferred: 4, RateLimited: true, RemainingStale: true}
	if diff := cmp.Diff(want, report, cmpopts.IgnoreFields(Report{}, "Duration")); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	for _, key := range []string{"c", "d", "e", "f"} {
		if e := mustGet(t, st, key); e != nil {
			t.Errorf("%s should be untouched, got %+v", key, e)
		}
	}
}

func TestRunOnce_PanickingBatchIsDeferred(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 1, panicCall: 1}
	c, err := New(zap.New(core), st, f, testPolicy, nil, nil, WithClock(clock))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	report, err := c.RunOnce(context.Background(), []string{"a", "b"}, false)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	want := &Report{Attempted: 2, Succeeded: 1, Deferred: 1, RemainingStale: true}
	if diff := cmp.Diff(want, report, cmpopts.IgnoreFields(Report{}, "Duration")); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if e := mustGet(t, st, "a"); e != nil {
		t.Errorf("a should be untouched, got %+v", e)
	}
	if e := mustGet(t, st, "b"); e == nil || e.Record == nil {
		t.Errorf("b should be refreshed, got %+v", e)
	}
	if n := logs.FilterMessage("refresh batch panicked, deferring unwritten keys").Len(); n != 1 {
		t.Errorf("expected 1 panic log, got %d", n)
	}
}

func TestRunOnce_BatchPartitioning(t *testing.T) {
	tests := []struct {
		keys      int
		batchSize int
		wantCalls int
	}{
		{1, 3, 1},
		{3, 3, 1},
		{7, 3, 3},
		{10, 1, 10},
		{20, 10, 2},
	}
	for _, tt := range tests {
		st := newTestStore(t)
		f := &fakeFetcher{batchSize: tt.batchSize}
		c := newTestCoordinator(t, st, f, nil, 2)

		var keys []string
		for i := 0; i < tt.keys; i++ {
			keys = append(keys, string(rune('a'+i)))
		}
		if _, err := c.RunOnce(context.Background(), keys, true); err != nil {
			t.Fatalf("RunOnce failed: %v", err)
		}

		if len(f.calls) != tt.wantCalls {
			t.Errorf("S=%d B=%d: expected %d calls, got %d", tt.keys, tt.batchSize, tt.wantCalls, len(f.calls))
		}
		for _, call := range f.calls {
			if len(call) > tt.batchSize {
				t.Errorf("batch of %d exceeds size %d", len(call), tt.batchSize)
			}
		}
		got := f.fetchedKeys()
		slices.Sort(got)
		if diff := cmp.Diff(keys, got); diff != "" {
			t.Errorf("S=%d B=%d: fetched keys mismatch (-want +got):\n%s", tt.keys, tt.batchSize, diff)
		}
	}
}

func TestRunOnce_BoundedConcurrency(t *testing.T) {
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 1}
	c := newTestCoordinator(t, st, f, nil, 3)

	keys := []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}
	report, err := c.RunOnce(context.Background(), keys, true)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if report.Succeeded != len(keys) {
		t.Errorf("expected %d succeeded, got %d", len(keys), report.Succeeded)
	}
	if m := f.maxInFlight.Load(); m > 3 {
		t.Errorf("expected at most 3 fetches in flight, saw %d", m)
	}
}

func TestRunOnce_CancellationCompletesInFlightBatch(t *testing.T) {
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 2, block: make(chan struct{}), started: make(chan struct{}, 8)}
	c := newTestCoordinator(t, st, f, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		report *Report
		err    error
	}
	done := make(chan result, 1)
	go func() {
		r, err := c.RunOnce(ctx, []string{"a", "b", "c", "d", "e", "f"}, false)
		done <- result{r, err}
	}()

	<-f.started
	cancel()
	close(f.block)

	var res result
	select {
	case res = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish after cancellation")
	}
	if res.err != nil {
		t.Fatalf("cancellation must not be a run error: %v", res.err)
	}

	want := &Report{Attempted: 2, Succeeded: 2, Deferred: 4, Cancelled: true, RemainingStale: true}
	if diff := cmp.Diff(want, res.report, cmpopts.IgnoreFields(Report{}, "Duration")); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	for _, key := range []string{"a", "b"} {
		if e := mustGet(t, st, key); e == nil || e.Record == nil {
			t.Errorf("in-flight key %s should be written", key)
		}
	}
	for _, key := range []string{"c", "d", "e", "f"} {
		if e := mustGet(t, st, key); e != nil {
			t.Errorf("%s should not be started", key)
		}
	}
}

func TestRunOnce_AlreadyCancelled(t *testing.T) {
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 2}
	c := newTestCoordinator(t, st, f, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := c.RunOnce(ctx, []string{"a"}, false)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if !report.Cancelled || report.Attempted != 0 || len(f.calls) != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

// brokenStore fails every write
type brokenStore struct {
	store.Store
	writes atomic.Int32
}

var errDiskGone = errors.New("disk gone")

func (s *brokenStore) Put(context.Context, string, *product.Record, time.Time) error {
	s.writes.Add(1)
	return product.ErrStore("put", errDiskGone)
}

func TestRunOnce_StoreUnavailable(t *testing.T) {
	st := &brokenStore{Store: newTestStore(t)}
	f := &fakeFetcher{batchSize: 1}
	c := newTestCoordinator(t, st, f, nil, 1)

	report, err := c.RunOnce(context.Background(), []string{"a", "b", "c"}, true)
	if !errors.Is(err, product.ErrStoreUnavailable) || !errors.Is(err, errDiskGone) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if report == nil {
		t.Fatal("partial report should be returned")
	}
	if len(f.calls) != 1 || st.writes.Load() != 1 {
		t.Errorf("run should stop after the first failed write: calls=%d writes=%d", len(f.calls), st.writes.Load())
	}
	if report.Succeeded != 0 || report.Failed != 0 {
		t.Errorf("no key should be counted after a store failure: %+v", report)
	}
}

func TestRunOnce_InvalidInput(t *testing.T) {
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 2}
	c := newTestCoordinator(t, st, f, nil, 1)

	for _, keys := range [][]string{nil, {}, {"a", ""}} {
		report, err := c.RunOnce(context.Background(), keys, false)
		if !errors.Is(err, product.ErrInvalidInput) || report != nil {
			t.Errorf("keys %q: expected ErrInvalidInput, got %v, %v", keys, report, err)
		}
	}
	if len(f.calls) != 0 {
		t.Error("invalid input must not reach the fetcher")
	}
}

func TestRun_LogsUpdatedCount(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	st := newTestStore(t)
	f := &fakeFetcher{batchSize: 5}
	c, err := New(zap.New(core), st, f, testPolicy, nil, nil, WithClock(clock))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if _, err := c.Run(context.Background(), Request{CollectionID: "mats", Keys: []string{"a", "b"}}); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	entries := logs.FilterMessage("updated product data").All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["count"] != int64(2) || fields["collection_id"] != "mats" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestNew_Validation(t *testing.T) {
	st := newTestStore(t)
	tests := []struct {
		name   string
		f      Fetcher
		cfg    *Config
		policy staleness.Policy
	}{
		{"nil fetcher", nil, nil, testPolicy},
		{"zero batch size", &fakeFetcher{}, nil, testPolicy},
		{"negative concurrency", &fakeFetcher{batchSize: 1}, &Config{Concurrency: -1}, testPolicy},
		{"invalid policy", &fakeFetcher{batchSize: 1}, nil, staleness.Policy{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(logger.NewNop(), st, tt.f, tt.policy, nil, tt.cfg); err == nil {
				t.Error("expected error")
			}
		})
	}
}
