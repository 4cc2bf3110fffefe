package balance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// scriptedSource returns one scripted result per call, in order.
type scriptedSource struct {
	mu      sync.Mutex
	results []scripted
	calls   int
}

type scripted struct {
	balance *Formatted
	err     error
}

func holding(raw string) *Formatted {
	return &Formatted{Symbol: "TOK", Decimals: 18, AmountRaw: raw, Amount: raw}
}

func (s *scriptedSource) FetchBalance(ctx context.Context, owner, token string) (*Formatted, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls >= len(s.results) {
		return nil, errors.New("unexpected extra fetch")
	}
	r := s.results[s.calls]
	s.calls++
	return r.balance, r.err
}

func (s *scriptedSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestReconciler(t *testing.T, src Source) *Reconciler {
	t.Helper()
	r, err := NewReconciler(src, time.Millisecond, 3, 12, nil, nil)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}
	return r
}

func TestExpectZeroSettlesOnThirdCall(t *testing.T) {
	src := &scriptedSource{results: []scripted{
		{balance: holding("5")},
		{balance: holding("5")},
		{balance: holding("0")},
	}}
	r := newTestReconciler(t, src)

	out, err := r.Reconcile(context.Background(), "0xowner", "0xtoken", Options{ExpectZero: true, MaxRetries: 3})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.State != StateSettled {
		t.Fatalf("expected settled, got %s", out.State)
	}
	if !out.Zero() {
		t.Fatalf("expected zero balance, got %+v", out.Balance)
	}
	if src.callCount() != 3 {
		t.Fatalf("expected exactly 3 fetches, got %d", src.callCount())
	}
}

func TestExpectZeroGivesUpReportingLastObserved(t *testing.T) {
	src := &scriptedSource{results: []scripted{
		{balance: holding("5")},
		{balance: holding("5")},
	}}
	r := newTestReconciler(t, src)

	out, err := r.Reconcile(context.Background(), "0xowner", "0xtoken", Options{ExpectZero: true, MaxRetries: 2})
	if err != nil {
		t.Fatalf("reconcile must not error on exhaustion: %v", err)
	}
	if out.State != StateGaveUp {
		t.Fatalf("expected gave_up, got %s", out.State)
	}
	if out.Balance == nil || out.Balance.AmountRaw != "5" {
		t.Fatalf("expected last observed balance 5, got %+v", out.Balance)
	}
	if src.callCount() != 2 {
		t.Fatalf("expected exactly 2 fetches, got %d", src.callCount())
	}
}

func TestPlainRefreshIsSingleFetch(t *testing.T) {
	src := &scriptedSource{results: []scripted{
		{balance: holding("42")},
	}}
	r := newTestReconciler(t, src)

	out, err := r.Reconcile(context.Background(), "0xowner", "0xtoken", Options{})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.State != StateSettled || out.Balance.AmountRaw != "42" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if src.callCount() != 1 {
		t.Fatalf("plain refresh must fetch once, got %d", src.callCount())
	}
}

func TestFetchFailuresConsumedSilently(t *testing.T) {
	src := &scriptedSource{results: []scripted{
		{err: errors.New("provider down")},
		{err: errors.New("provider down")},
		{balance: holding("0")},
	}}
	r := newTestReconciler(t, src)

	out, err := r.Reconcile(context.Background(), "0xowner", "0xtoken", Options{ExpectZero: true, MaxRetries: 3})
	if err != nil {
		t.Fatalf("fetch failures must not surface: %v", err)
	}
	if out.State != StateSettled {
		t.Fatalf("expected settled after recovery, got %s", out.State)
	}
}

func TestFailuresOnlyYieldsAbsentBalance(t *testing.T) {
	src := &scriptedSource{results: []scripted{
		{err: errors.New("provider down")},
		{err: errors.New("provider down")},
	}}
	r := newTestReconciler(t, src)

	out, err := r.Reconcile(context.Background(), "0xowner", "0xtoken", Options{ExpectZero: true, MaxRetries: 2})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.State != StateGaveUp || out.Balance != nil {
		t.Fatalf("expected absent balance on failures-only exhaustion, got %+v", out)
	}
}

func TestMissingRowReadsAsZero(t *testing.T) {
	src := &scriptedSource{results: []scripted{
		{balance: nil},
	}}
	r := newTestReconciler(t, src)

	out, err := r.Reconcile(context.Background(), "0xowner", "0xtoken", Options{ExpectZero: true, MaxRetries: 3})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out.State != StateSettled || !out.Zero() {
		t.Fatalf("nil row should settle as zero, got %+v", out)
	}
	if src.callCount() != 1 {
		t.Fatalf("expected single fetch, got %d", src.callCount())
	}
}

func TestConcurrentRunsCoalescePerKey(t *testing.T) {
	// A slow source that counts concurrent entries; singleflight must keep it
	// at one for the same (owner, token) pair.
	var mu sync.Mutex
	inFlight, peak, calls := 0, 0, 0
	src := sourceFunc(func(ctx context.Context, owner, token string) (*Formatted, error) {
		mu.Lock()
		inFlight++
		calls++
		if inFlight > peak {
			peak = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		return holding("0"), nil
	})
	r := newTestReconciler(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := r.Reconcile(context.Background(), "0xowner", "0xtoken", Options{ExpectZero: true})
			if err != nil || out.State != StateSettled {
				t.Errorf("reconcile: %v %+v", err, out)
			}
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if peak != 1 {
		t.Fatalf("expected at most one fetch in flight, peak=%d", peak)
	}
	if calls >= 8 {
		t.Fatalf("expected coalesced runs, got %d fetches", calls)
	}
}

type sourceFunc func(ctx context.Context, owner, token string) (*Formatted, error)

func (f sourceFunc) FetchBalance(ctx context.Context, owner, token string) (*Formatted, error) {
	return f(ctx, owner, token)
}

func TestCancelledContextSurfaces(t *testing.T) {
	src := sourceFunc(func(ctx context.Context, owner, token string) (*Formatted, error) {
		return holding("5"), nil
	})
	r := newTestReconciler(t, src)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Reconcile(ctx, "0xowner", "0xtoken", Options{ExpectZero: true, MaxRetries: 5})
	if err == nil {
		t.Fatal("expected context error for torn-down caller")
	}
}
