package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pointplay/internal/feed"
)

type fakeFeed struct {
	mu      sync.Mutex
	sample  feed.Sample
	has     bool
	healthy bool
}

func (f *fakeFeed) set(value float64, at time.Time) {
	f.mu.Lock()
	f.sample = feed.Sample{Value: value, ObservedAt: at}
	f.has = true
	f.healthy = true
	f.mu.Unlock()
}

func (f *fakeFeed) ObserveLatest() (feed.Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sample, f.has
}

func (f *fakeFeed) Healthy() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.healthy
}

type fakeSettler struct {
	mu     sync.Mutex
	deltas []int64
	err    error
}

func (s *fakeSettler) Settle(ctx context.Context, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deltas = append(s.deltas, delta)
	if s.err != nil {
		return 0, s.err
	}
	return 1000 + delta, nil
}

func (s *fakeSettler) calls() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.deltas))
	copy(out, s.deltas)
	return out
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

func testDirectionConfig() DirectionConfig {
	return DirectionConfig{Stake: 50, Window: 40 * time.Millisecond, Poll: 5 * time.Millisecond}
}

func TestDirectionCommit_FeedUnavailable(t *testing.T) {
	e := NewDirectionEngine(testDirectionConfig(), &fakeFeed{}, &fakeSettler{}, nil, nil)

	_, err := e.Commit(context.Background(), CommitParams{Direction: DirectionUp})
	if !errors.Is(err, ErrFeedUnavailable) {
		t.Fatalf("Commit() error = %v, want ErrFeedUnavailable", err)
	}
	if snap := e.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %v, want IDLE (no round created)", snap.State)
	}
}

func TestDirectionCommit_InvalidDirection(t *testing.T) {
	f := &fakeFeed{}
	f.set(100.00, time.Now())
	e := NewDirectionEngine(testDirectionConfig(), f, &fakeSettler{}, nil, nil)

	if _, err := e.Commit(context.Background(), CommitParams{Direction: "sideways"}); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("Commit() error = %v, want ErrInvalidDirection", err)
	}
}

func TestDirectionCommit_DuplicateRound(t *testing.T) {
	f := &fakeFeed{}
	f.set(100.00, time.Now())
	cfg := testDirectionConfig()
	cfg.Window = time.Second
	e := NewDirectionEngine(cfg, f, &fakeSettler{}, nil, nil)
	defer e.Stop()

	first, err := e.Commit(context.Background(), CommitParams{Direction: DirectionUp})
	if err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}

	_, err = e.Commit(context.Background(), CommitParams{Direction: DirectionDown})
	if !errors.Is(err, ErrDuplicateRound) {
		t.Fatalf("second Commit() error = %v, want ErrDuplicateRound", err)
	}

	snap := e.Snapshot()
	if snap.RoundID != first.RoundID || snap.State != StateResolving {
		t.Errorf("first round altered by rejected commit: %+v", snap)
	}
}

func TestDirectionResolve_WinUp(t *testing.T) {
	f := &fakeFeed{}
	f.set(100.00, time.Now())
	settler := &fakeSettler{}
	e := NewDirectionEngine(testDirectionConfig(), f, settler, nil, nil)

	if _, err := e.Commit(context.Background(), CommitParams{Direction: DirectionUp}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	f.set(105.00, time.Now())

	if !waitFor(t, time.Second, func() bool { return e.Snapshot().State == StateSettled }) {
		t.Fatal("round did not settle")
	}

	snap := e.Snapshot()
	if snap.Outcome == nil || !snap.Outcome.Won {
		t.Fatalf("outcome = %+v, want win", snap.Outcome)
	}
	if got := settler.calls(); len(got) != 1 || got[0] != 50 {
		t.Errorf("settle calls = %v, want [50]", got)
	}
}

func TestDirectionResolve_TieIsLoss(t *testing.T) {
	// Ties resolve as a loss regardless of direction.
	for _, dir := range []Direction{DirectionUp, DirectionDown} {
		t.Run(string(dir), func(t *testing.T) {
			f := &fakeFeed{}
			f.set(100.00, time.Now())
			settler := &fakeSettler{}
			e := NewDirectionEngine(testDirectionConfig(), f, settler, nil, nil)

			if _, err := e.Commit(context.Background(), CommitParams{Direction: dir}); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}
			f.set(100.00, time.Now())

			if !waitFor(t, time.Second, func() bool { return e.Snapshot().State == StateSettled }) {
				t.Fatal("round did not settle")
			}

			snap := e.Snapshot()
			if snap.Outcome == nil || snap.Outcome.Won {
				t.Fatalf("outcome = %+v, want loss on tie", snap.Outcome)
			}
			if got := settler.calls(); len(got) != 1 || got[0] != -50 {
				t.Errorf("settle calls = %v, want [-50]", got)
			}
		})
	}
}

func TestDirectionResolve_DeferredWithoutFreshSample(t *testing.T) {
	f := &fakeFeed{}
	f.set(100.00, time.Now())
	settler := &fakeSettler{}
	e := NewDirectionEngine(testDirectionConfig(), f, settler, nil, nil)

	if _, err := e.Commit(context.Background(), CommitParams{Direction: DirectionUp}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	// No fresh sample arrives; the window expires but the round must
	// not be force-resolved on the stale commit-time price.
	if !waitFor(t, time.Second, func() bool { return e.Snapshot().Stalled }) {
		t.Fatal("round never surfaced as stalled")
	}
	if snap := e.Snapshot(); snap.State != StateResolving {
		t.Fatalf("state = %v, want RESOLVING while deferred", snap.State)
	}
	if got := settler.calls(); len(got) != 0 {
		t.Fatalf("settle calls = %v, want none while deferred", got)
	}

	// A late sample resolves the round on the next tick.
	f.set(104.00, time.Now())
	if !waitFor(t, time.Second, func() bool { return e.Snapshot().State == StateSettled }) {
		t.Fatal("round did not settle after feed recovered")
	}
	if snap := e.Snapshot(); snap.Outcome == nil || !snap.Outcome.Won {
		t.Errorf("outcome = %+v, want win after recovery", e.Snapshot().Outcome)
	}
}

func TestDirectionCancel(t *testing.T) {
	f := &fakeFeed{}
	f.set(100.00, time.Now())
	settler := &fakeSettler{}
	cfg := testDirectionConfig()
	cfg.Window = time.Second
	e := NewDirectionEngine(cfg, f, settler, nil, nil)

	if _, err := e.Commit(context.Background(), CommitParams{Direction: DirectionUp}); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if err := e.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if snap := e.Snapshot(); snap.State != StateCancelled {
		t.Errorf("state = %v, want CANCELLED", snap.State)
	}
	if got := settler.calls(); len(got) != 0 {
		t.Errorf("settle calls = %v, want none on cancel", got)
	}
}

func TestDirectionCashOut_Unsupported(t *testing.T) {
	e := NewDirectionEngine(testDirectionConfig(), &fakeFeed{}, &fakeSettler{}, nil, nil)
	if _, err := e.CashOut(context.Background()); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("CashOut() error = %v, want ErrUnsupportedAction", err)
	}
}
