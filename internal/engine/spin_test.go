package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeGate struct {
	mu        sync.Mutex
	allowed   bool
	remaining time.Duration
	err       error
	recorded  []time.Time
}

func (g *fakeGate) IsAllowed(ctx context.Context, key string) (bool, time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.allowed, g.remaining, g.err
}

func (g *fakeGate) RecordPlay(ctx context.Context, key string, at time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorded = append(g.recorded, at)
	return nil
}

func (g *fakeGate) plays() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.recorded)
}

func testSpinConfig() SpinConfig {
	return SpinConfig{Prizes: SpinPrizes, Steps: 4, StepInterval: 5 * time.Millisecond}
}

func TestSpinCommit_CooldownActive(t *testing.T) {
	gate := &fakeGate{allowed: false, remaining: 3 * time.Hour}
	settler := &fakeSettler{}
	e := NewSpinEngine(testSpinConfig(), &stubSource{values: []float64{0}}, settler, nil, nil, gate)

	_, err := e.Commit(context.Background(), CommitParams{})
	var cd *CooldownActiveError
	if !errors.As(err, &cd) {
		t.Fatalf("Commit() error = %v, want CooldownActiveError", err)
	}
	if cd.Remaining != 3*time.Hour {
		t.Errorf("remaining = %v, want 3h", cd.Remaining)
	}
	if snap := e.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %v, want IDLE (no round created)", snap.State)
	}
	if gate.plays() != 0 {
		t.Error("rejected commit must not record a play")
	}
	if got := settler.calls(); len(got) != 0 {
		t.Errorf("settle calls = %v, want none", got)
	}
}

func TestSpinCommit_RandomnessFault(t *testing.T) {
	gate := &fakeGate{allowed: true}
	e := NewSpinEngine(testSpinConfig(), &stubSource{err: errors.New("entropy exhausted")}, &fakeSettler{}, nil, nil, gate)

	if _, err := e.Commit(context.Background(), CommitParams{}); !errors.Is(err, ErrRandomness) {
		t.Fatalf("Commit() error = %v, want ErrRandomness", err)
	}
	if snap := e.Snapshot(); snap.State != StateIdle {
		t.Errorf("state = %v, want IDLE after draw failure", snap.State)
	}
	if gate.plays() != 0 {
		t.Error("failed draw must not record a play")
	}
}

func TestSpinResolve_SettlesDrawnPrize(t *testing.T) {
	gate := &fakeGate{allowed: true}
	settler := &fakeSettler{}
	// A zero draw selects the first prize in the set.
	e := NewSpinEngine(testSpinConfig(), &stubSource{values: []float64{0}}, settler, nil, nil, gate)

	snap, err := e.Commit(context.Background(), CommitParams{})
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if snap.State != StateResolving {
		t.Fatalf("commit snapshot state = %v, want RESOLVING", snap.State)
	}
	if gate.plays() != 1 {
		t.Fatalf("plays recorded = %d, want 1 at commit", gate.plays())
	}

	if !waitFor(t, time.Second, func() bool { return e.Snapshot().State == StateSettled }) {
		t.Fatal("spin did not settle")
	}

	final := e.Snapshot()
	if final.Outcome == nil || !final.Outcome.Won || final.Outcome.Prize != 20 {
		t.Fatalf("outcome = %+v, want prize 20", final.Outcome)
	}
	if got := settler.calls(); len(got) != 1 || got[0] != 20 {
		t.Errorf("settle calls = %v, want [20]", got)
	}
}

func TestSpinCommit_DuplicateRound(t *testing.T) {
	gate := &fakeGate{allowed: true}
	cfg := testSpinConfig()
	cfg.Steps = 200
	e := NewSpinEngine(cfg, &stubSource{values: []float64{0}}, &fakeSettler{}, nil, nil, gate)
	defer e.Stop()

	if _, err := e.Commit(context.Background(), CommitParams{}); err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	if _, err := e.Commit(context.Background(), CommitParams{}); !errors.Is(err, ErrDuplicateRound) {
		t.Fatalf("second Commit() error = %v, want ErrDuplicateRound", err)
	}
	if gate.plays() != 1 {
		t.Errorf("plays recorded = %d, want 1", gate.plays())
	}
}

func TestSpinCancel_NoSettlement(t *testing.T) {
	gate := &fakeGate{allowed: true}
	settler := &fakeSettler{}
	cfg := testSpinConfig()
	cfg.Steps = 200
	e := NewSpinEngine(cfg, &stubSource{values: []float64{0}}, settler, nil, nil, gate)

	if _, err := e.Commit(context.Background(), CommitParams{}); err != nil {
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
	// The play stays recorded; cancelling does not refund the cooldown.
	if gate.plays() != 1 {
		t.Errorf("plays recorded = %d, want 1", gate.plays())
	}
}

func TestSpinCashOut_Unsupported(t *testing.T) {
	e := NewSpinEngine(testSpinConfig(), &stubSource{values: []float64{0}}, &fakeSettler{}, nil, nil, &fakeGate{allowed: true})
	if _, err := e.CashOut(context.Background()); !errors.Is(err, ErrUnsupportedAction) {
		t.Errorf("CashOut() error = %v, want ErrUnsupportedAction", err)
	}
}
