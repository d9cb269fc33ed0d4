package engine

import (
	"context"
	"log"
	"sync"
	"time"
)

const (
	SPIN_COOLDOWN      = 24 * time.Hour
	SPIN_STEPS         = 30
	SPIN_STEP_INTERVAL = 100 * time.Millisecond
)

// SpinPrizes is the fixed equal-weight outcome set.
var SpinPrizes = []int64{20, 50, 100, 150, 200, 250}

type SpinConfig struct {
	Prizes       []int64
	Steps        int
	StepInterval time.Duration
}

func DefaultSpinConfig() SpinConfig {
	return SpinConfig{
		Prizes:       SpinPrizes,
		Steps:        SPIN_STEPS,
		StepInterval: SPIN_STEP_INTERVAL,
	}
}

// SpinEngine draws the prize the instant resolving begins; the display
// steps that follow are purely cosmetic and never change it. Entry is
// gated by the cooldown tracker.
type SpinEngine struct {
	cfg      SpinConfig
	rand     Source
	settler  Settler
	hub      Broadcaster
	archive  *Archive
	cooldown CooldownGate
	clock    func() time.Time

	mu    sync.RWMutex
	round *Round

	cancelCh chan chan struct{}
	stopCh   chan struct{}
}

func NewSpinEngine(cfg SpinConfig, src Source, settler Settler, hub Broadcaster, archive *Archive, gate CooldownGate) *SpinEngine {
	return &SpinEngine{
		cfg:      cfg,
		rand:     src,
		settler:  settler,
		hub:      hub,
		archive:  archive,
		cooldown: gate,
		clock:    time.Now,
		cancelCh: make(chan chan struct{}),
		stopCh:   make(chan struct{}),
	}
}

func (e *SpinEngine) Variant() Variant { return VariantSpin }

func (e *SpinEngine) Start(ctx context.Context) error { return nil }

func (e *SpinEngine) Stop() error {
	close(e.stopCh)
	return nil
}

func (e *SpinEngine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshotOf(VariantSpin, e.round)
}

// Commit checks the cooldown, pre-draws the prize and records the play
// before the reel starts. No round is created on a rejected commit.
func (e *SpinEngine) Commit(ctx context.Context, params CommitParams) (Snapshot, error) {
	e.mu.Lock()
	if e.round != nil && !e.round.State.Terminal() {
		snap := snapshotOf(VariantSpin, e.round)
		e.mu.Unlock()
		return snap, ErrDuplicateRound
	}
	e.mu.Unlock()

	allowed, remaining, err := e.cooldown.IsAllowed(ctx, string(VariantSpin))
	if err != nil {
		return e.Snapshot(), err
	}
	if !allowed {
		return e.Snapshot(), &CooldownActiveError{Remaining: remaining}
	}

	prize, err := SelectWeightedOutcome(e.cfg.Prizes, e.rand)
	if err != nil {
		log.Printf("[SPIN] Randomness source failed: %v", err)
		return e.Snapshot(), ErrRandomness
	}

	now := e.clock()
	if err := e.cooldown.RecordPlay(ctx, string(VariantSpin), now); err != nil {
		return e.Snapshot(), err
	}

	e.mu.Lock()
	if e.round != nil && !e.round.State.Terminal() {
		snap := snapshotOf(VariantSpin, e.round)
		e.mu.Unlock()
		return snap, ErrDuplicateRound
	}
	r := newRound(VariantSpin, 0, now)
	e.round = r
	committed := snapshotOf(VariantSpin, r)
	r.State = StateResolving
	resolving := snapshotOf(VariantSpin, r)
	e.mu.Unlock()

	emit(e.hub, committed)
	emit(e.hub, resolving)
	log.Printf("[SPIN] Round %s started, prize drawn: %d", r.ID, prize)

	go e.spin(r, prize)
	return resolving, nil
}

func (e *SpinEngine) CashOut(ctx context.Context) (Snapshot, error) {
	return e.Snapshot(), ErrUnsupportedAction
}

func (e *SpinEngine) Cancel(ctx context.Context) error {
	e.mu.RLock()
	active := e.round != nil && !e.round.State.Terminal()
	e.mu.RUnlock()
	if !active {
		return ErrNoActiveRound
	}

	ack := make(chan struct{}, 1)
	select {
	case e.cancelCh <- ack:
		<-ack
		return nil
	case <-time.After(time.Second):
		return ErrNoActiveRound
	}
}

// spin runs the fixed display sequence and settles the pre-drawn prize.
func (e *SpinEngine) spin(r *Round, prize int64) {
	ticker := time.NewTicker(e.cfg.StepInterval)
	defer ticker.Stop()

	steps := 0
	for {
		select {
		case <-e.stopCh:
			e.teardown(r)
			return
		case ack := <-e.cancelCh:
			e.teardown(r)
			ack <- struct{}{}
			return
		case <-ticker.C:
			steps++
			e.mu.Lock()
			r.LiveValue = float64(steps)
			if steps < e.cfg.Steps {
				snap := snapshotOf(VariantSpin, r)
				e.mu.Unlock()
				emit(e.hub, snap)
				continue
			}
			out := &Outcome{Won: true, Prize: prize, Delta: prize}
			settle(context.Background(), e.settler, r, out)
			snap := snapshotOf(VariantSpin, r)
			e.mu.Unlock()
			emit(e.hub, snap)
			if e.archive != nil {
				e.archive.StoreRound(context.Background(), r)
			}
			return
		}
	}
}

func (e *SpinEngine) teardown(r *Round) {
	e.mu.Lock()
	cancel(r)
	snap := snapshotOf(VariantSpin, r)
	e.mu.Unlock()
	emit(e.hub, snap)
	if e.archive != nil {
		e.archive.StoreRound(context.Background(), r)
	}
}
