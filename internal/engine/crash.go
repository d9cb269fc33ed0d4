package engine

import (
	"context"
	"log"
	"math"
	"sync"
	"time"
)

const (
	CRASH_STAKE = 10
	CRASH_TICK  = 100 * time.Millisecond
)

type CrashConfig struct {
	Stake int64
	Tick  time.Duration
}

func DefaultCrashConfig() CrashConfig {
	return CrashConfig{Stake: CRASH_STAKE, Tick: CRASH_TICK}
}

type cashoutResult struct {
	snap Snapshot
	err  error
}

// CrashEngine advances the multiplier on every simulation step and
// draws for a crash at each one. A cash-out is a race against the next
// draw; the flight loop serializes both, with the crash given priority
// when a tick and a cash-out arrive in the same step.
type CrashEngine struct {
	cfg     CrashConfig
	rand    Source
	settler Settler
	hub     Broadcaster
	archive *Archive
	clock   func() time.Time

	mu    sync.RWMutex
	round *Round

	cashoutCh chan chan cashoutResult
	cancelCh  chan chan struct{}
	stopCh    chan struct{}
}

func NewCrashEngine(cfg CrashConfig, src Source, settler Settler, hub Broadcaster, archive *Archive) *CrashEngine {
	return &CrashEngine{
		cfg:       cfg,
		rand:      src,
		settler:   settler,
		hub:       hub,
		archive:   archive,
		clock:     time.Now,
		cashoutCh: make(chan chan cashoutResult),
		cancelCh:  make(chan chan struct{}),
		stopCh:    make(chan struct{}),
	}
}

func (e *CrashEngine) Variant() Variant { return VariantCrash }

func (e *CrashEngine) Start(ctx context.Context) error { return nil }

func (e *CrashEngine) Stop() error {
	close(e.stopCh)
	return nil
}

func (e *CrashEngine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshotOf(VariantCrash, e.round)
}

// Commit launches the flight. Resolving begins immediately; the
// waiting happens inside the flight loop.
func (e *CrashEngine) Commit(ctx context.Context, params CommitParams) (Snapshot, error) {
	e.mu.Lock()
	if e.round != nil && !e.round.State.Terminal() {
		snap := snapshotOf(VariantCrash, e.round)
		e.mu.Unlock()
		return snap, ErrDuplicateRound
	}
	stake := params.Stake
	if stake <= 0 {
		stake = e.cfg.Stake
	}
	r := newRound(VariantCrash, stake, e.clock())
	r.LiveValue = MIN_MULTIPLIER
	e.round = r
	committed := snapshotOf(VariantCrash, r)
	r.State = StateResolving
	resolving := snapshotOf(VariantCrash, r)
	e.mu.Unlock()

	emit(e.hub, committed)
	emit(e.hub, resolving)
	log.Printf("[CRASH] Round %s launched, stake %d", r.ID, r.Stake)

	go e.fly(r)
	return resolving, nil
}

// CashOut requests an immediate cash-out of the active flight. The
// request is honored unless a crash is recorded in the same step.
func (e *CrashEngine) CashOut(ctx context.Context) (Snapshot, error) {
	e.mu.RLock()
	active := e.round != nil && !e.round.State.Terminal()
	e.mu.RUnlock()
	if !active {
		return e.Snapshot(), ErrNoActiveRound
	}

	respCh := make(chan cashoutResult, 1)
	select {
	case e.cashoutCh <- respCh:
		res := <-respCh
		return res.snap, res.err
	case <-time.After(time.Second):
		return e.Snapshot(), ErrNoActiveRound
	}
}

func (e *CrashEngine) Cancel(ctx context.Context) error {
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

func (e *CrashEngine) fly(r *Round) {
	ticker := time.NewTicker(e.cfg.Tick)
	defer ticker.Stop()
	defer e.drain()

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
			if e.step(r) {
				return
			}
		case respCh := <-e.cashoutCh:
			// A tick pending in the same step runs its crash draw
			// first; crash wins over a simultaneous cash-out.
			select {
			case <-ticker.C:
				if e.step(r) {
					respCh <- cashoutResult{e.Snapshot(), ErrNoActiveRound}
					return
				}
			default:
			}
			res := e.handleCashOut(r)
			respCh <- res
			if res.err == nil {
				return
			}
		}
	}
}

// step advances the multiplier and evaluates the crash draw. Returns
// true when the round reached a terminal state.
func (e *CrashEngine) step(r *Round) bool {
	e.mu.Lock()
	if r.State.Terminal() {
		e.mu.Unlock()
		return true
	}
	elapsed := e.clock().Sub(r.StartedAt).Seconds()
	r.LiveValue = MultiplierAt(elapsed)

	crashed, err := DrawCrash(CrashProbability(r.LiveValue), e.rand)
	if err != nil {
		// Randomness fault is fatal to this round only: cancel, never settle.
		cancel(r)
		snap := snapshotOf(VariantCrash, r)
		e.mu.Unlock()
		log.Printf("[CRASH] Round %s cancelled, randomness source failed: %v", r.ID, err)
		emit(e.hub, snap)
		if e.archive != nil {
			e.archive.StoreRound(context.Background(), r)
		}
		return true
	}
	if crashed {
		out := &Outcome{Crashed: true, Multiplier: r.LiveValue, Delta: -r.Stake}
		settle(context.Background(), e.settler, r, out)
		snap := snapshotOf(VariantCrash, r)
		e.mu.Unlock()
		log.Printf("[CRASH] Round %s crashed at %.2fx", r.ID, out.Multiplier)
		emit(e.hub, snap)
		if e.archive != nil {
			e.archive.StoreRound(context.Background(), r)
		}
		return true
	}

	snap := snapshotOf(VariantCrash, r)
	e.mu.Unlock()
	emit(e.hub, snap)
	return false
}

// handleCashOut settles the flight as a win at the current multiplier.
func (e *CrashEngine) handleCashOut(r *Round) cashoutResult {
	e.mu.Lock()
	if r.State.Terminal() {
		snap := snapshotOf(VariantCrash, r)
		e.mu.Unlock()
		return cashoutResult{snap, ErrNoActiveRound}
	}
	payout := int64(math.Round(float64(r.Stake) * r.LiveValue))
	out := &Outcome{
		Won:        true,
		Multiplier: r.LiveValue,
		Payout:     payout,
		Delta:      payout - r.Stake,
	}
	settle(context.Background(), e.settler, r, out)
	snap := snapshotOf(VariantCrash, r)
	e.mu.Unlock()

	log.Printf("[CRASH] Round %s cashed out at %.2fx, payout %d", r.ID, out.Multiplier, payout)
	emit(e.hub, snap)
	if e.archive != nil {
		e.archive.StoreRound(context.Background(), r)
	}
	return cashoutResult{snap, nil}
}

func (e *CrashEngine) teardown(r *Round) {
	e.mu.Lock()
	cancel(r)
	snap := snapshotOf(VariantCrash, r)
	e.mu.Unlock()
	emit(e.hub, snap)
	if e.archive != nil {
		e.archive.StoreRound(context.Background(), r)
	}
}

// drain answers any requests that raced the end of the flight.
func (e *CrashEngine) drain() {
	for {
		select {
		case respCh := <-e.cashoutCh:
			respCh <- cashoutResult{e.Snapshot(), ErrNoActiveRound}
		case ack := <-e.cancelCh:
			ack <- struct{}{}
		default:
			return
		}
	}
}
