package engine

import (
	"context"
	"log"
	"sync"
	"time"

	"pointplay/internal/feed"
)

// Feed exposes the latest upstream price to the engine.
type Feed interface {
	ObserveLatest() (feed.Sample, bool)
	Healthy() bool
}

const (
	DIRECTION_STAKE  = 50
	DIRECTION_WINDOW = 5 * time.Second
	DIRECTION_POLL   = 100 * time.Millisecond
)

type DirectionConfig struct {
	Stake  int64
	Window time.Duration
	Poll   time.Duration
}

func DefaultDirectionConfig() DirectionConfig {
	return DirectionConfig{
		Stake:  DIRECTION_STAKE,
		Window: DIRECTION_WINDOW,
		Poll:   DIRECTION_POLL,
	}
}

// DirectionEngine resolves a price call against the feed after a fixed
// countdown window. Ties resolve as a loss.
type DirectionEngine struct {
	cfg     DirectionConfig
	feed    Feed
	settler Settler
	hub     Broadcaster
	archive *Archive
	clock   func() time.Time

	mu            sync.RWMutex
	round         *Round
	refObservedAt time.Time
	sawSample     bool

	cancelCh chan chan struct{}
	stopCh   chan struct{}
}

func NewDirectionEngine(cfg DirectionConfig, f Feed, settler Settler, hub Broadcaster, archive *Archive) *DirectionEngine {
	return &DirectionEngine{
		cfg:      cfg,
		feed:     f,
		settler:  settler,
		hub:      hub,
		archive:  archive,
		clock:    time.Now,
		cancelCh: make(chan chan struct{}),
		stopCh:   make(chan struct{}),
	}
}

func (e *DirectionEngine) Variant() Variant { return VariantDirection }

func (e *DirectionEngine) Start(ctx context.Context) error { return nil }

func (e *DirectionEngine) Stop() error {
	close(e.stopCh)
	return nil
}

func (e *DirectionEngine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return snapshotOf(VariantDirection, e.round)
}

// Commit captures the entry price and opens the countdown window. The
// commit is rejected before any round state is created when the feed
// has no sample.
func (e *DirectionEngine) Commit(ctx context.Context, params CommitParams) (Snapshot, error) {
	if params.Direction != DirectionUp && params.Direction != DirectionDown {
		return e.Snapshot(), ErrInvalidDirection
	}

	e.mu.Lock()
	if e.round != nil && !e.round.State.Terminal() {
		snap := snapshotOf(VariantDirection, e.round)
		e.mu.Unlock()
		return snap, ErrDuplicateRound
	}
	sample, ok := e.feed.ObserveLatest()
	if !ok {
		e.mu.Unlock()
		return snapshotOf(VariantDirection, nil), ErrFeedUnavailable
	}

	stake := params.Stake
	if stake <= 0 {
		stake = e.cfg.Stake
	}
	r := newRound(VariantDirection, stake, e.clock())
	r.Direction = params.Direction
	r.ReferenceValue = sample.Value
	r.LiveValue = sample.Value
	e.refObservedAt = sample.ObservedAt
	e.sawSample = false
	e.round = r
	committed := snapshotOf(VariantDirection, r)
	r.State = StateResolving
	resolving := snapshotOf(VariantDirection, r)
	e.mu.Unlock()

	emit(e.hub, committed)
	emit(e.hub, resolving)
	log.Printf("[DIRECTION] Round %s committed %s at %.2f", r.ID, r.Direction, r.ReferenceValue)

	go e.resolve(r)
	return resolving, nil
}

func (e *DirectionEngine) CashOut(ctx context.Context) (Snapshot, error) {
	return e.Snapshot(), ErrUnsupportedAction
}

// Cancel tears down the active round without settlement.
func (e *DirectionEngine) Cancel(ctx context.Context) error {
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

// resolve polls the feed until the window expires. If the feed never
// delivered a fresh sample by expiry, resolution is deferred to the
// next tick instead of deciding on a stale price; the round stays
// RESOLVING and is surfaced as stalled.
func (e *DirectionEngine) resolve(r *Round) {
	window := time.NewTimer(e.cfg.Window)
	defer window.Stop()
	poll := time.NewTicker(e.cfg.Poll)
	defer poll.Stop()

	expired := false
	for {
		select {
		case <-e.stopCh:
			e.teardown(r)
			return
		case ack := <-e.cancelCh:
			e.teardown(r)
			ack <- struct{}{}
			return
		case <-window.C:
			expired = true
			if e.tryResolve(r) {
				return
			}
		case <-poll.C:
			e.observe(r)
			if expired && e.tryResolve(r) {
				return
			}
		}
	}
}

// observe pulls the latest sample into the round. Only samples newer
// than the commit-time reference count as fresh.
func (e *DirectionEngine) observe(r *Round) {
	sample, ok := e.feed.ObserveLatest()
	if !ok {
		return
	}
	e.mu.Lock()
	if sample.ObservedAt.After(e.refObservedAt) {
		r.LiveValue = sample.Value
		e.sawSample = true
	}
	e.mu.Unlock()
}

// tryResolve settles the round once a fresh sample has been seen.
// Returns false while resolution is deferred.
func (e *DirectionEngine) tryResolve(r *Round) bool {
	e.mu.Lock()
	if r.State.Terminal() {
		e.mu.Unlock()
		return true
	}
	if !e.sawSample {
		if !r.Stalled {
			r.Stalled = true
			snap := snapshotOf(VariantDirection, r)
			e.mu.Unlock()
			log.Printf("[DIRECTION] Round %s stalled, no fresh price by expiry", r.ID)
			emit(e.hub, snap)
			return false
		}
		e.mu.Unlock()
		return false
	}

	won := (r.Direction == DirectionUp && r.LiveValue > r.ReferenceValue) ||
		(r.Direction == DirectionDown && r.LiveValue < r.ReferenceValue)
	delta := r.Stake
	if !won {
		delta = -r.Stake
	}
	out := &Outcome{Won: won, Delta: delta}
	r.Stalled = false
	settle(context.Background(), e.settler, r, out)
	snap := snapshotOf(VariantDirection, r)
	e.mu.Unlock()

	emit(e.hub, snap)
	if e.archive != nil {
		e.archive.StoreRound(context.Background(), r)
	}
	return true
}

func (e *DirectionEngine) teardown(r *Round) {
	e.mu.Lock()
	cancel(r)
	snap := snapshotOf(VariantDirection, r)
	e.mu.Unlock()
	emit(e.hub, snap)
	if e.archive != nil {
		e.archive.StoreRound(context.Background(), r)
	}
}
