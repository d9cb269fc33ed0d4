package engine

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
)

// newRound creates a committed round. Callers must already hold the
// engine lock and have verified no round of the variant is active.
func newRound(variant Variant, stake int64, at time.Time) *Round {
	return &Round{
		ID:        uuid.NewString(),
		Variant:   variant,
		State:     StateCommitted,
		Stake:     stake,
		StartedAt: at,
	}
}

// snapshotOf renders a round (or the idle state when r is nil).
func snapshotOf(variant Variant, r *Round) Snapshot {
	if r == nil {
		return Snapshot{Variant: variant, State: StateIdle}
	}
	return Snapshot{
		Variant:        variant,
		State:          r.State,
		RoundID:        r.ID,
		LiveValue:      r.LiveValue,
		ReferenceValue: r.ReferenceValue,
		Stalled:        r.Stalled,
		Outcome:        r.Outcome,
		SettleError:    r.SettleError,
	}
}

// settle fixes the outcome, transitions the round into SETTLED and
// issues the single ledger call. The outcome and the displayed result
// stand even when the ledger call fails; the failure is surfaced on
// the round instead of reversing the result.
func settle(ctx context.Context, settler Settler, r *Round, out *Outcome) {
	if r.settled || r.State.Terminal() {
		return
	}
	r.settled = true
	r.Outcome = out
	r.State = StateSettled

	if settler == nil {
		return
	}
	balance, err := settler.Settle(ctx, out.Delta)
	if err != nil {
		r.SettleError = err.Error()
		log.Printf("[ENGINE] %s round %s settlement failed: %v", r.Variant, r.ID, err)
		return
	}
	log.Printf("[ENGINE] %s round %s settled delta=%+d balance=%d", r.Variant, r.ID, out.Delta, balance)
}

// cancel tears a round down without settlement.
func cancel(r *Round) {
	if r == nil || r.State.Terminal() {
		return
	}
	r.State = StateCancelled
	log.Printf("[ENGINE] %s round %s cancelled", r.Variant, r.ID)
}

// emit pushes a snapshot to the display boundary.
func emit(hub Broadcaster, snap Snapshot) {
	if hub == nil {
		return
	}
	hub.Broadcast(snap)
}
