package engine

import (
	"context"
	"log"
)

// RoundEngine drives one variant's round lifecycle. Implementations
// serialize all round events on a single loop, so state transitions
// within a round are totally ordered.
type RoundEngine interface {
	Variant() Variant
	Start(ctx context.Context) error
	Stop() error
	Snapshot() Snapshot
	Commit(ctx context.Context, params CommitParams) (Snapshot, error)
	CashOut(ctx context.Context) (Snapshot, error)
	Cancel(ctx context.Context) error
}

// Orchestrator wires the variant engines and exposes the public
// control surface keyed by variant.
type Orchestrator struct {
	engines map[Variant]RoundEngine
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{engines: make(map[Variant]RoundEngine)}
}

func (o *Orchestrator) Register(e RoundEngine) {
	o.engines[e.Variant()] = e
}

func (o *Orchestrator) Engine(v Variant) (RoundEngine, bool) {
	e, ok := o.engines[v]
	return e, ok
}

func (o *Orchestrator) StartAll(ctx context.Context) error {
	for variant, e := range o.engines {
		if err := e.Start(ctx); err != nil {
			return err
		}
		log.Printf("[ENGINE] Started %s engine", variant)
	}
	return nil
}

func (o *Orchestrator) StopAll() error {
	for variant, e := range o.engines {
		if err := e.Stop(); err != nil {
			return err
		}
		log.Printf("[ENGINE] Stopped %s engine", variant)
	}
	return nil
}

func (o *Orchestrator) Commit(ctx context.Context, v Variant, params CommitParams) (Snapshot, error) {
	e, ok := o.engines[v]
	if !ok {
		return Snapshot{}, ErrUnknownVariant
	}
	return e.Commit(ctx, params)
}

func (o *Orchestrator) CashOut(ctx context.Context, v Variant) (Snapshot, error) {
	e, ok := o.engines[v]
	if !ok {
		return Snapshot{}, ErrUnknownVariant
	}
	return e.CashOut(ctx)
}

func (o *Orchestrator) Cancel(ctx context.Context, v Variant) error {
	e, ok := o.engines[v]
	if !ok {
		return ErrUnknownVariant
	}
	return e.Cancel(ctx)
}

func (o *Orchestrator) Snapshot(v Variant) (Snapshot, error) {
	e, ok := o.engines[v]
	if !ok {
		return Snapshot{}, ErrUnknownVariant
	}
	return e.Snapshot(), nil
}
