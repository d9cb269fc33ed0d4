package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

type Variant string

const (
	VariantDirection Variant = "direction"
	VariantCrash     Variant = "crash"
	VariantSpin      Variant = "spin"
)

type State string

const (
	StateIdle      State = "IDLE"
	StateCommitted State = "COMMITTED"
	StateResolving State = "RESOLVING"
	StateSettled   State = "SETTLED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateCancelled
}

type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Outcome is populated exactly once, immediately before a round
// transitions into SETTLED.
type Outcome struct {
	Won        bool    `json:"won"`
	Delta      int64   `json:"delta"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Payout     int64   `json:"payout,omitempty"`
	Crashed    bool    `json:"crashed,omitempty"`
	Prize      int64   `json:"prize,omitempty"`
}

// Round is one wager lifecycle. At most one round per variant may be
// in COMMITTED or RESOLVING at a time.
type Round struct {
	ID             string    `json:"round_id"`
	Variant        Variant   `json:"variant"`
	State          State     `json:"state"`
	Stake          int64     `json:"stake"`
	Direction      Direction `json:"direction,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	ReferenceValue float64   `json:"reference_value,omitempty"`
	LiveValue      float64   `json:"live_value,omitempty"`
	Outcome        *Outcome  `json:"outcome,omitempty"`
	SettleError    string    `json:"settle_error,omitempty"`
	Stalled        bool      `json:"stalled,omitempty"`

	settled bool
}

// Snapshot is the state emitted to the display boundary on every
// transition.
type Snapshot struct {
	Variant        Variant  `json:"variant"`
	State          State    `json:"state"`
	RoundID        string   `json:"round_id,omitempty"`
	LiveValue      float64  `json:"live_value,omitempty"`
	ReferenceValue float64  `json:"reference_value,omitempty"`
	Stalled        bool     `json:"stalled,omitempty"`
	Outcome        *Outcome `json:"outcome,omitempty"`
	SettleError    string   `json:"settle_error,omitempty"`
}

// CommitParams carries the user's commit action. Stake is fixed per
// variant; a zero stake selects the variant default.
type CommitParams struct {
	Stake     int64     `json:"stake,omitempty"`
	Direction Direction `json:"direction,omitempty"`
}

var (
	ErrFeedUnavailable   = errors.New("price feed unavailable")
	ErrDuplicateRound    = errors.New("a round of this variant is already active")
	ErrNoActiveRound     = errors.New("no active round")
	ErrUnsupportedAction = errors.New("action not supported for this variant")
	ErrUnknownVariant    = errors.New("unknown variant")
	ErrRandomness        = errors.New("randomness source unavailable")
	ErrInvalidDirection  = errors.New("direction must be up or down")
)

// CooldownActiveError rejects a commit made before the variant's
// cooldown has elapsed. Remaining is always non-negative.
type CooldownActiveError struct {
	Remaining time.Duration
}

func (e *CooldownActiveError) Error() string {
	return fmt.Sprintf("cooldown active, %s remaining", FormatRemaining(e.Remaining))
}

// FormatRemaining renders a duration as HH:MM:SS for commit rejections.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// Settler applies a signed point delta to the external ledger and
// returns the new balance.
type Settler interface {
	Settle(ctx context.Context, delta int64) (int64, error)
}

// Broadcaster receives a snapshot on every state transition.
type Broadcaster interface {
	Broadcast(message interface{})
}

// CooldownGate answers whether a variant may start a new round and
// records plays. Keys are variant names.
type CooldownGate interface {
	IsAllowed(ctx context.Context, key string) (bool, time.Duration, error)
	RecordPlay(ctx context.Context, key string, at time.Time) error
}
