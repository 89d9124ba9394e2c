package eventcreation

import (
	"context"
	"time"
)

// State is a step of one creation attempt.
type State string

const (
	StatePending      State = "pending"
	StateEventCreated State = "event_created"
	StateDebited      State = "debited"
	StateCompensating State = "compensating"
	StateFailed       State = "failed"
)

// Outcome is how a creation attempt ended.
type Outcome string

const (
	OutcomeCreated             Outcome = "created"
	OutcomeDebitRecovered      Outcome = "debit_recovered"
	OutcomeDebitUnknown        Outcome = "debit_unknown"
	OutcomeInsufficientCredits Outcome = "insufficient_credits"
	OutcomeProfileFailed       Outcome = "profile_failed"
	OutcomeEventStoreFailed    Outcome = "event_store_failed"
	OutcomeCompensated         Outcome = "compensated"
	OutcomeCompensationFailed  Outcome = "compensation_failed"
)

// Observer receives every state transition and exactly one outcome per attempt.
type Observer interface {
	ObserveState(ctx context.Context, state State)
	ObserveOutcome(ctx context.Context, outcome Outcome, elapsed time.Duration)
}
