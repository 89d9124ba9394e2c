// Package eventcreation creates an event and pays for it with one credit. The event store and the
// ledger do not share a transaction, so a failed debit is undone by deleting the event again.
package eventcreation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"go.uber.org/zap"
)

const (
	// DebitDescription is recorded on the transaction that pays for an event.
	DebitDescription = "Credit deducted for event creation"

	defaultCompensationTimeout = 10 * time.Second
)

var (
	// ErrCompensationFailed marks an event left behind without a debit.
	ErrCompensationFailed = errors.New("compensation failed")
	// ErrInvalidWorkflowConfig reports a missing dependency.
	ErrInvalidWorkflowConfig = errors.New("invalid workflow config")
)

// Ledger is the subset of ledger.Service the workflow needs.
type Ledger interface {
	EnsureProfile(ctx context.Context, userID ledger.UserID, email string) (ledger.UserProfile, error)
	Debit(ctx context.Context, userID ledger.UserID, amount ledger.PositiveCredits, description string, eventID ledger.EventID) (bool, error)
	FindDebitForEvent(ctx context.Context, userID ledger.UserID, eventID ledger.EventID) (ledger.Transaction, bool, error)
}

// EventService is the subset of eventpage.Service the workflow needs.
type EventService interface {
	Create(ctx context.Context, userID string, input eventpage.Input) (eventpage.Event, error)
	Delete(ctx context.Context, eventID string, userID string) error
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithObserver registers an observer for states and outcomes.
func WithObserver(observer Observer) Option {
	return func(workflow *Workflow) {
		if observer != nil {
			workflow.observers = append(workflow.observers, observer)
		}
	}
}

// WithCompensationTimeout bounds the delete issued after a failed debit.
func WithCompensationTimeout(timeout time.Duration) Option {
	return func(workflow *Workflow) {
		if timeout > 0 {
			workflow.compensationTimeout = timeout
		}
	}
}

// Workflow runs event creation as create-then-debit with compensation.
type Workflow struct {
	ledger              Ledger
	events              EventService
	logger              *zap.Logger
	nowFn               func() time.Time
	observers           []Observer
	compensationTimeout time.Duration
}

// NewWorkflow wires a Workflow.
func NewWorkflow(ledgerService Ledger, events EventService, logger *zap.Logger, options ...Option) (*Workflow, error) {
	if ledgerService == nil {
		return nil, fmt.Errorf("%w: ledger dependency is nil", ErrInvalidWorkflowConfig)
	}
	if events == nil {
		return nil, fmt.Errorf("%w: event dependency is nil", ErrInvalidWorkflowConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workflow := &Workflow{
		ledger:              ledgerService,
		events:              events,
		logger:              logger,
		nowFn:               time.Now,
		compensationTimeout: defaultCompensationTimeout,
	}
	for _, option := range options {
		if option != nil {
			option(workflow)
		}
	}
	return workflow, nil
}

// CreateEventWithCredit provisions the caller, stores the event and debits one credit for it.
// It returns ledger.ErrInsufficientCredits when the caller cannot pay, in which case no event remains.
func (workflow *Workflow) CreateEventWithCredit(ctx context.Context, userID ledger.UserID, email string, input eventpage.Input) (eventpage.Event, error) {
	startedAt := workflow.nowFn()
	run := &attempt{workflow: workflow, userID: userID, startedAt: startedAt}
	run.enter(ctx, StatePending)

	profile, err := workflow.ledger.EnsureProfile(ctx, userID, email)
	if err != nil {
		run.finish(ctx, OutcomeProfileFailed)
		return eventpage.Event{}, fmt.Errorf("ensure profile: %w", err)
	}
	// Pre-check only; the debit below is the authoritative guard.
	if profile.EventCredits <= 0 {
		run.finish(ctx, OutcomeInsufficientCredits)
		return eventpage.Event{}, ledger.ErrInsufficientCredits
	}

	event, err := workflow.events.Create(ctx, userID.String(), input)
	if err != nil {
		run.finish(ctx, OutcomeEventStoreFailed)
		return eventpage.Event{}, fmt.Errorf("create event: %w", err)
	}
	run.eventID = event.EventID
	run.enter(ctx, StateEventCreated)

	eventID, err := ledger.NewEventID(event.EventID)
	if err != nil {
		return eventpage.Event{}, run.compensate(ctx, err)
	}
	debited, debitErr := workflow.ledger.Debit(ctx, userID, oneCredit, DebitDescription, eventID)
	if debitErr != nil {
		committed, lookupErr := workflow.debitCommitted(ctx, userID, eventID)
		if lookupErr != nil {
			// Commit state unknown: keep the event and leave it to the reconciliation sweep.
			workflow.logger.Error("debit state unknown",
				zap.Bool("reconcile", true),
				zap.String("user_id", userID.String()),
				zap.String("event_id", eventID.String()),
				zap.NamedError("cause", debitErr),
				zap.Error(lookupErr),
			)
			run.finish(ctx, OutcomeDebitUnknown)
			return eventpage.Event{}, debitErr
		}
		if committed {
			run.enter(ctx, StateDebited)
			run.finish(ctx, OutcomeDebitRecovered)
			return event, nil
		}
		return eventpage.Event{}, run.compensate(ctx, debitErr)
	}
	if !debited {
		return eventpage.Event{}, run.compensate(ctx, ledger.ErrInsufficientCredits)
	}
	run.enter(ctx, StateDebited)
	run.finish(ctx, OutcomeCreated)
	return event, nil
}

// debitCommitted checks the transaction log for a debit whose acknowledgement was lost.
func (workflow *Workflow) debitCommitted(ctx context.Context, userID ledger.UserID, eventID ledger.EventID) (bool, error) {
	lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), workflow.compensationTimeout)
	defer cancel()
	_, found, err := workflow.ledger.FindDebitForEvent(lookupCtx, userID, eventID)
	if err != nil {
		return false, err
	}
	return found, nil
}

var oneCredit = mustPositiveCredits(1)

func mustPositiveCredits(value int64) ledger.PositiveCredits {
	amount, err := ledger.NewPositiveCredits(value)
	if err != nil {
		panic(err)
	}
	return amount
}

// attempt carries the bookkeeping of one CreateEventWithCredit call.
type attempt struct {
	workflow  *Workflow
	userID    ledger.UserID
	eventID   string
	startedAt time.Time
}

func (run *attempt) enter(ctx context.Context, state State) {
	for _, observer := range run.workflow.observers {
		observer.ObserveState(ctx, state)
	}
}

func (run *attempt) finish(ctx context.Context, outcome Outcome) {
	elapsed := run.workflow.nowFn().Sub(run.startedAt)
	for _, observer := range run.workflow.observers {
		observer.ObserveOutcome(ctx, outcome, elapsed)
	}
}

// compensate deletes the event created by this attempt and returns the error for the caller.
// The delete runs detached from ctx so a cancelled request still cleans up.
func (run *attempt) compensate(ctx context.Context, cause error) error {
	workflow := run.workflow
	run.enter(ctx, StateCompensating)
	deleteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), workflow.compensationTimeout)
	defer cancel()
	deleteErr := workflow.events.Delete(deleteCtx, run.eventID, run.userID.String())
	run.enter(ctx, StateFailed)
	if deleteErr != nil {
		workflow.logger.Error("event compensation failed",
			zap.Bool("reconcile", true),
			zap.String("user_id", run.userID.String()),
			zap.String("event_id", run.eventID),
			zap.NamedError("cause", cause),
			zap.Error(deleteErr),
		)
		run.finish(ctx, OutcomeCompensationFailed)
		return errors.Join(ErrCompensationFailed, cause, deleteErr)
	}
	workflow.logger.Info("event compensated",
		zap.String("user_id", run.userID.String()),
		zap.String("event_id", run.eventID),
		zap.NamedError("cause", cause),
	)
	if errors.Is(cause, ledger.ErrInsufficientCredits) {
		run.finish(ctx, OutcomeInsufficientCredits)
	} else {
		run.finish(ctx, OutcomeCompensated)
	}
	return cause
}
