// Package reconcile checks the ledger against itself and against the event store.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventpage"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"go.uber.org/zap"
)

const defaultPageSize = 100

var ErrInvalidSweeperConfig = errors.New("invalid sweeper config")

// Ledger is the subset of ledger.Service the sweeper reads.
type Ledger interface {
	ListProfiles(ctx context.Context, afterUserID string, limit int) ([]ledger.UserProfile, error)
	Reconcile(ctx context.Context, userID ledger.UserID) (ledger.Reconciliation, error)
	FindDebitForEvent(ctx context.Context, userID ledger.UserID, eventID ledger.EventID) (ledger.Transaction, bool, error)
}

// EventLister pages through stored events.
type EventLister interface {
	ListRefs(ctx context.Context, afterEventID string, limit int) ([]eventpage.EventRef, error)
}

// SweepObserver receives the finding counts of every completed sweep.
type SweepObserver interface {
	ObserveSweep(mismatchedBalances int, unpaidEvents int)
}

// Report lists what a sweep found. It never repairs anything.
type Report struct {
	ProfilesChecked int
	EventsChecked   int
	Mismatches      []ledger.Reconciliation
	UnpaidEvents    []eventpage.EventRef
}

// HasFindings reports whether anything needs manual attention.
func (report Report) HasFindings() bool {
	return len(report.Mismatches) > 0 || len(report.UnpaidEvents) > 0
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithPageSize sets how many rows are read per page, capped at ledger.MaxListLimit.
func WithPageSize(size int) Option {
	return func(sweeper *Sweeper) {
		if size > 0 {
			sweeper.pageSize = min(size, ledger.MaxListLimit)
		}
	}
}

// WithObserver registers an observer for sweep results.
func WithObserver(observer SweepObserver) Option {
	return func(sweeper *Sweeper) {
		if observer != nil {
			sweeper.observer = observer
		}
	}
}

// Sweeper finds balances that disagree with their transaction log and events that were never paid for.
type Sweeper struct {
	ledger   Ledger
	events   EventLister
	logger   *zap.Logger
	observer SweepObserver
	pageSize int
}

// NewSweeper wires a Sweeper.
func NewSweeper(ledgerService Ledger, events EventLister, logger *zap.Logger, options ...Option) (*Sweeper, error) {
	if ledgerService == nil || events == nil {
		return nil, fmt.Errorf("%w: ledger and event dependencies are required", ErrInvalidSweeperConfig)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sweeper := &Sweeper{ledger: ledgerService, events: events, logger: logger, pageSize: defaultPageSize}
	for _, option := range options {
		if option != nil {
			option(sweeper)
		}
	}
	return sweeper, nil
}

// Run performs one full sweep.
func (sweeper *Sweeper) Run(ctx context.Context) (Report, error) {
	var report Report
	if err := sweeper.sweepBalances(ctx, &report); err != nil {
		return report, err
	}
	if err := sweeper.sweepEvents(ctx, &report); err != nil {
		return report, err
	}
	if sweeper.observer != nil {
		sweeper.observer.ObserveSweep(len(report.Mismatches), len(report.UnpaidEvents))
	}
	sweeper.logger.Info("reconciliation sweep finished",
		zap.Int("profiles_checked", report.ProfilesChecked),
		zap.Int("events_checked", report.EventsChecked),
		zap.Int("mismatched_balances", len(report.Mismatches)),
		zap.Int("unpaid_events", len(report.UnpaidEvents)),
	)
	return report, nil
}

func (sweeper *Sweeper) sweepBalances(ctx context.Context, report *Report) error {
	after := ""
	for {
		profiles, err := sweeper.ledger.ListProfiles(ctx, after, sweeper.pageSize)
		if err != nil {
			return fmt.Errorf("list profiles: %w", err)
		}
		for _, profile := range profiles {
			reconciliation, err := sweeper.ledger.Reconcile(ctx, profile.UserID)
			if err != nil {
				return fmt.Errorf("reconcile %s: %w", profile.UserID, err)
			}
			report.ProfilesChecked++
			if !reconciliation.Consistent() {
				report.Mismatches = append(report.Mismatches, reconciliation)
				sweeper.logger.Error("balance disagrees with transaction log",
					zap.Bool("reconcile", true),
					zap.String("user_id", profile.UserID.String()),
					zap.Int64("balance", reconciliation.Balance.Int64()),
					zap.Int64("transaction_sum", reconciliation.TransactionSum.Int64()),
				)
			}
		}
		if len(profiles) < sweeper.pageSize {
			return nil
		}
		after = profiles[len(profiles)-1].UserID.String()
	}
}

func (sweeper *Sweeper) sweepEvents(ctx context.Context, report *Report) error {
	after := ""
	for {
		refs, err := sweeper.events.ListRefs(ctx, after, sweeper.pageSize)
		if err != nil {
			return fmt.Errorf("list events: %w", err)
		}
		for _, ref := range refs {
			paid, err := sweeper.eventPaid(ctx, ref)
			if err != nil {
				return err
			}
			report.EventsChecked++
			if !paid {
				report.UnpaidEvents = append(report.UnpaidEvents, ref)
				sweeper.logger.Error("event has no debit",
					zap.Bool("reconcile", true),
					zap.String("user_id", ref.UserID),
					zap.String("event_id", ref.EventID),
				)
			}
		}
		if len(refs) < sweeper.pageSize {
			return nil
		}
		after = refs[len(refs)-1].EventID
	}
}

func (sweeper *Sweeper) eventPaid(ctx context.Context, ref eventpage.EventRef) (bool, error) {
	userID, err := ledger.NewUserID(ref.UserID)
	if err != nil {
		return false, nil
	}
	eventID, err := ledger.NewEventID(ref.EventID)
	if err != nil {
		return false, nil
	}
	_, found, err := sweeper.ledger.FindDebitForEvent(ctx, userID, eventID)
	if err != nil {
		return false, fmt.Errorf("find debit for %s: %w", ref.EventID, err)
	}
	return found, nil
}
