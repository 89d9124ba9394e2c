package logging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventcreation"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewBuildsLoggers(test *testing.T) {
	for _, environment := range []string{"production", "development", ""} {
		logger, err := New(environment)
		if err != nil {
			test.Fatalf("new logger for %q: %v", environment, err)
		}
		if logger == nil {
			test.Fatalf("nil logger for %q", environment)
		}
	}
}

func TestLedgerOperationLogger(test *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	operationLogger := NewLedgerOperationLogger(zap.New(core))
	userID, err := ledger.NewUserID("user-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	eventID, err := ledger.NewEventID("event-1")
	if err != nil {
		test.Fatalf("event id: %v", err)
	}

	operationLogger.LogOperation(context.Background(), ledger.OperationLog{
		Operation: "debit",
		Status:    "ok",
		UserID:    userID,
		Amount:    -1,
		EventID:   eventID,
	})
	operationLogger.LogOperation(context.Background(), ledger.OperationLog{
		Operation: "credit",
		Status:    "error",
		UserID:    userID,
		Amount:    3,
		Error:     errors.New("boom"),
	})

	entries := logs.All()
	if len(entries) != 2 {
		test.Fatalf("expected 2 entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if entries[0].Level != zapcore.InfoLevel || first["event_id"] != "event-1" || first["amount"] != int64(-1) {
		test.Fatalf("unexpected success entry: %v %v", entries[0].Level, first)
	}
	if _, hasKey := first["idempotency_key"]; hasKey {
		test.Fatalf("zero idempotency key must be omitted")
	}
	if entries[1].Level != zapcore.WarnLevel || entries[1].ContextMap()["error"] != "boom" {
		test.Fatalf("unexpected failure entry: %v %v", entries[1].Level, entries[1].ContextMap())
	}
}

func TestLedgerOperationLoggerRejectedDuplicate(test *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	operationLogger := NewLedgerOperationLogger(zap.New(core))
	userID, err := ledger.NewUserID("user-1")
	if err != nil {
		test.Fatalf("user id: %v", err)
	}
	key, err := ledger.NewIdempotencyKey("payment:evt_1")
	if err != nil {
		test.Fatalf("idempotency key: %v", err)
	}
	operationLogger.LogOperation(context.Background(), ledger.OperationLog{
		Operation:      "credit",
		Status:         "error",
		UserID:         userID,
		Amount:         3,
		IdempotencyKey: key,
		Error:          ledger.ErrDuplicateIdempotencyKey,
	})
	rejected := logs.FilterMessage("ledger operation rejected").All()
	if len(rejected) != 1 || rejected[0].Level != zapcore.InfoLevel {
		test.Fatalf("expected one info-level rejection, got %v", logs.All())
	}
	if rejected[0].ContextMap()["idempotency_key"] != "payment:evt_1" {
		test.Fatalf("missing idempotency key: %v", rejected[0].ContextMap())
	}
}

func TestWorkflowLogger(test *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	workflowLogger := NewWorkflowLogger(zap.New(core))
	workflowLogger.ObserveState(context.Background(), eventcreation.StateEventCreated)
	workflowLogger.ObserveOutcome(context.Background(), eventcreation.OutcomeCreated, 15*time.Millisecond)

	if logs.FilterMessage("event creation state").Len() != 1 {
		test.Fatalf("expected state entry")
	}
	finished := logs.FilterMessage("event creation finished").All()
	if len(finished) != 1 || finished[0].ContextMap()["outcome"] != "created" {
		test.Fatalf("unexpected outcome entries: %v", finished)
	}
}
