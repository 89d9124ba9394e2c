package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventcreation"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func mustNewObserver(test *testing.T, reg prometheus.Registerer) *PrometheusObserver {
	test.Helper()
	observer, err := NewPrometheusObserver("test", reg)
	if err != nil {
		test.Fatalf("observer init: %v", err)
	}
	return observer
}

func TestWorkflowMetrics(test *testing.T) {
	observer := mustNewObserver(test, prometheus.NewRegistry())
	observer.ObserveState(context.Background(), eventcreation.StatePending)
	observer.ObserveState(context.Background(), eventcreation.StateEventCreated)
	observer.ObserveOutcome(context.Background(), eventcreation.OutcomeCompensated, 20*time.Millisecond)

	if got := testutil.ToFloat64(observer.workflowStates.WithLabelValues("event_created")); got != 1 {
		test.Fatalf("expected 1 event_created transition, got %v", got)
	}
	if got := testutil.ToFloat64(observer.workflowOutcomes.WithLabelValues("compensated")); got != 1 {
		test.Fatalf("expected 1 compensated outcome, got %v", got)
	}
	if got := testutil.CollectAndCount(observer.workflowDuration); got != 1 {
		test.Fatalf("expected one duration series, got %d", got)
	}
}

func TestLedgerMetrics(test *testing.T) {
	observer := mustNewObserver(test, prometheus.NewRegistry())
	observer.LogOperation(context.Background(), ledger.OperationLog{Operation: "credit", Status: "ok", Amount: 3})
	observer.LogOperation(context.Background(), ledger.OperationLog{Operation: "debit", Status: "ok", Amount: -1})
	observer.LogOperation(context.Background(), ledger.OperationLog{Operation: "debit", Status: "insufficient", Amount: -1})
	observer.LogOperation(context.Background(), ledger.OperationLog{Operation: "credit", Status: "error", Amount: 5, Error: errors.New("down")})

	if got := testutil.ToFloat64(observer.ledgerCredits.WithLabelValues("in")); got != 3 {
		test.Fatalf("expected 3 credits in, got %v", got)
	}
	if got := testutil.ToFloat64(observer.ledgerCredits.WithLabelValues("out")); got != 1 {
		test.Fatalf("expected 1 credit out, got %v", got)
	}
	if got := testutil.ToFloat64(observer.ledgerOperations.WithLabelValues("debit", "insufficient")); got != 1 {
		test.Fatalf("expected 1 insufficient debit, got %v", got)
	}
}

func TestRequestAndSweepMetrics(test *testing.T) {
	observer := mustNewObserver(test, prometheus.NewRegistry())
	observer.ObserveRequest("POST", "/api/events", 402, 5*time.Millisecond)
	observer.ObserveSweep(2, 1)

	if got := testutil.ToFloat64(observer.httpRequests.WithLabelValues("POST", "/api/events", "402")); got != 1 {
		test.Fatalf("expected one 402 request, got %v", got)
	}
	if got := testutil.ToFloat64(observer.reconcileFinding.WithLabelValues("mismatched_balance")); got != 2 {
		test.Fatalf("expected 2 mismatches, got %v", got)
	}
}

func TestRegisteringTwiceReusesCollectors(test *testing.T) {
	registry := prometheus.NewRegistry()
	first := mustNewObserver(test, registry)
	second := mustNewObserver(test, registry)
	first.ObserveState(context.Background(), eventcreation.StateDebited)
	if got := testutil.ToFloat64(second.workflowStates.WithLabelValues("debited")); got != 1 {
		test.Fatalf("expected shared collector, got %v", got)
	}
}

func TestNilObserverIsSafe(test *testing.T) {
	var observer *PrometheusObserver
	observer.ObserveState(context.Background(), eventcreation.StatePending)
	observer.ObserveRequest("GET", "/healthz", 200, time.Millisecond)
}
