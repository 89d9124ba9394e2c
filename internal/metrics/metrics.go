// Package metrics exports ledger, workflow, request and reconciliation telemetry to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MarkoPoloResearchLab/eventpages/pkg/eventcreation"
	"github.com/MarkoPoloResearchLab/eventpages/pkg/ledger"
	"github.com/prometheus/client_golang/prometheus"
)

const defaultNamespace = "eventpages"

// PrometheusObserver implements eventcreation.Observer and ledger.OperationLogger.
type PrometheusObserver struct {
	workflowStates   *prometheus.CounterVec
	workflowOutcomes *prometheus.CounterVec
	workflowDuration *prometheus.HistogramVec
	ledgerOperations *prometheus.CounterVec
	ledgerCredits    *prometheus.CounterVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	reconcileFinding *prometheus.GaugeVec
}

// NewPrometheusObserver registers every collector on reg.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	observer := &PrometheusObserver{}
	var err error
	if observer.workflowStates, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_creation_states_total",
		Help:      "State transitions of the event creation workflow.",
	}, []string{"state"})); err != nil {
		return nil, err
	}
	if observer.workflowOutcomes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_creation_outcomes_total",
		Help:      "Finished event creation attempts by outcome.",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if observer.workflowDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "event_creation_duration_seconds",
		Help:      "Latency of event creation attempts.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if observer.ledgerOperations, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_operations_total",
		Help:      "Ledger operations by operation and status.",
	}, []string{"operation", "status"})); err != nil {
		return nil, err
	}
	if observer.ledgerCredits, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ledger_credits_total",
		Help:      "Credits moved by successful ledger operations.",
	}, []string{"direction"})); err != nil {
		return nil, err
	}
	if observer.httpRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})); err != nil {
		return nil, err
	}
	if observer.httpDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by route.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route"})); err != nil {
		return nil, err
	}
	if observer.reconcileFinding, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reconcile_findings",
		Help:      "Findings of the most recent reconciliation sweep.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	return observer, nil
}

// register adds collector to reg, reusing a collector that was registered before.
func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		var alreadyRegistered prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegistered) {
			if existing, ok := alreadyRegistered.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, fmt.Errorf("register metric: %w", err)
	}
	return collector, nil
}

// ObserveState implements eventcreation.Observer.
func (observer *PrometheusObserver) ObserveState(_ context.Context, state eventcreation.State) {
	if observer == nil {
		return
	}
	observer.workflowStates.WithLabelValues(string(state)).Inc()
}

// ObserveOutcome implements eventcreation.Observer.
func (observer *PrometheusObserver) ObserveOutcome(_ context.Context, outcome eventcreation.Outcome, elapsed time.Duration) {
	if observer == nil {
		return
	}
	observer.workflowOutcomes.WithLabelValues(string(outcome)).Inc()
	observer.workflowDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// LogOperation implements ledger.OperationLogger.
func (observer *PrometheusObserver) LogOperation(_ context.Context, entry ledger.OperationLog) {
	if observer == nil {
		return
	}
	observer.ledgerOperations.WithLabelValues(entry.Operation, entry.Status).Inc()
	if entry.Error != nil || entry.Status != ledger.OperationStatusOK {
		return
	}
	amount := entry.Amount.Int64()
	switch {
	case amount > 0:
		observer.ledgerCredits.WithLabelValues("in").Add(float64(amount))
	case amount < 0:
		observer.ledgerCredits.WithLabelValues("out").Add(float64(-amount))
	}
}

// ObserveRequest records one served HTTP request.
func (observer *PrometheusObserver) ObserveRequest(method string, route string, status int, elapsed time.Duration) {
	if observer == nil {
		return
	}
	observer.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	observer.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveSweep publishes the counts of the latest reconciliation sweep.
func (observer *PrometheusObserver) ObserveSweep(mismatchedBalances int, unpaidEvents int) {
	if observer == nil {
		return
	}
	observer.reconcileFinding.WithLabelValues("mismatched_balance").Set(float64(mismatchedBalances))
	observer.reconcileFinding.WithLabelValues("unpaid_event").Set(float64(unpaidEvents))
}
