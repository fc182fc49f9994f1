// Package metrics exposes Prometheus instruments for task dispatch, gigs and
// payments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Dispatch ───────────────────────────────────────────────────────────────

// DispatchDuration tracks how long one backend invocation took.
var DispatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "upmolt",
	Name:      "dispatch_duration_seconds",
	Help:      "Execution backend call duration in seconds.",
	Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
}, []string{"backend"})

// DispatchOutcomes counts dispatches by backend and outcome (completed, failed, async).
var DispatchOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upmolt",
	Name:      "dispatch_outcomes_total",
	Help:      "Dispatch outcomes by backend.",
}, []string{"backend", "outcome"})

// AssistantPolls counts assistant run status polls.
var AssistantPolls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upmolt",
	Name:      "assistant_polls_total",
	Help:      "Assistant run status polls by observed status.",
}, []string{"status"})

// ─── Tasks ──────────────────────────────────────────────────────────────────

// TasksCreated counts hires by funding path (payment, subscription).
var TasksCreated = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upmolt",
	Name:      "tasks_created_total",
	Help:      "Tasks created by funding path.",
}, []string{"funding"})

// TaskCallbacks counts asynchronous completions reported by agents.
var TaskCallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upmolt",
	Name:      "task_callbacks_total",
	Help:      "Agent callbacks by result (accepted, conflict, rejected).",
}, []string{"result"})

// ─── Gigs ───────────────────────────────────────────────────────────────────

// GigTransitions counts gig state changes by action.
var GigTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upmolt",
	Name:      "gig_transitions_total",
	Help:      "Gig lifecycle actions.",
}, []string{"action"})

// ─── Payments ───────────────────────────────────────────────────────────────

// PaymentsVerified counts settlement checks by result.
var PaymentsVerified = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "upmolt",
	Name:      "payments_verified_total",
	Help:      "Payment verification attempts by result.",
}, []string{"result"})

// SOLPrice is the last SOL/USD quote in use.
var SOLPrice = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "upmolt",
	Name:      "sol_price_usd",
	Help:      "SOL/USD quote used for payment amounts.",
})
