package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrchestratorRuns tracks autopilot runs by terminal outcome
	OrchestratorRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_autopilot_runs_total",
			Help: "Total number of autopilot runs by outcome",
		},
		[]string{"outcome"},
	)

	// OrchestratorDuration tracks autopilot run latency
	OrchestratorDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "recovery_autopilot_run_duration_seconds",
			Help:    "Autopilot run latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ActionsTotal tracks logged actions per kind and status
	ActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_actions_total",
			Help: "Total number of logged autopilot actions",
		},
		[]string{"action", "status"},
	)

	// LockContention tracks runs rejected because the finding was locked
	LockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_lock_contention_total",
			Help: "Total number of autopilot runs rejected by the finding lock",
		},
	)

	// LockErrors tracks lock backend failures (runs proceed fail-open)
	LockErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_lock_errors_total",
			Help: "Total number of lock backend errors",
		},
	)

	// FindingTransitions tracks lifecycle transitions applied by the service
	FindingTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "recovery_finding_transitions_total",
			Help: "Total number of finding lifecycle transitions",
		},
		[]string{"transition"},
	)

	// RecoveredValueCents tracks the value of findings closed through execute
	RecoveredValueCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_handled_value_cents_total",
			Help: "Total estimated value of findings handled, in cents",
		},
	)

	// DBConnectionPoolUsage tracks database pool usage percentage
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "recovery_db_connection_pool_usage_percent",
			Help: "Database connection pool usage percentage",
		},
	)

	// ActionLogPruned tracks durable log rows removed by retention
	ActionLogPruned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "recovery_action_log_pruned_total",
			Help: "Total number of action log rows removed by retention",
		},
	)
)
