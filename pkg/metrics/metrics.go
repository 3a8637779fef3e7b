package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Process table metrics
	ProcessTableSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflowd_process_table_size",
			Help: "Number of processes tracked by the manager",
		},
	)

	ProcessesTracked = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workflowd_processes_tracked",
			Help: "Tracked processes by status",
		},
		[]string{"status"},
	)

	ManagerEnabled = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "workflowd_manager_enabled",
			Help: "Whether the manager starts new processes (1 = online, 0 = maintenance)",
		},
	)

	// Command metrics
	CommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_commands_total",
			Help: "Commands handled by kind and reply status",
		},
		[]string{"command", "status"},
	)

	// Lock metrics
	LockAcquisitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_lock_acquisitions_total",
			Help: "Run-lock acquisition attempts by result",
		},
		[]string{"result"},
	)

	LockTokenMismatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflowd_lock_token_mismatches_total",
			Help: "Run-lock token mismatches between the registry and the store",
		},
	)

	LockRefreshFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflowd_lock_refresh_failures_total",
			Help: "Run-locks that could not be refreshed",
		},
	)

	// Reconciliation metrics
	ReconciliationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "workflowd_reconciliation_duration_seconds",
			Help:    "Duration of reconciliation steps in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"step"},
	)

	ReconciliationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_reconciliation_errors_total",
			Help: "Reconciliation steps abandoned because of an error",
		},
		[]string{"step"},
	)

	ReconciliationCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_reconciliation_cycles_total",
			Help: "Reconciliation cycles posted to the manager",
		},
		[]string{"command"},
	)

	ProcessesStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflowd_processes_started_total",
			Help: "Processes for which a start request was sent",
		},
	)

	ZombiesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "workflowd_zombies_total",
			Help: "Processes flagged as zombies",
		},
	)

	EventsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workflowd_events_dropped_total",
			Help: "Events not delivered because a subscriber buffer was full",
		},
		[]string{"type"},
	)
)

func init() {
	prometheus.MustRegister(ProcessTableSize)
	prometheus.MustRegister(ProcessesTracked)
	prometheus.MustRegister(ManagerEnabled)
	prometheus.MustRegister(CommandsTotal)
	prometheus.MustRegister(LockAcquisitionsTotal)
	prometheus.MustRegister(LockTokenMismatchesTotal)
	prometheus.MustRegister(LockRefreshFailuresTotal)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationErrorsTotal)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ProcessesStarted)
	prometheus.MustRegister(ZombiesTotal)
	prometheus.MustRegister(EventsDroppedTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
