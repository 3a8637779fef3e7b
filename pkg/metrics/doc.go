/*
Package metrics provides Prometheus metrics and health endpoints for workflowd.

Every metric is defined as a package variable and registered with the
Prometheus default registry at init, so any package can update a metric by
importing this one. The HTTP server mounts Handler at /metrics and the health
handlers at /health, /ready and /live.

# Architecture

	┌───────────────────── METRICS ─────────────────────────┐
	│                                                         │
	│  manager ──┐                                            │
	│  events  ──┼──▶ package variables ──▶ DefaultRegistry  │
	│  reconciler┘    (gauges, counters,        │             │
	│                  histograms)              ▼             │
	│                                    promhttp.Handler     │
	│                                       /metrics          │
	│                                                         │
	│  serve ─────▶ RegisterComponent ─┐                      │
	│  manager ───▶ SetMaintenance ────┼──▶ HealthChecker     │
	│                                   │    /health /ready   │
	│                                   │    /live            │
	└───────────────────────────────────┴─────────────────────┘

# Metrics Catalog

Process table:

workflowd_process_table_size:
  - Type: Gauge
  - Description: Processes tracked by the manager
  - Example: workflowd_process_table_size 4

workflowd_processes_tracked{status}:
  - Type: Gauge
  - Labels: status (Q, U, R)
  - Example: workflowd_processes_tracked{status="R"} 3

workflowd_manager_enabled:
  - Type: Gauge
  - Description: 1 while online, 0 in maintenance mode

Commands:

workflowd_commands_total{command, status}:
  - Type: Counter
  - Labels: command name and reply status
  - Example: workflowd_commands_total{command="queue",status="201"} 12

Run-locks:

workflowd_lock_acquisitions_total{result}:
  - Type: Counter
  - Labels: result (acquired, contended, error)

workflowd_lock_token_mismatches_total:
  - Type: Counter
  - Description: Registry and store disagreed on a lock token

workflowd_lock_refresh_failures_total:
  - Type: Counter
  - Description: A running process could not have its lock extended

Reconciliation:

workflowd_reconciliation_duration_seconds{step}:
  - Type: Histogram
  - Labels: step (scan_running, start_queued, ping_parked, detect_zombie)
  - Buckets: Default Prometheus buckets

workflowd_reconciliation_errors_total{step}:
  - Type: Counter

workflowd_reconciliation_cycles_total{command}:
  - Type: Counter
  - Labels: command (tick_tock, ping_parked, record_status)

Processes:

workflowd_processes_started_total:
  - Type: Counter
  - Description: Start requests sent to executors

workflowd_zombies_total:
  - Type: Counter
  - Description: Processes flagged as zombies

Events:

workflowd_events_dropped_total{type}:
  - Type: Counter
  - Description: Events a slow subscriber missed because its buffer was full

# Usage

Updating gauges and counters:

	metrics.ProcessTableSize.Set(float64(registry.Len()))
	metrics.LockAcquisitionsTotal.WithLabelValues("acquired").Inc()

Timing a reconciliation step:

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, "start_queued")

Reporting component health:

	metrics.RegisterComponent(metrics.ComponentStore, true, "")
	metrics.UpdateComponent(metrics.ComponentProcessLog, false, err.Error())
	metrics.SetMaintenance(true)

# Health Model

Components named store, locks and manager are critical. The processlog
component is not.

	/health   healthy     every registered component healthy
	          degraded    a non-critical component failed, or maintenance
	          unhealthy   a critical component failed (503)
	/ready    ready       every critical component registered and healthy
	          not_ready   otherwise (503)
	/live     alive       always 200 while the process runs

Maintenance mode degrades health but leaves the daemon ready: a disabled
engine still answers commands and serves executors.

# Design Patterns

Package Init Registration:
  - Metrics are registered once in init with MustRegister
  - A duplicate name panics at startup rather than at scrape time

Label Discipline:
  - Labels hold small closed sets (status letters, step and command names)
  - Process ids never appear as labels

Global Health Checker:
  - One HealthChecker per process, guarded by a RWMutex
  - Tests reset it with newHealthChecker

# Monitoring

Useful queries:

	rate(workflowd_processes_started_total[5m])
	increase(workflowd_zombies_total[1h]) > 0
	workflowd_manager_enabled == 0
	histogram_quantile(0.99, rate(workflowd_reconciliation_duration_seconds_bucket[5m]))
	rate(workflowd_lock_acquisitions_total{result="contended"}[5m])

# Alerting Rules

Manager in maintenance:
  - workflowd_manager_enabled == 0 for 30m
  - Nothing is being started; confirm the disable was intended

Lock refresh failures:
  - increase(workflowd_lock_refresh_failures_total[10m]) > 0
  - Running singleton processes may lose mutual exclusion

Zombies:
  - increase(workflowd_zombies_total[1h]) > 0
  - An executor died without reporting; check the admin notices

# See Also

  - pkg/manager for where most metrics are updated
  - pkg/api for the endpoints that expose them
*/
package metrics
