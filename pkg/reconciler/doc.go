/*
Package reconciler drives the workflow manager's periodic work.

The reconciler owns the timers; the manager owns the state. On every tick
the reconciler posts a command to the manager inbox and the manager does the
work on its own goroutine:

	┌──────────────┐ every TickInterval (60s)        ┌─────────┐
	│  Reconciler  │───── tick_tock ────────────────▶│ Manager │
	│              │ every PingParkedInterval (300s) │  inbox  │
	│              │───── ping_parked ──────────────▶│         │
	└──────────────┘                                 └─────────┘

A record_status command is posted once at start so the engine status is
published before the first tick. Setting PingParkedInterval to zero
disables parked pinging.

Posting blocks while the manager inbox is full, so a slow manager slows the
reconciler instead of accumulating ticks.

# What a Tick Does

tick_tock runs two steps, each in its own store transaction. A disabled
manager skips both:

  - scan running: register processes the store marks R but the table does
    not know, promote started processes the store now reports as R, and
    query the executor about running and starting processes not pinged
    within PingInterval
  - start queued: acquire run-locks for queued processes and ask the
    executor to start each one that got a lock

ping_parked requeues parked processes that are not waiting on a message
label, or whose awaited message has arrived, then runs a start cycle when
anything was requeued.

# Usage

	r := reconciler.NewReconciler(mgr, cfg.Manager)
	r.Start()
	defer r.Stop()

Start and Stop are idempotent; Stop before Start never blocks.

# Monitoring

	workflowd_reconciliation_cycles_total{command}
	workflowd_reconciliation_duration_seconds{step}
	workflowd_reconciliation_errors_total{step}

A flat cycles counter while the daemon is up means the manager stopped
accepting commands; the reconciler logs a warning for every refused post.
*/
package reconciler
