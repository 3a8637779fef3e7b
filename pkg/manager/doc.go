/*
Package manager implements the workflow process manager.

The manager decides which queued workflow processes may run, serializes
processes that share a singleton route or route group through exclusive
run-locks, tracks the liveness of running processes through the executor,
and publishes an engine status summary for operators.

# Architecture

All manager state lives in one goroutine. Every inbound request is a
Command placed on the inbox; the goroutine handles commands one at a time
and each handler runs inside its own store transaction, ending in either a
commit or a rollback:

	┌────────────┐  Post/Do   ┌──────────────────────────────────┐
	│ reconciler │──────────▶ │             inbox                │
	│ executor   │            └───────────────┬──────────────────┘
	│ operators  │                            │ one at a time
	└────────────┘                            ▼
	                          ┌──────────────────────────────────┐
	                          │ dispatch → handler               │
	                          │   begin tx                       │
	                          │   registry / locks / store       │
	                          │   commit or rollback             │
	                          └───────────────┬──────────────────┘
	                                          │
	              ┌───────────────┬───────────┴───────┬──────────────────┐
	              ▼               ▼                   ▼                  ▼
	         Executor        Notifier         StatusPublisher       ProcessLog
	       (start, ping)  (admin notices)    (engine status)     (audit trail)

Nothing outside the manager goroutine touches the Registry, the enabled
flag or the open transaction, so none of them carry a mutex. Callers that
need an answer use Do; periodic drivers that only need the work done use
Post, which blocks while the inbox is full instead of dropping commands.

# Core Components

Manager:
  - Owns the inbox, the Registry and the current store transaction
  - Dispatches commands and recovers from handler panics
  - Starts enabled with an empty table

Registry:
  - Maps process ids to ProcessRecords
  - Only touched from the manager goroutine
  - Values returns copies ordered by process id for the ps command

LockService:
  - Grants exclusive, expiring run-locks on routes and route groups
  - Refreshes and releases grants administratively, by token
  - Implemented by package lock

Executor, Notifier, StatusPublisher:
  - Outbound side of the manager
  - Implemented by events.Dispatcher, which publishes on the broker

ProcessLog:
  - Per-process audit trail
  - Implemented by processlog.SQLSink or processlog.LogSink

StatusCollector:
  - Posts record_status on an interval so the stored engine status and
    the gauges stay fresh between commands

# Process Table

The Registry maps process ids to ProcessRecords: the manager's belief about
each process it currently tracks. Records are created on first registration
and removed by deregistration. Registration is refused for processes in a
terminal state (cancelled, failed, completed) and for processes without a
route.

A record moves through these statuses:

	            acquire run-lock         request start
	  (none) ──────────────────▶ Q ─────────────────────▶ U
	                                                      │
	              first pong, or store reports R          │
	                                                      ▼
	                                                      R
	                                                      │
	   completed / failed / parked / zombie / vanished    │
	  (none) ◀────────────────────────────────────────────┘

Every registration as R refreshes the run-lock to LockRefreshDuration.
Without that refresh the acquisition lock would lapse after LockDuration
while the process is still running, and a second process on the same
singleton route could be started.

# Run-Locks

Before a queued process is started the manager takes an exclusive run-lock
on the route group of its route, or on the route itself when it has no
group. Singleton routes lock under the process id so only one of their
processes runs at a time; all other routes lock under the administrative
context, which never contends with itself. The lock token is cached in the
process record and stored as the lockToken property of the process; the two
copies are reconciled whenever the token is read and disagreements raise an
administrative notice.

Token reconciliation:

	registry   store      result
	--------   -----      ------
	A          A          A
	A          B          none; registry copy dropped, urgency 6 notice
	none       A          A adopted, urgency 2 notice
	A          none       A written to the store
	none       none       none

The token is flushed to the store before the executor is asked to start the
process, so a crash between the two never leaves a running process whose
lock the next manager cannot find.

# Liveness

Every tick the manager asks the executor whether each running or starting
process is still alive, at most once per PingInterval. A process that is
reported as not running more than ZombieMissThreshold times in a row and is
still marked running in the store is flagged as a zombie: an administrative
notice is sent, its state becomes Z and its registration and lock are
removed.

A process that the executor keeps denying but whose store state is still Q
never picked up its start request. Its registration is dropped and the next
start cycle tries again.

# Commands

	record_status   publish the engine status
	tick_tock       scan running processes, then start queued processes
	ping_parked     requeue parked processes whose wait is over
	checkqueue      start queued processes now (201 OK / 400 NO)
	disable         enter maintenance mode; no further starts
	enable          leave maintenance mode
	queue           queue a process (201, 403, 404 or 400 in maintenance)
	ps              list the process table
	is_running      executor liveness answer
	failed          executor reports failure
	completed       executor reports completion
	parked          executor reports the process parked

Replies carry an HTTP status and a short text. Commands posted without a
reply channel still run; their reply is discarded.

# Usage

	mgr, err := manager.New(manager.DefaultConfig(), manager.Deps{
		Store:      store,
		Locks:      locks,
		Executor:   dispatcher,
		Notifier:   dispatcher,
		Status:     dispatcher,
		ProcessLog: sink,
	})
	if err != nil {
		return err
	}
	mgr.Start()
	defer mgr.Stop()

	reply, err := mgr.Do(ctx, manager.Command{Kind: manager.CommandQueue, ProcessID: 10234})

Reporting executor answers:

	mgr.Post(manager.Command{
		Kind:      manager.CommandIsRunning,
		ProcessID: 10234,
		Running:   manager.ParseRunning("YES"),
	})

Start and Stop are idempotent. Stop before Start returns immediately and
leaves the manager stopped; every later Do returns ErrStopped.

# Configuration

	TickInterval          60s    scan running and start queued
	PingParkedInterval    300s   requeue parked processes; 0 disables
	LockDuration          1h     requested on acquisition
	LockRefreshDuration   100h   applied once a process runs
	PingInterval          9s     minimum gap between liveness queries
	ZombieMissThreshold   3      misses tolerated before investigation
	QueueBatchSize        150    queued processes examined per cycle
	AdminContextID        10000  lock owner for non-singleton routes
	InboxSize             64     buffered commands

# Failure Scenarios

Store unavailable:
  - Begin fails, the command replies 503 and nothing changes
  - The next tick tries again

Handler panic:
  - dispatch recovers, rolls back and replies 500
  - The manager goroutine keeps serving commands

Executor unreachable:
  - A StartProcess error ends the start cycle with an urgency 9 notice
  - The failing process stays registered as starting with its lock held;
    liveness misses on a still queued process release it and the next
    cycle retries

Manager restart:
  - The table starts empty
  - The first tick rediscovers running processes from the store and adopts
    their stored lock tokens

# Integration Points

  - pkg/storage: system of record, one transaction per command
  - pkg/lock: run-lock grants
  - pkg/events: outbound executor requests, notices and engine status
  - pkg/processlog: process audit trail
  - pkg/metrics: table gauges, lock and zombie counters, cycle histograms
  - pkg/reconciler: periodic tick_tock and ping_parked
  - pkg/api: HTTP front end that turns requests into commands

# Monitoring

	workflowd_process_table_size
	workflowd_processes_tracked{status}
	workflowd_manager_enabled
	workflowd_commands_total{command,status}
	workflowd_lock_acquisitions_total{result}
	workflowd_lock_refresh_failures_total
	workflowd_zombies_total

A climbing lock_refresh_failures_total means running processes are losing
their locks; check that the lock database is writable.

# See Also

  - pkg/lock for grant semantics
  - pkg/reconciler for the tick drivers
  - pkg/types for ProcessRecord and EngineStatus
*/
package manager
