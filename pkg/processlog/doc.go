/*
Package processlog records the per-process audit trail written by the
workflow manager.

Every registration, lock acquisition and release, requeue and zombie report
appends one line for the process it concerns. Two sinks are provided:

	SQLSink   process_log table in SQLite (modernc.org/sqlite) or Postgres (pgx)
	LogSink   info-level zerolog records with a process_id field

The sink is chosen by the processLogDSN setting of workflowd serve:

	""                                      LogSink on the daemon logger
	/var/lib/workflowd/processlog.db        SQLite file
	sqlite:///var/lib/workflowd/plog.db     SQLite file
	:memory:                                SQLite, lost on exit
	postgres://user:pass@db:5432/workflow   Postgres

SQLSink creates its table and a process_id index on open:

	process_log(id, occurred_at, process_id, message)

Entries returns a process's lines in insertion order.
*/
package processlog
