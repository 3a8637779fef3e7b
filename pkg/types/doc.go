/*
Package types defines the data structures shared by the workflow daemon.

Durable entities (Process, Route, RouteGroup, Contact, Message) are the
records of the workflow system of record. ProcessRecord is the manager's
in-memory belief about a tracked process. LockTarget and LockGrant describe
run-locks. EngineStatus is the summary the manager publishes for operators.

Process states are single letters, as stored:

	?  unknown      R  running
	I  initial      P  parked
	H  held         C  completed
	Q  queued       F  failed
	U  starting     Z  zombie
	                X  cancelled

C, F and X are terminal. I, H and P may be queued.
*/
package types
