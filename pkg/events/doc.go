/*
Package events provides an in-memory broker and the Dispatcher that
publishes the workflow manager's outbound messages on it: executor start
and liveness requests, administrative notices and engine status updates.

# Architecture

	Manager ──▶ Dispatcher ──▶ Broker.Publish ──▶ eventCh (100)
	                                                  │
	                                          run loop│broadcast
	                          ┌───────────────────────┼─────────────────────┐
	                          ▼                       ▼                     ▼
	                 SSE stream, executor    SSE stream, operator    notice logger
	                 (executor.*)            (all types)             (admin.notice)

Publish waits only for room in the broker queue, never on a subscriber.
Each subscriber has a buffered channel of 50; an event that does not fit is dropped for that
subscriber only and counted in workflowd_events_dropped_total{type}.

# Event Types

	executor.start          metadata processId, contextId
	executor.is_running     metadata processId
	admin.notice            metadata category, urgency, subject; message body
	manager.engine_status   message is the JSON EngineStatus

Executors answer executor.* events over HTTP; the answers come back into the
manager inbox as is_running, completed, failed and parked commands.

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe(events.EventExecutorStart, events.EventExecutorIsRunning)
	defer broker.Unsubscribe(sub)

	for event := range sub {
		pid, ok := events.ProcessIDOf(event)
		if !ok {
			continue
		}
		handle(event.Type, pid)
	}

Subscribe with no types receives every event. Unsubscribe closes the channel
and may be called more than once; Stop is idempotent as well.
*/
package events
