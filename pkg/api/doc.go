/*
Package api serves the workflow manager over HTTP.

Executors, the CLI and operators talk to the manager through a gin router.
Command routes are translated into manager.Command values and answered with
the manager's reply status and text. Seeding routes write routes, contacts,
processes, messages and properties straight into the store, each in its own
transaction. Executors receive start and liveness requests on a server-sent
event stream and answer on the process routes:

	executor                         workflowd
	   │  GET /v1/events?type=executor.start ──▶ broker subscription
	   │◀── event: executor.start {processId, contextId}
	   │  POST /v1/processes/42/running?answer=YES
	   │  POST /v1/processes/42/completed
	   ▼

The server also mounts /metrics, /health, /ready and /live.

# Architecture

	http.Server (:8080)
	   │
	   ├── /metrics   promhttp
	   ├── /health    metrics.HealthHandler
	   ├── /ready     metrics.ReadyHandler
	   ├── /live      metrics.LivenessHandler
	   └── /          gin.Engine
	                    ├── Recovery
	                    ├── requestLogger (zerolog, component=api)
	                    └── /v1 group
	                          ├── command routes ──▶ Commander.Do ──▶ manager inbox
	                          ├── seeding routes ──▶ storage.Store.Begin
	                          └── /events        ──▶ events.Broker.Subscribe

# Status Codes

Command routes pass the manager's reply through unchanged, so a queue of a
running process answers 403 and a checkqueue in maintenance answers 400
with text NO. The router adds its own codes only when the manager cannot
answer:

	400  process id in the path is not a number
	503  the manager is stopped, or the store cannot open a transaction
	504  the manager did not reply within the request timeout (30s)

Seeding routes answer 201 with {"id": N}, 400 on invalid JSON or missing
required fields, and 404 when a referenced process or route does not exist.

# Event Stream

GET /v1/events holds the connection open and writes one SSE frame per
event:

	event:executor.start
	data:{"id":"…","type":"executor.start","metadata":{"processId":"42","contextId":"10000"}}

Repeat type to filter; no type receives every event. Headers are flushed
before the first event so a client sees the 200 immediately. The
subscription ends when the client disconnects.

# Usage

	server := api.NewServer(mgr, store, broker, "/v1")
	go func() {
		if err := server.Start(":8080"); err != nil {
			log.Logger.Error().Err(err).Msg("API server failed")
		}
	}()
	defer server.Stop()

Tests mount Router.Handler on an httptest server with a fake Commander and
a real BoltStore in a temporary directory.
*/
package api
