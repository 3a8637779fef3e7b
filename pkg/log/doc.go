/*
Package log provides structured logging for workflowd using zerolog.

A single global Logger is configured by Init from the command line flags.
Output is human readable on the console by default and JSON when requested;
when a log file is configured, records are also written as JSON to a file
rotated by lumberjack.

	log.Init(log.Config{
		Level:      "info",
		JSONOutput: false,
		File:       &log.FileConfig{Path: "/var/log/workflowd.log", MaxSizeMB: 100},
	})

	logger := log.WithComponent("manager")
	log.WithProcessID(logger, 10234).Info().Msg("Process registered")

Component loggers carry a "component" field; WithProcessID adds a
"process_id" field for per-process messages.

# Fields

	component    manager, api, reconciler, serve, notices, processlog, client
	process_id   workflow process the record concerns
	token        run-lock token

# Levels

Debug records every command and registration and is too noisy for
production. Info covers process starts, lock acquisitions and table
changes. Warn and Error mark lost locks, zombies and store failures; they
usually come with an administrative notice on the event stream.
*/
package log
