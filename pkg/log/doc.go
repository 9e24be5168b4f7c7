/*
Package log provides structured logging for cascade using zerolog.

The log package wraps zerolog to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper
functions for common logging patterns. All logs include timestamps and
support filtering by severity level.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  Global Logger                 Context Loggers            │
	│  - Zerolog instance             - WithComponent("api")     │
	│  - Initialized via log.Init()   - WithNodeID(id)           │
	│  - Thread-safe                  - WithAllocationID(id)      │
	│                                  - WithTaskID(id)           │
	└────────────────────────────────────────────────────────────┘

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	log.Info("coordinator starting")

	dispatchLog := log.WithComponent("dispatcher")
	dispatchLog.Info().Str("task_id", t.ID).Msg("dispatched allocation")

JSON output (production) and console output (development, via
zerolog.ConsoleWriter) are selected by Config.JSONOutput.

# Integration points

  - pkg/dispatcher, pkg/cron, pkg/reclaimer: component loggers for the
    dispatch pipeline
  - pkg/api: server start logging
  - pkg/worker: the agent's heartbeat/claim/execute/upload/complete loop

# Best practices

Use structured fields (.Str, .Int, .Err) rather than string
concatenation; never log a node's secret or access key.
*/
package log
