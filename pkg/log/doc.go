/*
Package log provides structured logging for the rem storage engine using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific child loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("vector")                  │          │
	│  │  - WithTenant("acct_9f2")                   │          │
	│  │  - WithSchemaType("invoice")                │          │
	│  │  - WithTaskID("task-def456")                │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "vector",                   │          │
	│  │    "time": "2026-07-30T10:30:00Z",         │          │
	│  │    "message": "graph snapshot written"      │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF graph snapshot written component=vector │  │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance
  - Initialized once via log.Init()
  - Accessible from all rem packages

Configuration:
  - Level controls the minimum severity emitted; anything below it is
    discarded by zerolog before allocation, so Debug-level call sites stay
    cheap in production builds running at Info or above.
  - JSONOutput selects structured JSON (production, scraped by log
    aggregators) versus a human-readable console writer (local development).
  - Output defaults to os.Stdout but accepts any io.Writer, including a
    rotating file handle supplied by an embedding process.

Component Loggers:
  - WithComponent names the subsystem emitting the log (kv, entity, vector,
    query, worker, replication).
  - WithTenant and WithSchemaType scope a log line to the tenant and entity
    type being operated on, which is what makes grepping a specific
    tenant's activity out of a shared log stream practical.
  - WithTaskID tags background worker task logs with the task's identifier
    so retries of the same task correlate across lines.

# Usage

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
	})

	vlog := log.WithComponent("vector")
	vlog.Info().Str("tenant", "acct_9f2").Int("dimension", 768).Msg("hnsw graph rebuilt")

# Levels

Debug is for per-operation tracing (every KV get/put, every HNSW neighbor
visit) and is expected to be off in production. Info marks state
transitions worth remembering later: tenant opened, schema registered,
replication peer caught up. Warn marks a condition the engine recovered
from on its own: a retried task, a skipped stale replication batch. Error
marks something a caller needs to know failed: a corrupt page, a schema
validation rejection surfaced as a bug in the caller's data, a WAL write
that could not be durably committed.
*/
package log
