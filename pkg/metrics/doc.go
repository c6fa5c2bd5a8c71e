/*
Package metrics provides Prometheus metrics collection and exposition for the
rem storage engine.

The metrics package defines and registers all rem metrics using the
Prometheus client library, giving observability into entity throughput,
vector search latency, query planning, replication lag, and background
worker load. Metrics are exposed via an HTTP endpoint for scraping.

# Architecture

	┌──────────────────── METRICS SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │          Prometheus Registry                │          │
	│  │  - Global DefaultRegistry                   │          │
	│  │  - MustRegister at package init             │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Metric Categories                 │          │
	│  │                                              │          │
	│  │  Entity: writes, reads, live counts         │          │
	│  │  Schema: registered schema counts           │          │
	│  │  Vector: search/upsert latency, index size  │          │
	│  │  Query: parse/plan/exec duration            │          │
	│  │  Worker: queue depth, task outcomes         │          │
	│  │  Replication: lag, bytes, gaps              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │          HTTP Metrics Endpoint              │          │
	│  │  - Path: /metrics                           │          │
	│  │  - Handler: promhttp.Handler()              │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Prometheus Server                   │          │
	│  │  - Scrapes /metrics, stores time series     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Metric Registry:
  - Global Prometheus DefaultRegistry, all metrics registered at init.

Timer Helper:
  - Start a timer at operation start, observe the elapsed duration into a
    histogram (plain or vector) when the operation completes.

Collector:
  - Polls a Stats source (entity counts, index sizes, WAL sequence, queue
    depth) on a ticker and republishes the snapshot as gauges, so the
    engine's hot path never pays for a gauge write on every operation.

# Metrics Catalog

rem_entity_writes_total{tenant, type, op}:
  - Counter. Successful entity inserts/updates/deletes.

rem_entity_write_duration_seconds{tenant, type}:
  - Histogram. Entity write latency.

rem_entity_read_duration_seconds{tier}:
  - Histogram. Entity read latency by lookup tier (exact/prefix/fuzzy).

rem_entities_total{tenant, type}:
  - Gauge. Live (non-tombstoned) entity count.

rem_schemas_registered_total{tenant}:
  - Gauge. Registered schema version count.

rem_vector_search_duration_seconds{tenant, type}:
  - Histogram. HNSW search latency.

rem_vector_upsert_duration_seconds{tenant, type}:
  - Histogram. HNSW insert/update latency.

rem_vector_index_size{tenant, type}:
  - Gauge. Indexed vector count.

rem_query_parse_duration_seconds, rem_query_exec_duration_seconds{mode},
rem_query_plan_mode_total{mode}:
  - Query engine parse/plan/execute instrumentation.

rem_worker_queue_depth:
  - Gauge. Tasks currently queued.

rem_worker_tasks_total{kind, status}, rem_worker_task_duration_seconds{kind}:
  - Background task outcomes and latency.

rem_wal_sequence{tenant}:
  - Gauge. Current WAL sequence number.

rem_replication_lag{tenant, peer}, rem_replication_bytes_total{tenant, peer, direction},
rem_replication_gaps_total{tenant, peer}:
  - Replication stream health.

# Usage

	import "github.com/cuemby/rem/pkg/metrics"

	timer := metrics.NewTimer()
	err := store.Put(ctx, tenant, key, val)
	timer.ObserveDurationVec(metrics.EntityWriteDuration, tenant, "widget")

	http.Handle("/metrics", metrics.Handler())

# Design Patterns

Package Init Registration:
  - All metrics registered in init(); MustRegister panics on duplicate
    registration so a copy-paste mistake fails at process start, not at
    3am during an incident.

Label Discipline:
  - Labels are bounded (tenant, type, op, kind, peer) — never entity IDs or
    timestamps — to keep cardinality predictable as tenant count grows.
*/
package metrics
