package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Entity store metrics
	EntityWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rem_entity_writes_total",
			Help: "Total number of entity creates/updates/deletes by tenant, type and operation",
		},
		[]string{"tenant", "type", "op"},
	)

	EntityWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rem_entity_write_duration_seconds",
			Help:    "Entity write duration in seconds by tenant and type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant", "type"},
	)

	EntityReadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rem_entity_read_duration_seconds",
			Help:    "Entity read duration in seconds by lookup tier",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)

	EntitiesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rem_entities_total",
			Help: "Total number of live entities by tenant and type",
		},
		[]string{"tenant", "type"},
	)

	// Schema registry metrics
	SchemasRegisteredTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rem_schemas_registered_total",
			Help: "Total number of registered schema versions by tenant",
		},
		[]string{"tenant"},
	)

	// Vector index metrics
	VectorSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rem_vector_search_duration_seconds",
			Help:    "HNSW search duration in seconds by tenant and type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant", "type"},
	)

	VectorUpsertDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rem_vector_upsert_duration_seconds",
			Help:    "Time taken to insert or update a vector in the HNSW graph, by tenant and type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tenant", "type"},
	)

	VectorIndexSize = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rem_vector_index_size",
			Help: "Number of vectors currently indexed by tenant and type",
		},
		[]string{"tenant", "type"},
	)

	// Query engine metrics
	QueryParseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "rem_query_parse_duration_seconds",
			Help:    "Time taken to parse a query string",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueryPlanMode = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rem_query_plan_mode_total",
			Help: "Total number of queries planned, by chosen plan mode",
		},
		[]string{"mode"},
	)

	QueryExecDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rem_query_exec_duration_seconds",
			Help:    "Query execution duration in seconds by plan mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	// Background worker metrics
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rem_worker_queue_depth",
			Help: "Number of tasks currently queued for the background worker",
		},
	)

	WorkerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rem_worker_tasks_total",
			Help: "Total number of background tasks processed by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	WorkerTaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rem_worker_task_duration_seconds",
			Help:    "Background task duration in seconds by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// WAL / replication metrics
	WalSequence = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rem_wal_sequence",
			Help: "Current WAL sequence number by tenant",
		},
		[]string{"tenant"},
	)

	ReplicationLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "rem_replication_lag",
			Help: "Difference between local WAL sequence and a peer's acknowledged watermark",
		},
		[]string{"tenant", "peer"},
	)

	ReplicationBytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rem_replication_bytes_total",
			Help: "Total bytes streamed to replication peers",
		},
		[]string{"tenant", "peer", "direction"},
	)

	ReplicationGapsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rem_replication_gaps_total",
			Help: "Total number of sequence gaps detected from replication peers",
		},
		[]string{"tenant", "peer"},
	)
)

func init() {
	prometheus.MustRegister(EntityWritesTotal)
	prometheus.MustRegister(EntityWriteDuration)
	prometheus.MustRegister(EntityReadDuration)
	prometheus.MustRegister(EntitiesTotal)
	prometheus.MustRegister(SchemasRegisteredTotal)
	prometheus.MustRegister(VectorSearchDuration)
	prometheus.MustRegister(VectorUpsertDuration)
	prometheus.MustRegister(VectorIndexSize)
	prometheus.MustRegister(QueryParseDuration)
	prometheus.MustRegister(QueryPlanMode)
	prometheus.MustRegister(QueryExecDuration)
	prometheus.MustRegister(WorkerQueueDepth)
	prometheus.MustRegister(WorkerTasksTotal)
	prometheus.MustRegister(WorkerTaskDuration)
	prometheus.MustRegister(WalSequence)
	prometheus.MustRegister(ReplicationLag)
	prometheus.MustRegister(ReplicationBytesTotal)
	prometheus.MustRegister(ReplicationGapsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
