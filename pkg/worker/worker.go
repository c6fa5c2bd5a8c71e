// Package worker runs rem's single-threaded background task queue: one
// goroutine drains a buffered channel of types.Task, generating embeddings,
// snapshotting/loading vector indexes, flushing WAL checkpoints, and
// compacting tombstones (spec §4.6).
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cuemby/rem/pkg/events"
	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/metrics"
	"github.com/cuemby/rem/pkg/types"
)

// Embedder turns text into a vector. Production wiring wraps a local model
// or an external embedding API; tests use a deterministic stub.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EntityUpdater is the narrow slice of pkg/entity the worker needs to write
// a generated embedding back onto its owning entity.
type EntityUpdater interface {
	SetEmbedding(tenant string, id types.Task) error
}

// VectorIndexer is the narrow slice of pkg/vector the worker needs for
// SaveIndex/LoadIndex tasks.
type VectorIndexer interface {
	SaveSnapshot(tenant, typ, field string) error
	LoadSnapshot(tenant, typ, field string) error
}

// Compactor performs retention-cutoff cleanup for TaskCompact.
type Compactor interface {
	Compact(tenant string, before time.Time) error
}

// WalSyncer durably flushes a tenant's storage for TaskFlushWal.
type WalSyncer interface {
	Sync(tenant string) error
}

// retryPolicy controls whether a task is retried after a failure and how
// long to wait before the next attempt.
type retryPolicy struct {
	maxAttempts int
	baseDelay   time.Duration
}

var retryPolicies = map[types.TaskKind]retryPolicy{
	// Embedding calls hit a network-backed model; spec §4.6 asks for 3
	// attempts with exponential backoff before giving up.
	types.TaskGenerateEmbedding: {maxAttempts: 3, baseDelay: 500 * time.Millisecond},
	// Everything else is a local operation: retrying won't fix a bug, so
	// fail once and move on.
	types.TaskSaveIndex: {maxAttempts: 1},
	types.TaskLoadIndex:  {maxAttempts: 1},
	types.TaskFlushWal:   {maxAttempts: 1},
	types.TaskCompact:    {maxAttempts: 1},
}

// Worker is the single-threaded background task processor.
type Worker struct {
	embedder  Embedder
	entities  EntityUpdater
	vectors   VectorIndexer
	compactor Compactor
	walSyncer WalSyncer
	broker    *events.Broker
	persist   PendingStore

	queue  chan types.Task
	stopCh chan struct{}
	doneCh chan struct{}
}

// PendingStore persists/clears tasks so an in-flight task isn't lost if the
// process is killed mid-queue; Open re-enqueues whatever's left (spec
// §4.6's graceful-shutdown requirement).
type PendingStore interface {
	SavePending(task types.Task) error
	ClearPending(task types.Task) error
	ListPending() ([]types.Task, error)
}

// Config configures the worker's queue depth and dependencies.
type Config struct {
	QueueDepth int
	Embedder   Embedder
	Entities   EntityUpdater
	Vectors    VectorIndexer
	Compactor  Compactor
	WalSyncer  WalSyncer
	Broker     *events.Broker
	Persist    PendingStore
}

func New(cfg Config) *Worker {
	depth := cfg.QueueDepth
	if depth <= 0 {
		depth = 256
	}
	return &Worker{
		embedder:  cfg.Embedder,
		entities:  cfg.Entities,
		vectors:   cfg.Vectors,
		compactor: cfg.Compactor,
		walSyncer: cfg.WalSyncer,
		broker:    cfg.Broker,
		persist:   cfg.Persist,
		queue:     make(chan types.Task, depth),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Open starts the processing loop and re-enqueues any task a prior process
// left pending at shutdown.
func (w *Worker) Open() error {
	if w.persist != nil {
		pending, err := w.persist.ListPending()
		if err != nil {
			return fmt.Errorf("worker: listing pending tasks: %w", err)
		}
		for _, t := range pending {
			select {
			case w.queue <- t:
			default:
				log.Warn("worker queue full while restoring pending tasks")
			}
		}
	}
	go w.run()
	return nil
}

// Enqueue hands a task to the queue. It persists the task first (if a
// PendingStore is configured) so Open can recover it after a crash.
func (w *Worker) Enqueue(task types.Task) error {
	select {
	case <-w.stopCh:
		return fmt.Errorf("worker: closed")
	default:
	}
	if w.persist != nil {
		if err := w.persist.SavePending(task); err != nil {
			return fmt.Errorf("worker: persisting pending task: %w", err)
		}
	}
	select {
	case w.queue <- task:
		metrics.WorkerQueueDepth.Set(float64(len(w.queue)))
		return nil
	default:
		return fmt.Errorf("worker: queue full (depth %d)", cap(w.queue))
	}
}

// Close stops accepting new tasks and waits for the current task to finish.
func (w *Worker) Close() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Worker) run() {
	defer close(w.doneCh)
	log.Info("worker started")
	for {
		select {
		case task := <-w.queue:
			metrics.WorkerQueueDepth.Set(float64(len(w.queue)))
			w.process(task)
		case <-w.stopCh:
			log.Info("worker stopped")
			return
		}
	}
}

func (w *Worker) process(task types.Task) {
	policy := retryPolicies[task.Kind]
	if policy.maxAttempts == 0 {
		policy.maxAttempts = 1
	}

	timer := metrics.NewTimer()
	var err error
	for attempt := 1; attempt <= policy.maxAttempts; attempt++ {
		err = w.execute(task)
		if err == nil {
			break
		}
		log.WithTaskID(string(task.Kind)).Warn().
			Err(err).Int("attempt", attempt).Str("tenant", task.TenantID).
			Msg("task attempt failed")
		if attempt < policy.maxAttempts {
			time.Sleep(policy.baseDelay * time.Duration(1<<(attempt-1)))
		}
	}
	timer.ObserveDurationVec(metrics.WorkerTaskDuration, string(task.Kind))

	status := "success"
	if err != nil {
		status = "failed"
		w.reportFailure(task, err)
	}
	metrics.WorkerTasksTotal.WithLabelValues(string(task.Kind), status).Inc()

	if w.persist != nil {
		if clearErr := w.persist.ClearPending(task); clearErr != nil {
			log.Error(fmt.Sprintf("worker: clearing pending task: %v", clearErr))
		}
	}
}

func (w *Worker) execute(task types.Task) error {
	switch task.Kind {
	case types.TaskGenerateEmbedding:
		return w.generateEmbedding(task)
	case types.TaskSaveIndex:
		if w.vectors == nil {
			return nil
		}
		return w.vectors.SaveSnapshot(task.TenantID, task.Type, task.Field)
	case types.TaskLoadIndex:
		if w.vectors == nil {
			return nil
		}
		return w.vectors.LoadSnapshot(task.TenantID, task.Type, task.Field)
	case types.TaskFlushWal:
		if w.walSyncer == nil {
			return nil
		}
		return w.walSyncer.Sync(task.TenantID)
	case types.TaskCompact:
		if w.compactor == nil {
			return nil
		}
		return w.compactor.Compact(task.TenantID, task.Before)
	default:
		return fmt.Errorf("worker: unknown task kind %q", task.Kind)
	}
}

func (w *Worker) generateEmbedding(task types.Task) error {
	if w.embedder == nil || w.entities == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vec, err := w.embedder.Embed(ctx, task.Text)
	if err != nil {
		return fmt.Errorf("embedding %s/%s: %w", task.Type, task.EntityID, err)
	}
	task.Embedding = vec
	return w.entities.SetEmbedding(task.TenantID, task)
}

func (w *Worker) reportFailure(task types.Task, err error) {
	if w.broker == nil {
		return
	}
	w.broker.Publish(&events.Event{
		Type:    events.EventEmbeddingFailed,
		Tenant:  task.TenantID,
		Message: err.Error(),
		Metadata: map[string]string{
			"kind": string(task.Kind),
			"type": task.Type,
		},
	})
}
