package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/rem/pkg/events"
	"github.com/cuemby/rem/pkg/types"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	calls int
	failN int
	vec   []float32
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failN {
		return nil, errors.New("embedding backend unavailable")
	}
	return f.vec, nil
}

type fakeEntities struct {
	mu  sync.Mutex
	set []types.Task
}

func (f *fakeEntities) SetEmbedding(tenant string, task types.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = append(f.set, task)
	return nil
}

type fakeVectors struct {
	mu     sync.Mutex
	saved  int
	loaded int
}

func (f *fakeVectors) SaveSnapshot(_, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved++
	return nil
}

func (f *fakeVectors) LoadSnapshot(_, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded++
	return nil
}

type fakeCompactor struct {
	mu     sync.Mutex
	calls  int
	tenant string
	before time.Time
}

func (f *fakeCompactor) Compact(tenant string, before time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tenant = tenant
	f.before = before
	return nil
}

type fakeWalSyncer struct {
	mu     sync.Mutex
	synced []string
}

func (f *fakeWalSyncer) Sync(tenant string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced = append(f.synced, tenant)
	return nil
}

type memPending struct {
	mu      sync.Mutex
	pending map[string]types.Task
}

func newMemPending() *memPending {
	return &memPending{pending: make(map[string]types.Task)}
}

func (p *memPending) SavePending(task types.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending[task.EntityID.String()+string(task.Kind)] = task
	return nil
}

func (p *memPending) ClearPending(task types.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pending, task.EntityID.String()+string(task.Kind))
	return nil
}

func (p *memPending) ListPending() ([]types.Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.Task, 0, len(p.pending))
	for _, t := range p.pending {
		out = append(out, t)
	}
	return out, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEnqueueGeneratesEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{1, 2, 3}}
	entities := &fakeEntities{}
	w := New(Config{Embedder: embedder, Entities: entities})
	require.NoError(t, w.Open())
	defer w.Close()

	id := uuid.New()
	require.NoError(t, w.Enqueue(types.Task{
		Kind: types.TaskGenerateEmbedding, TenantID: "acct_1", Type: "docs",
		Field: "embedding", EntityID: id, Text: "hello world",
	}))

	waitFor(t, func() bool {
		entities.mu.Lock()
		defer entities.mu.Unlock()
		return len(entities.set) == 1
	})
	require.Equal(t, []float32{1, 2, 3}, entities.set[0].Embedding)
}

func TestEmbeddingRetriesThenSucceeds(t *testing.T) {
	embedder := &fakeEmbedder{vec: []float32{9}, failN: 2}
	entities := &fakeEntities{}
	w := New(Config{Embedder: embedder, Entities: entities})
	require.NoError(t, w.Open())
	defer w.Close()

	require.NoError(t, w.Enqueue(types.Task{
		Kind: types.TaskGenerateEmbedding, TenantID: "acct_1", Type: "docs",
		EntityID: uuid.New(), Text: "x",
	}))

	waitFor(t, func() bool {
		entities.mu.Lock()
		defer entities.mu.Unlock()
		return len(entities.set) == 1
	})
	embedder.mu.Lock()
	defer embedder.mu.Unlock()
	require.Equal(t, 3, embedder.calls)
}

func TestEmbeddingExhaustsRetriesAndPublishesFailure(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	embedder := &fakeEmbedder{failN: 100}
	entities := &fakeEntities{}
	w := New(Config{Embedder: embedder, Entities: entities, Broker: broker})
	require.NoError(t, w.Open())
	defer w.Close()

	require.NoError(t, w.Enqueue(types.Task{
		Kind: types.TaskGenerateEmbedding, TenantID: "acct_1", EntityID: uuid.New(), Text: "x",
	}))

	waitFor(t, func() bool {
		embedder.mu.Lock()
		defer embedder.mu.Unlock()
		return embedder.calls == 3
	})
	select {
	case ev := <-sub:
		require.Equal(t, events.EventEmbeddingFailed, ev.Type)
		require.Equal(t, "acct_1", ev.Tenant)
	case <-time.After(2 * time.Second):
		t.Fatal("no embedding-failed event published")
	}
	entities.mu.Lock()
	defer entities.mu.Unlock()
	require.Empty(t, entities.set)
}

func TestSaveIndexTaskNoRetry(t *testing.T) {
	vectors := &fakeVectors{}
	w := New(Config{Vectors: vectors})
	require.NoError(t, w.Open())
	defer w.Close()

	require.NoError(t, w.Enqueue(types.Task{Kind: types.TaskSaveIndex, TenantID: "acct_1", Type: "docs", Field: "embedding"}))
	waitFor(t, func() bool {
		vectors.mu.Lock()
		defer vectors.mu.Unlock()
		return vectors.saved == 1
	})
}

func TestQueueFullReturnsError(t *testing.T) {
	w := New(Config{QueueDepth: 1})
	// Don't Open: nothing drains the queue, so the second enqueue must fail.
	require.NoError(t, w.Enqueue(types.Task{Kind: types.TaskFlushWal, TenantID: "acct_1"}))
	err := w.Enqueue(types.Task{Kind: types.TaskFlushWal, TenantID: "acct_1"})
	require.Error(t, err)
}

func TestOpenReenqueuesPendingTasks(t *testing.T) {
	pending := newMemPending()
	vectors := &fakeVectors{}
	w1 := New(Config{Vectors: vectors, Persist: pending})
	require.NoError(t, w1.Enqueue(types.Task{Kind: types.TaskSaveIndex, TenantID: "acct_1", Type: "docs"}))
	// Simulate a crash: never Open w1, so the task was persisted but never processed.

	w2 := New(Config{Vectors: vectors, Persist: pending})
	require.NoError(t, w2.Open())
	defer w2.Close()

	waitFor(t, func() bool {
		vectors.mu.Lock()
		defer vectors.mu.Unlock()
		return vectors.saved == 1
	})
}

func TestUnknownTaskKind(t *testing.T) {
	w := New(Config{})
	err := w.execute(types.Task{Kind: types.TaskKind("bogus")})
	require.Error(t, err)
}

func TestFlushWalTaskSyncsStorage(t *testing.T) {
	syncer := &fakeWalSyncer{}
	w := New(Config{WalSyncer: syncer})
	require.NoError(t, w.Open())
	defer w.Close()

	require.NoError(t, w.Enqueue(types.Task{Kind: types.TaskFlushWal, TenantID: "acct_1"}))
	waitFor(t, func() bool {
		syncer.mu.Lock()
		defer syncer.mu.Unlock()
		return len(syncer.synced) == 1
	})
	require.Equal(t, "acct_1", syncer.synced[0])
}

func TestCompactTaskInvokesCompactor(t *testing.T) {
	compactor := &fakeCompactor{}
	w := New(Config{Compactor: compactor})
	require.NoError(t, w.Open())
	defer w.Close()

	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	require.NoError(t, w.Enqueue(types.Task{Kind: types.TaskCompact, TenantID: "acct_1", Before: cutoff}))
	waitFor(t, func() bool {
		compactor.mu.Lock()
		defer compactor.mu.Unlock()
		return compactor.calls == 1
	})
	require.Equal(t, "acct_1", compactor.tenant)
	require.True(t, compactor.before.Equal(cutoff))
}
