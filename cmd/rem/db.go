package main

import (
	"context"
	"fmt"

	"github.com/cuemby/rem/pkg/entity"
	"github.com/cuemby/rem/pkg/events"
	"github.com/cuemby/rem/pkg/graph"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/query"
	"github.com/cuemby/rem/pkg/schema"
	"github.com/cuemby/rem/pkg/vector"
	"github.com/cuemby/rem/pkg/worker"
)

// database bundles one rem instance's layers, opened read-write against a
// data directory for the lifetime of a single CLI invocation.
type database struct {
	kv       *kv.Store
	schemas  *schema.Registry
	entities *entity.Store
	graphs   *graph.Store
	vectors  *vector.Manager
	engine   *query.Engine
	broker   *events.Broker
	worker   *worker.Worker
}

// openDatabase wires up every layer the way pkg/query's test harness does
// (pkg/query/exec_test.go's newTestEngine), plus a worker for the
// maintenance commands (rem maintenance compact/flush-wal): this CLI hosts
// no embedding model (spec.md's non-goals), so SEARCH 'text' IN type and
// embedding.cosine('text') still fail with noEmbedder's error, and any
// GenerateEmbedding task the entity store enqueues is a no-op in a worker
// with no embedder — but Compact and FlushWal need no model, so the
// worker is wired regardless.
func openDatabase(dir string) (*database, error) {
	store, err := kv.NewStore(dir)
	if err != nil {
		return nil, fmt.Errorf("open data directory %s: %w", dir, err)
	}

	broker := events.NewBroker()
	broker.Start()
	schemas := schema.NewRegistry(schema.NewKVStore(store))
	entities := entity.NewStore(store, schemas, nil, entity.DefaultConfig())
	entities.SetEvents(broker)
	graphs := graph.NewStore(store)
	entities.SetEdges(graphs)
	vmgr := vector.NewManager(vector.NewIndex(), store, schemas)
	entities.SetVectors(vmgr)
	engine := query.NewEngine(entities, graphs, vmgr, schemas, noEmbedder{})

	w := worker.New(worker.Config{
		Entities:  entities,
		Vectors:   vmgr,
		Compactor: entities,
		WalSyncer: store,
		Broker:    broker,
	})
	entities.SetWorker(w)
	if err := w.Open(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}

	return &database{
		kv: store, schemas: schemas, entities: entities,
		graphs: graphs, vectors: vmgr, engine: engine, broker: broker,
		worker: w,
	}, nil
}

func (d *database) Close() error {
	d.worker.Close()
	return d.kv.Close()
}

// noEmbedder reports that this process hosts no embedding model; the text
// of a SEARCH statement or an embedding.cosine('text') predicate fails instead of resolving to a
// useless zero vector.
type noEmbedder struct{}

func (noEmbedder) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("rem: no embedding model configured for this process")
}
