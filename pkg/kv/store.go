// Package kv implements rem's embedded storage layer: one bbolt database
// per tenant, with a fixed set of column-family buckets shared by every
// higher layer (pkg/entity, pkg/graph, pkg/vector, pkg/replication).
package kv

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/remerr"
)

// Column families. Every tenant database carries all five buckets,
// created on first open.
var (
	BucketDefault    = []byte("default")
	BucketEdges      = []byte("edges")
	BucketIndexes    = []byte("indexes")
	BucketWal        = []byte("wal")
	BucketVectorMeta = []byte("vector_meta")
)

var allBuckets = [][]byte{BucketDefault, BucketEdges, BucketIndexes, BucketWal, BucketVectorMeta}

// Store owns one *bolt.DB per tenant, opened lazily on first touch and
// cached for the lifetime of the process.
type Store struct {
	root string

	mu   sync.RWMutex
	dbs  map[string]*bolt.DB

	seqMu sync.Mutex
	seqs  map[string]uint64 // in-memory cache of per-tenant WAL sequence counters
}

// NewStore creates a Store rooted at dataDir. Each tenant gets a
// subdirectory dataDir/<tenant>/rem.db, mirroring one bolt.DB per tenant
// directory.
func NewStore(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating data dir: %v", remerr.ErrIO, err)
	}
	return &Store{
		root: dataDir,
		dbs:  make(map[string]*bolt.DB),
		seqs: make(map[string]uint64),
	}, nil
}

// Close closes every opened tenant database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for tenant, db := range s.dbs {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("kv: closing tenant %s: %w", tenant, err)
		}
	}
	return firstErr
}

// Sync forces a durable fsync of tenant's database file. bbolt fsyncs
// every committed transaction by default, so in normal operation this is
// a no-op flush; it exists as the worker's FlushWal task target (spec
// §4.6) for the case an operator has traded durability for batch-insert
// throughput and wants an explicit checkpoint.
func (s *Store) Sync(tenant string) error {
	db, err := s.db(tenant)
	if err != nil {
		return err
	}
	if err := db.Sync(); err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrIO, err)
	}
	return nil
}

// db returns the (possibly newly opened) bolt.DB for tenant.
func (s *Store) db(tenant string) (*bolt.DB, error) {
	s.mu.RLock()
	db, ok := s.dbs[tenant]
	s.mu.RUnlock()
	if ok {
		return db, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.dbs[tenant]; ok {
		return db, nil
	}

	dir := filepath.Join(s.root, tenant)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating tenant dir: %v", remerr.ErrIO, err)
	}
	dbPath := filepath.Join(dir, "rem.db")
	opened, err := bolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, mapBoltOpenErr(err)
	}
	err = opened.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("creating bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		opened.Close()
		return nil, fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}

	s.dbs[tenant] = opened
	log.WithTenant(tenant).Debug().Str("path", dbPath).Msg("tenant database opened")
	return opened, nil
}

func mapBoltOpenErr(err error) error {
	if os.IsPermission(err) {
		return fmt.Errorf("%w: %v", remerr.ErrIO, err)
	}
	if pathErr, ok := err.(*os.PathError); ok && pathErr.Err.Error() == "no space left on device" {
		return fmt.Errorf("%w: %v", remerr.ErrDiskFull, err)
	}
	return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
}
