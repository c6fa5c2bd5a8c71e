package kv

import (
	"bytes"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/cuemby/rem/pkg/remerr"
)

// Op is a single write in a Batch: Value == nil means delete.
type Op struct {
	Bucket []byte
	Key    []byte
	Value  []byte
}

func Put(bucket, key, value []byte) Op { return Op{Bucket: bucket, Key: key, Value: value} }
func Delete(bucket, key []byte) Op     { return Op{Bucket: bucket, Key: key, Value: nil} }

// Get reads a single key from bucket. Returns remerr.ErrNotFound if absent.
func (s *Store) Get(tenant string, bucket, key []byte) ([]byte, error) {
	db, err := s.db(tenant)
	if err != nil {
		return nil, err
	}
	var out []byte
	err = db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("kv: unknown bucket %s", bucket)
		}
		v := b.Get(key)
		if v == nil {
			return remerr.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PutOne is a convenience single-key write.
func (s *Store) PutOne(tenant string, bucket, key, value []byte) error {
	return s.Batch(tenant, []Op{Put(bucket, key, value)})
}

// DeleteOne is a convenience single-key delete.
func (s *Store) DeleteOne(tenant string, bucket, key []byte) error {
	return s.Batch(tenant, []Op{Delete(bucket, key)})
}

// Batch applies every op inside one bolt.Update transaction, so a crash
// mid-write never leaves a partially applied entity+index+fuzzy-index+edge
// fan-out (spec §4.4's atomic batch write).
func (s *Store) Batch(tenant string, ops []Op) error {
	db, err := s.db(tenant)
	if err != nil {
		return err
	}
	return db.Update(func(tx *bolt.Tx) error {
		for _, op := range ops {
			b := tx.Bucket(op.Bucket)
			if b == nil {
				return fmt.Errorf("kv: unknown bucket %s", op.Bucket)
			}
			if op.Value == nil {
				if err := b.Delete(op.Key); err != nil {
					return err
				}
				continue
			}
			if err := b.Put(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// PrefixIter walks every key in bucket with the given prefix in
// lexicographic order, invoking fn(key, value) for each. fn returning an
// error stops the walk early and PrefixIter returns that error.
func (s *Store) PrefixIter(tenant string, bucket, prefix []byte, fn func(key, value []byte) error) error {
	db, err := s.db(tenant)
	if err != nil {
		return err
	}
	return db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return fmt.Errorf("kv: unknown bucket %s", bucket)
		}
		c := b.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			if err := fn(k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

// CountPrefix returns the number of keys under prefix, used by the
// metrics collector for entity/index counts without materializing rows.
func (s *Store) CountPrefix(tenant string, bucket, prefix []byte) (int, error) {
	n := 0
	err := s.PrefixIter(tenant, bucket, prefix, func(_, _ []byte) error {
		n++
		return nil
	})
	return n, err
}

// Tenants lists every tenant whose database has been opened so far. It
// does not scan the filesystem for tenants that were never touched this
// process lifetime.
func (s *Store) Tenants() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.dbs))
	for t := range s.dbs {
		out = append(out, t)
	}
	return out
}
