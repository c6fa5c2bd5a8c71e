package entity

import (
	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/types"
)

// ScanType prefix-iterates every entity record of typ in tenant, in
// key (and therefore ascending uuid) order — the query engine's default
// ordering for a scan without ORDER BY (spec §4.7.3) and the backbone of
// both Scan mode and the candidate-resolution step of Index mode (spec
// §4.7.2). A type with no registered schema, or no entities yet, returns
// an empty slice rather than an error (spec §4.7.2 "scanning a
// nonexistent type returns empty").
func (s *Store) ScanType(tenant, typ string, includeDeleted bool) ([]*types.Entity, error) {
	var out []*types.Entity
	err := s.kv.PrefixIter(tenant, kv.BucketDefault, codec.EntityTypePrefix(tenant, typ), func(key, value []byte) error {
		e, err := codec.DecodeEntity(value)
		if err != nil {
			return nil
		}
		if e.Deleted() && !includeDeleted {
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}
