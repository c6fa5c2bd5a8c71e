package schema

import (
	"errors"
	"fmt"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/kv"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

// KVStore implements Store on top of pkg/kv, storing schema descriptions
// in the default bucket under the entity:{tenant}:schema:{name} key.
type KVStore struct {
	kv *kv.Store
}

func NewKVStore(store *kv.Store) *KVStore {
	return &KVStore{kv: store}
}

func (s *KVStore) PutSchema(tenant string, desc *types.SchemaDescription) error {
	data, err := codec.EncodeSchema(desc)
	if err != nil {
		return err
	}
	return s.kv.PutOne(tenant, kv.BucketDefault, codec.SchemaKey(tenant, desc.Name), data)
}

func (s *KVStore) GetSchema(tenant, name string) (*types.SchemaDescription, error) {
	data, err := s.kv.Get(tenant, kv.BucketDefault, codec.SchemaKey(tenant, name))
	if err != nil {
		if errors.Is(err, remerr.ErrNotFound) {
			return nil, fmt.Errorf("%w: schema %q", remerr.ErrSchemaNotFound, name)
		}
		return nil, err
	}
	return codec.DecodeSchema(data)
}

func (s *KVStore) ListSchemas(tenant string) ([]*types.SchemaDescription, error) {
	var out []*types.SchemaDescription
	prefix := codec.SchemaKey(tenant, "")
	err := s.kv.PrefixIter(tenant, kv.BucketDefault, prefix, func(_, value []byte) error {
		desc, err := codec.DecodeSchema(value)
		if err != nil {
			return err
		}
		out = append(out, desc)
		return nil
	})
	return out, err
}
