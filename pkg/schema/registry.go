// Package schema implements rem's schema registry: JSON-Schema validated
// entity type descriptions, cached compiled validators, and the category
// taxonomy (system/user/public/agents) that governs who may register what.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/cuemby/rem/pkg/codec"
	"github.com/cuemby/rem/pkg/log"
	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

// entry pairs a schema description with its compiled validator, so
// Validate never recompiles the JSON-Schema document on the hot path.
type entry struct {
	desc     *types.SchemaDescription
	compiled *jsonschema.Schema
}

// Store persists schema descriptions; one Store backs a Registry for
// every tenant, each method taking the tenant. Kept as a narrow interface
// so a Registry can run over an in-memory fake instead of pkg/kv.
type Store interface {
	PutSchema(tenant string, desc *types.SchemaDescription) error
	GetSchema(tenant, name string) (*types.SchemaDescription, error)
	ListSchemas(tenant string) ([]*types.SchemaDescription, error)
}

// Registry is the in-memory compiled-schema cache fronting a Store. Every
// register/get goes through the cache first; only a miss or a version
// bump touches the store and the jsonschema compiler.
type Registry struct {
	store Store

	mu    sync.RWMutex
	cache map[string]map[string]*entry // tenant -> name -> entry
}

func NewRegistry(store Store) *Registry {
	return &Registry{
		store: store,
		cache: make(map[string]map[string]*entry),
	}
}

// Register validates desc.JSONSchema compiles and desc itself is
// well-formed, persists the description, and installs the compiled
// validator in the cache. A re-register of an existing name with no
// explicit Version bumps Version and invalidates the old cache entry; a
// re-register that names a Version already on file fails SchemaExists.
func (r *Registry) Register(tenant string, desc *types.SchemaDescription) error {
	if err := codec.ValidateTenantID(tenant); err != nil {
		return err
	}
	compiled, err := compile(desc.Name, desc.JSONSchema)
	if err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrSchemaInvalid, err)
	}
	if err := validateDescription(desc); err != nil {
		return err
	}

	r.mu.Lock()
	tenantCache, ok := r.cache[tenant]
	if !ok {
		tenantCache = make(map[string]*entry)
		r.cache[tenant] = tenantCache
	}
	existing, ok := tenantCache[desc.Name]
	if !ok {
		if stored, err := r.store.GetSchema(tenant, desc.Name); err == nil {
			existing = &entry{desc: stored}
			ok = true
		}
	}
	if ok {
		if desc.Version != 0 {
			if desc.Version <= existing.desc.Version {
				r.mu.Unlock()
				return fmt.Errorf("%w: %s version %d already registered", remerr.ErrSchemaExists, desc.Name, existing.desc.Version)
			}
		} else {
			desc.Version = existing.desc.Version + 1
		}
	} else if desc.Version == 0 {
		desc.Version = 1
	}
	r.mu.Unlock()

	if err := r.store.PutSchema(tenant, desc); err != nil {
		return err
	}

	r.mu.Lock()
	tenantCache[desc.Name] = &entry{desc: desc, compiled: compiled}
	r.mu.Unlock()

	log.WithTenant(tenant).Info().
		Str("schema_type", desc.Name).Int("version", desc.Version).Msg("schema registered")
	return nil
}

// Get returns the schema description for (tenant, name), loading from the
// store and compiling on a cache miss.
func (r *Registry) Get(tenant, name string) (*types.SchemaDescription, error) {
	e, err := r.lookup(tenant, name)
	if err != nil {
		return nil, err
	}
	return e.desc, nil
}

// ListByCategory returns every registered schema in tenant matching cat.
// An empty cat returns all schemas.
func (r *Registry) ListByCategory(tenant string, cat types.SchemaCategory) ([]*types.SchemaDescription, error) {
	descs, err := r.store.ListSchemas(tenant)
	if err != nil {
		return nil, err
	}
	if cat == "" {
		return descs, nil
	}
	out := descs[:0:0]
	for _, d := range descs {
		if d.Category == cat {
			out = append(out, d)
		}
	}
	return out, nil
}

// Validate checks properties against the registered schema for
// (tenant, typ), returning remerr.ErrValidationFailed with the underlying
// jsonschema error wrapped in on failure.
func (r *Registry) Validate(tenant, typ string, properties map[string]types.Value) error {
	e, err := r.lookup(tenant, typ)
	if err != nil {
		return err
	}

	native := make(map[string]any, len(properties))
	for k, v := range properties {
		native[k] = v.Native()
	}

	// jsonschema validates against decoded JSON values (float64, not int64),
	// so round-trip through json to normalize numeric kinds the same way a
	// client's raw JSON payload would be normalized.
	raw, err := json.Marshal(native)
	if err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrValidationFailed, err)
	}
	var instance any
	if err := json.Unmarshal(raw, &instance); err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrValidationFailed, err)
	}

	if err := e.compiled.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrValidationFailed, err)
	}
	return nil
}

func (r *Registry) lookup(tenant, name string) (*entry, error) {
	r.mu.RLock()
	if tenantCache, ok := r.cache[tenant]; ok {
		if e, ok := tenantCache[name]; ok {
			r.mu.RUnlock()
			return e, nil
		}
	}
	r.mu.RUnlock()

	desc, err := r.store.GetSchema(tenant, name)
	if err != nil {
		return nil, err
	}
	compiled, err := compile(desc.Name, desc.JSONSchema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}

	r.mu.Lock()
	tenantCache, ok := r.cache[tenant]
	if !ok {
		tenantCache = make(map[string]*entry)
		r.cache[tenant] = tenantCache
	}
	e := &entry{desc: desc, compiled: compiled}
	tenantCache[name] = e
	r.mu.Unlock()
	return e, nil
}

// validateDescription enforces the SchemaInvalid conditions beyond "the
// JSON-Schema document compiles": indexed_fields and embeddable_fields
// must name properties the schema actually declares, and any embedding
// slot an embeddable field targets must have a positive declared
// dimension.
func validateDescription(desc *types.SchemaDescription) error {
	props, err := schemaPropertyNames(desc.JSONSchema)
	if err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrSchemaInvalid, err)
	}

	for _, f := range desc.IndexedFields {
		if len(props) > 0 && !props[f] {
			return fmt.Errorf("%w: indexed field %q is not a schema property", remerr.ErrSchemaInvalid, f)
		}
	}

	for _, ef := range desc.EmbeddableFields {
		if len(props) > 0 && !props[ef.Property] {
			return fmt.Errorf("%w: embeddable field %q is not a schema property", remerr.ErrSchemaInvalid, ef.Property)
		}
		switch ef.Slot {
		case "embedding":
			if desc.EmbeddingDim <= 0 {
				return fmt.Errorf("%w: embeddable field %q targets embedding but embedding_dim is not positive", remerr.ErrSchemaInvalid, ef.Property)
			}
		case "embedding_alt":
			if desc.EmbeddingAltDim <= 0 {
				return fmt.Errorf("%w: embeddable field %q targets embedding_alt but embedding_alt_dim is not positive", remerr.ErrSchemaInvalid, ef.Property)
			}
		default:
			return fmt.Errorf("%w: embeddable field %q has unknown slot %q", remerr.ErrSchemaInvalid, ef.Property, ef.Slot)
		}
	}
	return nil
}

// schemaPropertyNames extracts the top-level "properties" keys of a
// JSON-Schema document. Schemas built from $ref/$defs composition without
// a top-level "properties" object return an empty (not erroring) set, so
// validateDescription skips the property-membership check rather than
// rejecting schemas it cannot introspect.
func schemaPropertyNames(doc []byte) (map[string]bool, error) {
	var shape struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	if err := json.Unmarshal(doc, &shape); err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(shape.Properties))
	for name := range shape.Properties {
		names[name] = true
	}
	return names, nil
}

// compile compiles a raw JSON-Schema document into a jsonschema.Schema,
// using a resource URL scoped to the schema name so $ref resolution
// between two tenants' schemas of the same name never collide within one
// compiler instance.
func compile(name string, doc []byte) (*jsonschema.Schema, error) {
	url := fmt.Sprintf("rem://schema/%s.json", name)
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, bytes.NewReader(doc)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
