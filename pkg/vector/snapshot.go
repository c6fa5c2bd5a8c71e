package vector

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/remerr"
	"github.com/cuemby/rem/pkg/types"
)

var snapshotMagic = [8]byte{'H', 'N', 'S', 'W', 'S', 'N', 'A', 'P'}

const snapshotVersion = 1

// Snapshot serializes the (tenant, type, field) graph to the on-disk
// format used by vector_meta/{type}.{field}.hnsw: magic, version,
// dimension, element count and graph byte length (big-endian u32 each),
// the graph's own exported bytes, then a side array of 16-byte UUIDs.
func (idx *Index) Snapshot(w io.Writer, tenant, typ, field string) error {
	key := graphKey{tenant, typ, field}
	idx.mu.RLock()
	e, ok := idx.graphs[key]
	idx.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: no vector index for %s/%s/%s", remerr.ErrNotFound, tenant, typ, field)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	var graphBuf bytes.Buffer
	if err := e.graph.Export(&graphBuf); err != nil {
		return fmt.Errorf("%w: exporting hnsw graph: %v", remerr.ErrIO, err)
	}

	var header bytes.Buffer
	header.Write(snapshotMagic[:])
	writeU32(&header, snapshotVersion)
	writeU32(&header, uint32(e.dim))
	writeU32(&header, uint32(len(e.ids)))
	writeU32(&header, uint32(graphBuf.Len()))
	if _, err := w.Write(header.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(graphBuf.Bytes()); err != nil {
		return err
	}
	for _, id := range e.ids {
		parsed, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		b, _ := parsed.MarshalBinary()
		if _, err := w.Write(b); err != nil {
			return err
		}
	}
	return nil
}

// Restore reads a snapshot written by Snapshot and installs it as the
// (tenant, type, field) graph, replacing anything already there.
func (idx *Index) Restore(r io.Reader, tenant, typ, field string, metric types.VectorMetric) error {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}
	if magic != snapshotMagic {
		return fmt.Errorf("%w: bad snapshot magic", remerr.ErrCorrupt)
	}
	version, err := readU32(r)
	if err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}
	if version != snapshotVersion {
		return fmt.Errorf("%w: unsupported snapshot version %d", remerr.ErrCorrupt, version)
	}
	dim, err := readU32(r)
	if err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}
	count, err := readU32(r)
	if err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}
	graphLen, err := readU32(r)
	if err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}

	graphBytes := make([]byte, graphLen)
	if _, err := io.ReadFull(r, graphBytes); err != nil {
		return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
	}

	ids := make([]string, count)
	for i := range ids {
		var idBytes [16]byte
		if _, err := io.ReadFull(r, idBytes[:]); err != nil {
			return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
		}
		id, err := uuid.FromBytes(idBytes[:])
		if err != nil {
			return fmt.Errorf("%w: %v", remerr.ErrCorrupt, err)
		}
		ids[i] = id.String()
	}

	e := idx.entry(tenant, typ, field, metric)
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.graph.Import(bytes.NewReader(graphBytes)); err != nil {
		return fmt.Errorf("%w: importing hnsw graph: %v", remerr.ErrCorrupt, err)
	}
	e.dim = int(dim)
	e.ids = ids
	return nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	buf.Write(tmp[:])
}

func readU32(r io.Reader) (uint32, error) {
	var tmp [4]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(tmp[:]), nil
}
