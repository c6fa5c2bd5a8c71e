package codec

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/cuemby/rem/pkg/types"
)

func writeTime(buf *bytes.Buffer, t time.Time) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(t.UnixNano()))
	buf.Write(tmp[:])
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var tmp [8]byte
	if _, err := io.ReadFull(r, tmp[:]); err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, int64(binary.BigEndian.Uint64(tmp[:]))).UTC(), nil
}

func writeFloat32Slice(buf *bytes.Buffer, v []float32) {
	writeUvarint(buf, uint64(len(v)))
	var tmp [4]byte
	for _, f := range v {
		binary.BigEndian.PutUint32(tmp[:], math.Float32bits(f))
		buf.Write(tmp[:])
	}
}

func readFloat32Slice(r *bytes.Reader) ([]float32, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	out := make([]float32, n)
	var tmp [4]byte
	for i := range out {
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return nil, err
		}
		out[i] = math.Float32frombits(binary.BigEndian.Uint32(tmp[:]))
	}
	return out, nil
}

// EncodeEntity serializes an Entity into the self-describing binary
// record stored at its EntityKey.
func EncodeEntity(e *types.Entity) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(mustUUIDBytes(e.ID))
	writeString(&buf, e.TenantID)
	writeString(&buf, e.Type)
	writeString(&buf, e.Name)
	if err := EncodeProperties(&buf, e.Properties); err != nil {
		return nil, err
	}
	writeFloat32Slice(&buf, e.Embedding)
	writeFloat32Slice(&buf, e.EmbeddingAlt)
	writeTime(&buf, e.CreatedAt)
	writeTime(&buf, e.ModifiedAt)
	if e.DeletedAt != nil {
		buf.WriteByte(1)
		writeTime(&buf, *e.DeletedAt)
	} else {
		buf.WriteByte(0)
	}
	writeString(&buf, e.OriginNodeID)
	return buf.Bytes(), nil
}

// DecodeEntity is the inverse of EncodeEntity.
func DecodeEntity(data []byte) (*types.Entity, error) {
	r := bytes.NewReader(data)
	var idBytes [16]byte
	if _, err := io.ReadFull(r, idBytes[:]); err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(idBytes[:])
	if err != nil {
		return nil, err
	}
	e := &types.Entity{ID: id}
	if e.TenantID, err = readString(r); err != nil {
		return nil, err
	}
	if e.Type, err = readString(r); err != nil {
		return nil, err
	}
	if e.Name, err = readString(r); err != nil {
		return nil, err
	}
	if e.Properties, err = DecodeProperties(r); err != nil {
		return nil, err
	}
	if e.Embedding, err = readFloat32Slice(r); err != nil {
		return nil, err
	}
	if e.EmbeddingAlt, err = readFloat32Slice(r); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = readTime(r); err != nil {
		return nil, err
	}
	if e.ModifiedAt, err = readTime(r); err != nil {
		return nil, err
	}
	hasDeleted, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if hasDeleted == 1 {
		t, err := readTime(r)
		if err != nil {
			return nil, err
		}
		e.DeletedAt = &t
	}
	if e.OriginNodeID, err = readString(r); err != nil {
		return nil, err
	}
	return e, nil
}

func EncodeEdge(e *types.Edge) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, e.TenantID)
	buf.Write(mustUUIDBytes(e.SrcID))
	buf.Write(mustUUIDBytes(e.DstID))
	writeString(&buf, e.EdgeType)
	if err := EncodeProperties(&buf, e.Properties); err != nil {
		return nil, err
	}
	writeTime(&buf, e.CreatedAt)
	return buf.Bytes(), nil
}

func DecodeEdge(data []byte) (*types.Edge, error) {
	r := bytes.NewReader(data)
	e := &types.Edge{}
	var err error
	if e.TenantID, err = readString(r); err != nil {
		return nil, err
	}
	var srcBytes, dstBytes [16]byte
	if _, err := io.ReadFull(r, srcBytes[:]); err != nil {
		return nil, err
	}
	if e.SrcID, err = uuid.FromBytes(srcBytes[:]); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, dstBytes[:]); err != nil {
		return nil, err
	}
	if e.DstID, err = uuid.FromBytes(dstBytes[:]); err != nil {
		return nil, err
	}
	if e.EdgeType, err = readString(r); err != nil {
		return nil, err
	}
	if e.Properties, err = DecodeProperties(r); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = readTime(r); err != nil {
		return nil, err
	}
	return e, nil
}

func EncodeSchema(s *types.SchemaDescription) ([]byte, error) {
	var buf bytes.Buffer
	writeString(&buf, s.Name)
	writeBytesField(&buf, s.JSONSchema)
	writeString(&buf, string(s.Category))
	writeUvarint(&buf, uint64(s.Version))
	writeUvarint(&buf, uint64(s.EmbeddingDim))
	writeUvarint(&buf, uint64(s.EmbeddingAltDim))
	writeString(&buf, string(s.Metric))
	writeUvarint(&buf, uint64(len(s.IndexedFields)))
	for _, f := range s.IndexedFields {
		writeString(&buf, f)
	}
	writeString(&buf, s.KeyField)
	writeUvarint(&buf, uint64(len(s.EmbeddableFields)))
	for _, f := range s.EmbeddableFields {
		writeString(&buf, f.Property)
		writeString(&buf, f.Slot)
	}
	writeUvarint(&buf, uint64(len(s.ToolRefs)))
	for _, f := range s.ToolRefs {
		writeString(&buf, f)
	}
	return buf.Bytes(), nil
}

func DecodeSchema(data []byte) (*types.SchemaDescription, error) {
	r := bytes.NewReader(data)
	s := &types.SchemaDescription{}
	var err error
	if s.Name, err = readString(r); err != nil {
		return nil, err
	}
	if s.JSONSchema, err = readBytesField(r); err != nil {
		return nil, err
	}
	cat, err := readString(r)
	if err != nil {
		return nil, err
	}
	s.Category = types.SchemaCategory(cat)
	v, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	s.Version = int(v)
	d, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	s.EmbeddingDim = int(d)
	da, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	s.EmbeddingAltDim = int(da)
	metric, err := readString(r)
	if err != nil {
		return nil, err
	}
	s.Metric = types.VectorMetric(metric)
	nIdx, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	s.IndexedFields = make([]string, nIdx)
	for i := range s.IndexedFields {
		if s.IndexedFields[i], err = readString(r); err != nil {
			return nil, err
		}
	}
	if s.KeyField, err = readString(r); err != nil {
		return nil, err
	}
	nEmb, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if nEmb > 0 {
		s.EmbeddableFields = make([]types.EmbeddableField, nEmb)
	}
	for i := range s.EmbeddableFields {
		if s.EmbeddableFields[i].Property, err = readString(r); err != nil {
			return nil, err
		}
		if s.EmbeddableFields[i].Slot, err = readString(r); err != nil {
			return nil, err
		}
	}
	nTools, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if nTools > 0 {
		s.ToolRefs = make([]string, nTools)
	}
	for i := range s.ToolRefs {
		if s.ToolRefs[i], err = readString(r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// EncodeWALEntry serializes a WAL entry including its checksum, computed
// over the entry's key+value payload (spec §3 "checksum over the payload").
func EncodeWALEntry(e *types.WALEntry) []byte {
	var buf bytes.Buffer
	writeString(&buf, e.TenantID)
	writeUvarint(&buf, e.Seq)
	writeTime(&buf, e.Timestamp)
	buf.WriteByte(byte(e.Op))
	writeBytesField(&buf, e.Key)
	writeBytesField(&buf, e.Value)
	var csum [4]byte
	binary.BigEndian.PutUint32(csum[:], ChecksumPayload(e.Key, e.Value))
	buf.Write(csum[:])
	return buf.Bytes()
}

func DecodeWALEntry(data []byte) (*types.WALEntry, error) {
	r := bytes.NewReader(data)
	e := &types.WALEntry{}
	var err error
	if e.TenantID, err = readString(r); err != nil {
		return nil, err
	}
	if e.Seq, err = readUvarint(r); err != nil {
		return nil, err
	}
	if e.Timestamp, err = readTime(r); err != nil {
		return nil, err
	}
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	e.Op = types.WALOp(op)
	if e.Key, err = readBytesField(r); err != nil {
		return nil, err
	}
	if e.Value, err = readBytesField(r); err != nil {
		return nil, err
	}
	var csum [4]byte
	if _, err := io.ReadFull(r, csum[:]); err != nil {
		return nil, err
	}
	e.Checksum = binary.BigEndian.Uint32(csum[:])
	return e, nil
}

// ChecksumPayload computes the CRC-32 checksum a WAL entry's key/value
// pair must match on replay or replication (spec §4.8 "validate checksum").
func ChecksumPayload(key, value []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(key)
	h.Write(value)
	return h.Sum32()
}

func mustUUIDBytes(id uuid.UUID) []byte {
	b, _ := id.MarshalBinary()
	return b
}

