// Package codec implements the binary encoding of rem's keys and values:
// the tagged-union Value serialization, entity/edge/schema record framing,
// and the big-endian sequence-number encoding used for WAL ordering.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/cuemby/rem/pkg/types"
)

// writeUvarint/readUvarint give every variable-length field (strings,
// byte slices, list/map element counts) a compact self-describing length
// prefix, the same role protobuf's varint plays, without pulling in a
// protobuf runtime for a handful of primitive fields.
func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBytesField(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytesField(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeValue writes the tagged-union encoding of v: one kind byte
// followed by a kind-specific payload.
func EncodeValue(buf *bytes.Buffer, v types.Value) error {
	buf.WriteByte(byte(v.Kind()))
	switch v.Kind() {
	case types.KindNull:
	case types.KindBool:
		b, _ := v.Bool()
		if b {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case types.KindInt:
		i, _ := v.Int()
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], uint64(i))
		buf.Write(tmp[:])
	case types.KindFloat:
		f, _ := v.Float()
		var tmp [8]byte
		binary.BigEndian.PutUint64(tmp[:], math.Float64bits(f))
		buf.Write(tmp[:])
	case types.KindString:
		s, _ := v.String()
		writeString(buf, s)
	case types.KindBytes:
		b, _ := v.Bytes()
		writeBytesField(buf, b)
	case types.KindList:
		list, _ := v.List()
		writeUvarint(buf, uint64(len(list)))
		for _, e := range list {
			if err := EncodeValue(buf, e); err != nil {
				return err
			}
		}
	case types.KindMap:
		m, _ := v.Map()
		writeUvarint(buf, uint64(len(m)))
		for k, e := range m {
			writeString(buf, k)
			if err := EncodeValue(buf, e); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("codec: unknown value kind %d", v.Kind())
	}
	return nil
}

// DecodeValue reads back a value written by EncodeValue.
func DecodeValue(r *bytes.Reader) (types.Value, error) {
	kb, err := r.ReadByte()
	if err != nil {
		return types.Value{}, err
	}
	switch types.Kind(kb) {
	case types.KindNull:
		return types.Null(), nil
	case types.KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return types.Value{}, err
		}
		return types.Bool(b != 0), nil
	case types.KindInt:
		var tmp [8]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return types.Value{}, err
		}
		return types.Int(int64(binary.BigEndian.Uint64(tmp[:]))), nil
	case types.KindFloat:
		var tmp [8]byte
		if _, err := io.ReadFull(r, tmp[:]); err != nil {
			return types.Value{}, err
		}
		return types.Float(math.Float64frombits(binary.BigEndian.Uint64(tmp[:]))), nil
	case types.KindString:
		s, err := readString(r)
		if err != nil {
			return types.Value{}, err
		}
		return types.String(s), nil
	case types.KindBytes:
		b, err := readBytesField(r)
		if err != nil {
			return types.Value{}, err
		}
		return types.Bytes(b), nil
	case types.KindList:
		n, err := readUvarint(r)
		if err != nil {
			return types.Value{}, err
		}
		list := make([]types.Value, n)
		for i := range list {
			v, err := DecodeValue(r)
			if err != nil {
				return types.Value{}, err
			}
			list[i] = v
		}
		return types.List(list), nil
	case types.KindMap:
		n, err := readUvarint(r)
		if err != nil {
			return types.Value{}, err
		}
		m := make(map[string]types.Value, n)
		for i := uint64(0); i < n; i++ {
			k, err := readString(r)
			if err != nil {
				return types.Value{}, err
			}
			v, err := DecodeValue(r)
			if err != nil {
				return types.Value{}, err
			}
			m[k] = v
		}
		return types.Map(m), nil
	default:
		return types.Value{}, fmt.Errorf("codec: unknown value kind byte %d", kb)
	}
}

func EncodeProperties(buf *bytes.Buffer, props map[string]types.Value) error {
	writeUvarint(buf, uint64(len(props)))
	for k, v := range props {
		writeString(buf, k)
		if err := EncodeValue(buf, v); err != nil {
			return err
		}
	}
	return nil
}

func DecodeProperties(r *bytes.Reader) (map[string]types.Value, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]types.Value, n)
	for i := uint64(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := DecodeValue(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}
