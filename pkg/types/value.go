package types

import "fmt"

// Kind identifies the concrete type held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindList
	KindMap
)

// Value is the tagged-union property type entity payloads are built from
// (spec §9, "Dynamic typing in payloads"). It is a struct with an explicit
// Kind rather than interface{} so callers get a compile-time-checked
// switch instead of a type assertion chain.
type Value struct {
	kind Kind
	b    bool
	i    int64
	f    float64
	s    string
	by   []byte
	list []Value
	m    map[string]Value
}

func Null() Value                { return Value{kind: KindNull} }
func Bool(v bool) Value          { return Value{kind: KindBool, b: v} }
func Int(v int64) Value          { return Value{kind: KindInt, i: v} }
func Float(v float64) Value      { return Value{kind: KindFloat, f: v} }
func String(v string) Value      { return Value{kind: KindString, s: v} }
func Bytes(v []byte) Value       { return Value{kind: KindBytes, by: v} }
func List(v []Value) Value       { return Value{kind: KindList, list: v} }
func Map(v map[string]Value) Value { return Value{kind: KindMap, m: v} }

func (v Value) Kind() Kind { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

func (v Value) Bool() (bool, bool)             { return v.b, v.kind == KindBool }
func (v Value) Int() (int64, bool)             { return v.i, v.kind == KindInt }
func (v Value) Float() (float64, bool)         { return v.f, v.kind == KindFloat }
func (v Value) String() (string, bool)         { return v.s, v.kind == KindString }
func (v Value) Bytes() ([]byte, bool)          { return v.by, v.kind == KindBytes }
func (v Value) List() ([]Value, bool)          { return v.list, v.kind == KindList }
func (v Value) Map() (map[string]Value, bool)  { return v.m, v.kind == KindMap }

// Native returns the value unwrapped into the nearest Go primitive, for
// callers that just want to print or JSON-marshal it.
func (v Value) Native() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindBytes:
		return v.by
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Native()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Native()
		}
		return out
	default:
		return nil
	}
}

// FromNative lifts a Go value produced by encoding/json.Unmarshal (or a
// hand-built map[string]any) into the tagged-union Value type.
func FromNative(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(x), nil
	case int:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case float64:
		return Float(x), nil
	case string:
		return String(x), nil
	case []byte:
		return Bytes(x), nil
	case []any:
		list := make([]Value, len(x))
		for i, e := range x {
			lv, err := FromNative(e)
			if err != nil {
				return Value{}, err
			}
			list[i] = lv
		}
		return List(list), nil
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			mv, err := FromNative(e)
			if err != nil {
				return Value{}, err
			}
			m[k] = mv
		}
		return Map(m), nil
	default:
		return Value{}, fmt.Errorf("types: unsupported native value of type %T", v)
	}
}
