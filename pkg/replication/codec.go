package replication

import (
	"encoding/json"

	"google.golang.org/grpc/encoding"
)

// codecName overrides grpc-go's built-in "proto" codec slot (encoding.Codec
// is a documented extension point keyed by name) so StreamSync's generated
// stream wrappers can call grpc's normal Marshal/Unmarshal path without a
// protoc toolchain generating real protobuf message types.
const codecName = "proto"

// jsonCodec implements encoding.Codec over encoding/json.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
