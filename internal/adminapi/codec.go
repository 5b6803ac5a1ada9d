// Package adminapi exposes a small read-only introspection surface over
// gRPC, modeled on the teacher control-plane's AgwServer
// (internal/server/grpc.go): one struct holding an *engine.Engine
// reference, with methods registered through a grpc.ServiceDesc.
//
// No .proto file is compiled in this exercise, so there is no generated
// proto.Message implementation for the request/response types below. In
// its place, jsonCodec implements grpc/encoding.Codec over encoding/json
// and is installed on the server with grpc.ForceServerCodec, which is part
// of gRPC-go's supported mechanism for transporting non-protobuf payloads —
// see DESIGN.md for why this stands in for the usual protoc step.
package adminapi

import "encoding/json"

// jsonCodec implements google.golang.org/grpc/encoding.Codec.
type jsonCodec struct{}

func (jsonCodec) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }
func (jsonCodec) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }
func (jsonCodec) Name() string { return "json" }
