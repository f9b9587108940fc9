package rpc

import (
	"bytes"
	"encoding/gob"

	"google.golang.org/grpc/encoding"
)

// codecName is registered with google.golang.org/grpc/encoding and selected
// per-call via grpc.CallContentSubtype / grpc.ForceCodec on the client side.
const codecName = "slamgob"

// gobCodec implements encoding.Codec over encoding/gob, standing in for a
// protoc-generated protobuf codec. It is registered globally with grpc's
// encoding package at init, matching how google.golang.org/grpc/encoding/proto
// registers "proto".
type gobCodec struct{}

func (gobCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (gobCodec) Unmarshal(data []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func (gobCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(gobCodec{})
}
