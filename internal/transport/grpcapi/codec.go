// Copyright 2026 Rob Macrae. All rights reserved.
// SPDX-License-Identifier: LicenseRef-Proprietary

// Package grpcapi mirrors the HTTP/WS surface as unary and server-streaming
// RPCs, built directly on google.golang.org/grpc's low-level
// grpc.NewServer/ServiceDesc API with a hand-written JSON codec instead of
// protoc-generated stubs, the same approach grpc-go's own
// examples/features/encoding sample uses to swap codecs.
package grpcapi

import (
	"encoding/json"
	"fmt"

	"google.golang.org/grpc/encoding"
)

const codecName = "json"

// jsonCodec implements encoding.Codec (previously encoding.CodecV2 in newer
// grpc-go, both satisfied by this Marshal/Unmarshal/Name shape) over plain
// Go structs, so no .proto/protoc step is required anywhere in this module.
type jsonCodec struct{}

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (jsonCodec) Unmarshal(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("grpcapi: json unmarshal: %w", err)
	}
	return nil
}

func (jsonCodec) Name() string { return codecName }

func init() {
	encoding.RegisterCodec(jsonCodec{})
}
