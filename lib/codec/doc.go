// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding configuration used by the
// command socket.
//
// Nativebridge speaks two serialization formats over its command
// boundary. The stdio transport exchanges JSON lines, which is what a
// webview host expects. The socket transport exchanges CBOR frames, so
// binary response bodies and stream chunks travel as byte strings
// instead of base64 text.
//
// The encoder uses Core Deterministic Encoding (RFC 8949 §4.2): sorted
// map keys, smallest integer encoding, no indefinite-length items.
//
// For stream-oriented operations:
//
//	encoder := codec.NewEncoder(conn)
//	decoder := codec.NewDecoder(conn)
//
// Command handlers take JSON arguments regardless of transport. ToJSON
// converts a CBOR argument value into the equivalent JSON document.
//
// # Struct Tag Rules
//
// Frame and result types carry `json` tags only. fxamacker/cbor v2
// reads `json` tags when `cbor` tags are absent, so one tag controls
// field naming and omitempty for both transports.
package codec
