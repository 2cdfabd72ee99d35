// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay performs outbound HTTP requests on behalf of the webview
// frontend, which cannot make arbitrary cross-origin calls itself.
//
// Both relay forms share one dispatch routine ([Relay] builds the
// request, validates headers through lib/headers, and sends it on a
// pooled client); they differ only in how the response body is consumed.
//
// [Relay.Do] buffers the whole response and returns it. [Relay.RelayRequest]
// wraps Do into a [BufferedResult] envelope that never carries a Go error,
// for handing across the command boundary.
//
// [Relay.Open] starts a streaming session and returns at once. The
// [Session] exposes the consumer end of a per-session event channel: one
// [EventHeaders] event, then [EventChunk] events in network order, then
// [EventEnd]. [Session.Wait] reports the authoritative outcome; on failure
// the event channel is closed without an End event. [Relay.Stream] drives
// a session to completion through a callback and folds the outcome into a
// [StreamResult].
//
// Every call runs under a wall-clock timeout covering the whole operation
// (120 s buffered, 240 s streaming by default). Failures are [*Error]
// values classified by [Kind].
//
// When a response arrives with a gzip, deflate, or zstd Content-Encoding
// the body is decoded before it is buffered or chunked, and the encoding
// headers are removed from the mapping, unless DisableContentDecoding is
// set.
package relay
