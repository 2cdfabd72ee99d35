// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package boundary is the command and event channel between the
// frontend and the native process.
//
// The frontend invokes named commands with JSON arguments and receives
// one result per invocation. Independently, the native side broadcasts
// named events (stream chunks) to every attached frontend connection.
// Both directions share one frame shape:
//
//	{"type":"invoke","id":"7","command":"relay_request","args":{...}}
//	{"type":"result","id":"7","result":{...}}
//	{"type":"result","id":"7","error":"unknown command \"x\""}
//	{"type":"event","event":"relay_stream","payload":{...}}
//
// Two transports carry frames. [ServeStdio] exchanges JSON lines on a
// reader/writer pair, for a webview host that spawns this process.
// [SocketServer] exchanges CBOR frames on a Unix socket, where binary
// payloads travel as byte strings instead of base64 text.
//
// Invocations on one connection run concurrently, each in its own
// goroutine; frame writes are serialized per connection. A streaming
// command's result frame is written after all of its events, so a
// frontend that awaits the result has seen the whole stream.
//
// [Dispatcher] recovers panics inside commands: nothing unwinds across
// the boundary, and every failure reaches the frontend as an error
// frame or a failure envelope.
package boundary
