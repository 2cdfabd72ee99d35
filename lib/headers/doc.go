// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package headers converts between net/http header collections and the
// flat string-keyed mapping that crosses the command boundary.
//
// [ToWire] is strict: the frontend supplies header mappings as JSON, and a
// malformed name or value must fail the whole request before any network
// activity. [ToMapping] is total: it runs on every relayed response, and
// upstream servers are free to send bytes that are not valid UTF-8, so
// decoding replaces invalid sequences instead of failing.
//
// Mapping keys are lower-case, matching what HTTP/2 puts on the wire and
// what the frontend code indexes by. Repeated response headers are joined
// with ", " into a single mapping value.
package headers
