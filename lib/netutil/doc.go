// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides bounded I/O and connection helpers shared by
// the relay, the local server, and the command boundary.
//
// ReadLimited bounds a body read at a caller-chosen size and reports an
// overrun as a *LimitError rather than silently truncating. Relay
// responses use MaxResponseSize; authorization files use a much smaller
// bound.
//
// IsExpectedCloseError classifies errors that occur during normal
// connection teardown, so that a frontend disconnecting from the command
// socket is not logged as a failure.
package netutil
