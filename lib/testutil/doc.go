// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers.
//
// [SocketDir] creates a short temporary directory for Unix domain
// sockets: sun_path is limited to 108 bytes and t.TempDir() paths can
// exceed it.
//
// [RequireReceive], [RequireSend], and [RequireClosed] wrap the
// select-with-timeout pattern so tests that wait on channels fail
// instead of hanging.
//
// All helpers call t.Fatalf on failure.
package testutil
