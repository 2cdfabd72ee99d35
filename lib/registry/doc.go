// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the two values the frontend needs to reach the
// local write server: the per-process shared secret and the loopback port
// the server bound.
//
// A [Registry] is created once in main, before the write server starts,
// and passed by pointer to the server (which publishes the port and
// verifies the secret) and to the boundary commands (which hand both
// values to the frontend). Nothing here is package-level state.
//
// The secret is set at construction and never changes. The port is set
// exactly once by [Registry.PublishPort]; until then [Registry.Port]
// blocks. If binding fails, [Registry.Fail] releases every waiter with
// the bind error, so a caller never observes a placeholder port.
package registry
