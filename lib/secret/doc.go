// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds process secrets outside the garbage-collected
// heap where the platform allows it.
//
// On Linux, [Buffer] memory comes from an anonymous mmap region that is
// locked into RAM (mlock, never swapped) and excluded from core dumps
// (MADV_DONTDUMP). Close zeroes the bytes before unmapping them. Other
// platforms fall back to an ordinary heap slice that is still zeroed on
// Close.
//
// Comparison goes through [Buffer.Equal], which runs in constant time
// with respect to the candidate's content so that an authentication
// check does not leak how many leading bytes matched.
package secret
