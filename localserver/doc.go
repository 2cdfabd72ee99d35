// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Package localserver implements the loopback file-write server.
//
// The frontend cannot touch the filesystem itself. Instead it POSTs file
// contents to a small HTTP server bound to 127.0.0.1, authenticating
// with the shared secret from lib/registry:
//
//	POST /?path=<relative path> HTTP/1.1
//	x-bridge-secret: <secret>
//
//	<file bytes>
//
// The port is found by a sequential probe starting at 5354 and is
// published to the registry so the frontend can learn it through the
// get_port command. Every write lands under a single data root: the
// path is checked lexically, then against the real locations of its
// existing ancestors, and the write itself goes through an os.Root so
// that no symlink can redirect it outside. Files are replaced
// atomically (temporary file plus rename), and the response carries the
// BLAKE3 digest of the bytes written.
//
// CORS is permissive (any origin, preflight answered before
// authentication): the webview's origin varies by platform, and the
// secret header is the only access control.
package localserver
