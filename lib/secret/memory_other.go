// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !linux

package secret

// allocate returns heap memory. Only Linux gets mlock and MADV_DONTDUMP;
// elsewhere the secret is still zeroed on Close.
func allocate(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func release([]byte) error { return nil }
