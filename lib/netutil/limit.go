// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"io"
)

// MaxResponseSize is the default bound on buffered relay responses:
// 256 MB. It exists to keep a pathological upstream from exhausting
// memory; model API responses are orders of magnitude smaller.
const MaxResponseSize int64 = 256 << 20

// LimitError reports that a reader produced more than Limit bytes.
type LimitError struct {
	Limit int64
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("body exceeds %d bytes", e.Limit)
}

// ReadLimited reads r to EOF and returns its contents, or a *LimitError
// if r holds more than limit bytes. A limit of zero or less selects
// MaxResponseSize.
func ReadLimited(r io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = MaxResponseSize
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, &LimitError{Limit: limit}
	}
	return data, nil
}
