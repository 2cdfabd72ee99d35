// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
)

// DecodeBody decodes a base64 request body supplied by the frontend for
// a streaming call. Binary uploads cross the command boundary as text,
// so every method except GET carries base64; GET carries no body and
// encoded is ignored.
func DecodeBody(method, encoded string) ([]byte, error) {
	if method == "" || strings.EqualFold(method, http.MethodGet) || encoded == "" {
		return nil, nil
	}
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &Error{Kind: KindDecode, Err: fmt.Errorf("request body is not valid base64: %w", err)}
	}
	return body, nil
}
