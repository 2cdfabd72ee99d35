// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package headers

import (
	"fmt"
	"net/http"
	"sort"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// ParseError reports the first header mapping entry that could not be
// converted to a wire header. Callers can use errors.As to extract the
// offending key.
type ParseError struct {
	// Key is the mapping key that failed validation.
	Key string
	// Reason describes which part of the entry is malformed.
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid header %q: %s", e.Key, e.Reason)
}

// ToWire validates every entry of mapping and returns the equivalent
// wire header collection. Names must satisfy the RFC 7230 token grammar;
// values must be printable ASCII or horizontal tab. Entries are checked
// in sorted key order so the reported failure is deterministic.
func ToWire(mapping map[string]string) (http.Header, error) {
	keys := make([]string, 0, len(mapping))
	for key := range mapping {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	wire := make(http.Header, len(mapping))
	for _, key := range keys {
		value := mapping[key]
		if !httpguts.ValidHeaderFieldName(key) {
			return nil, &ParseError{Key: key, Reason: "name is not a valid header token"}
		}
		if index := invalidValueByte(value); index >= 0 {
			return nil, &ParseError{
				Key:    key,
				Reason: fmt.Sprintf("value has invalid byte 0x%02x at offset %d", value[index], index),
			}
		}
		wire.Add(key, value)
	}
	return wire, nil
}

// ToMapping flattens a wire header collection into a lower-case keyed
// mapping. It never fails: values that are not valid UTF-8 have the
// invalid sequences replaced with U+FFFD.
func ToMapping(wire http.Header) map[string]string {
	mapping := make(map[string]string, len(wire))
	for name, values := range wire {
		if len(values) == 0 {
			continue
		}
		key := strings.ToLower(strings.ToValidUTF8(name, "\uFFFD"))
		joined := strings.ToValidUTF8(strings.Join(values, ", "), "\uFFFD")
		if existing, ok := mapping[key]; ok {
			// Non-canonical keys inserted directly into the map can
			// collide once lower-cased.
			joined = existing + ", " + joined
		}
		mapping[key] = joined
	}
	return mapping
}

// invalidValueByte returns the offset of the first byte in value that is
// neither printable ASCII nor horizontal tab, or -1 if value is clean.
func invalidValueByte(value string) int {
	for index := 0; index < len(value); index++ {
		b := value[index]
		if b == '\t' || (b >= 0x20 && b <= 0x7e) {
			continue
		}
		return index
	}
	return -1
}
