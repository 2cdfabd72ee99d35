// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"encoding/json"
	"time"
)

// Request describes one outbound call. It is built fresh per call and
// owned by the call that issues it.
type Request struct {
	// Method is GET, POST, PUT, or DELETE (case-insensitive). Empty
	// means GET.
	Method string

	// URL is the absolute http or https target.
	URL string

	// Headers maps header names to values. Names are case-insensitive.
	Headers map[string]string

	// Body is sent for every method except GET.
	Body []byte

	// Timeout bounds the whole operation. Zero selects the relay's
	// default for the call kind.
	Timeout time.Duration
}

// Response is a fully buffered upstream response.
type Response struct {
	Status  int
	Headers map[string]string
	Body    []byte
}

// EventType tags a streaming event.
type EventType string

const (
	// EventHeaders carries the response status and headers. At most one
	// per session, always first.
	EventHeaders EventType = "headers"

	// EventChunk carries a non-empty slice of the response body.
	EventChunk EventType = "chunk"

	// EventEnd marks successful completion. No events follow it.
	EventEnd EventType = "end"
)

// Event is one element of a streaming session's output. Body is
// serialized as base64 text in JSON.
type Event struct {
	Type    EventType         `json:"type"`
	ID      string            `json:"id"`
	Status  int               `json:"status,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    []byte            `json:"body,omitempty"`
}

// BufferedResult is the boundary envelope of a buffered relay call. On
// success Body holds the raw response bytes (base64 in JSON, "" when the
// body is empty). On failure only Reason is set.
type BufferedResult struct {
	Success bool              `json:"success"`
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    []byte            `json:"body"`
	Reason  string            `json:"reason,omitempty"`
}

// MarshalJSON writes {success:false, reason} for a failure and the full
// envelope, body included, for a success.
func (r BufferedResult) MarshalJSON() ([]byte, error) {
	if !r.Success {
		return json.Marshal(struct {
			Success bool   `json:"success"`
			Reason  string `json:"reason"`
		}{Reason: r.Reason})
	}

	type envelope BufferedResult
	success := envelope(r)
	if success.Headers == nil {
		success.Headers = map[string]string{}
	}
	if success.Body == nil {
		success.Body = []byte{}
	}
	return json.Marshal(success)
}

// StreamResult is the boundary envelope of a streaming relay call.
// Success implies the End event was delivered.
type StreamResult struct {
	Success bool   `json:"success"`
	Reason  string `json:"reason,omitempty"`
}
