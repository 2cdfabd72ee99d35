// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Kind classifies a relay failure.
type Kind string

const (
	// KindHeader: a request header name or value is malformed.
	KindHeader Kind = "header"
	// KindURL: the target URL is malformed or not http(s).
	KindURL Kind = "url"
	// KindMethod: the method is not one the relay supports.
	KindMethod Kind = "method"
	// KindNetwork: DNS, connect, TLS, or transport failure, including
	// an oversized response.
	KindNetwork Kind = "network"
	// KindTimeout: the operation exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindDecode: a caller-supplied base64 body or an upstream
	// content-encoded body could not be decoded.
	KindDecode Kind = "decode"
	// KindCanceled: the caller cancelled the operation.
	KindCanceled Kind = "canceled"
)

// Error is the error type returned by relay operations. Use errors.As to
// inspect the Kind:
//
//	var relayErr *relay.Error
//	if errors.As(err, &relayErr) && relayErr.Kind == relay.KindTimeout { ... }
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or the empty string if err is not a
// relay error.
func KindOf(err error) Kind {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return relayErr.Kind
	}
	return ""
}

// classify converts a transport or body-read error into an *Error. The
// context decides between timeout and cancellation when the transport
// error itself is not specific.
func classify(ctx context.Context, err error) error {
	var relayErr *Error
	if errors.As(err, &relayErr) {
		return err
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return &Error{Kind: KindTimeout, Err: err}
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return &Error{Kind: KindCanceled, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}
