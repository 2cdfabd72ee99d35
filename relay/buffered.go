// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nativebridge/nativebridge/lib/headers"
	"github.com/nativebridge/nativebridge/lib/netutil"
)

// Do performs request and buffers the complete response. The whole
// operation, including reading the body, runs under the buffered
// timeout.
func (r *Relay) Do(ctx context.Context, request Request) (*Response, error) {
	timeout := request.Timeout
	if timeout <= 0 {
		timeout = r.requestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	startTime := time.Now()
	response, err := r.dispatch(ctx, request)
	if err != nil {
		r.logger.Warn("relay request failed",
			"method", request.Method,
			"target", logTarget(request.URL),
			"error", err,
			"duration", time.Since(startTime),
		)
		return nil, err
	}
	defer response.Body.Close()

	body, err := netutil.ReadLimited(response.Body, r.maxResponseSize)
	if err != nil {
		var limitErr *netutil.LimitError
		if errors.As(err, &limitErr) {
			err = &Error{Kind: KindNetwork, Err: fmt.Errorf("response %w", limitErr)}
		} else {
			err = classify(ctx, err)
		}
		r.logger.Warn("relay response read failed",
			"target", logTarget(request.URL),
			"status", response.StatusCode,
			"error", err,
			"duration", time.Since(startTime),
		)
		return nil, err
	}

	r.logger.Info("relay request complete",
		"method", response.Request.Method,
		"target", logTarget(request.URL),
		"status", response.StatusCode,
		"bytes", len(body),
		"duration", time.Since(startTime),
	)

	return &Response{
		Status:  response.StatusCode,
		Headers: headers.ToMapping(response.Header),
		Body:    body,
	}, nil
}

// RelayRequest performs request and folds the outcome into an envelope.
// It never returns a Go error: every failure becomes Success=false with a
// Reason.
func (r *Relay) RelayRequest(ctx context.Context, request Request) BufferedResult {
	response, err := r.Do(ctx, request)
	if err != nil {
		return BufferedResult{Success: false, Reason: err.Error()}
	}
	body := response.Body
	if body == nil {
		body = []byte{}
	}
	return BufferedResult{
		Success: true,
		Status:  response.Status,
		Headers: response.Headers,
		Body:    body,
	}
}
