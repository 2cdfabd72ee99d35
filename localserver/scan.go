// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package localserver

import (
	"fmt"
	"net"
	"strconv"
)

// BindError reports that no port in [First, Last] could be bound on the
// loopback interface. It is fatal at startup.
type BindError struct {
	First int
	Last  int
	// Err is the error from the last bind attempt.
	Err error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("no free loopback port in %d-%d: %v", e.First, e.Last, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ListenLoopback binds the first free port on 127.0.0.1 between first
// and last inclusive, probing in ascending order. It returns the
// listener and its port.
func ListenLoopback(first, last int) (net.Listener, int, error) {
	if first < 1 || last > 65535 || first > last {
		return nil, 0, &BindError{First: first, Last: last, Err: fmt.Errorf("invalid port range")}
	}

	var lastErr error
	for port := first; port <= last; port++ {
		listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err == nil {
			return listener, port, nil
		}
		lastErr = err
	}
	return nil, 0, &BindError{First: first, Last: last, Err: lastErr}
}
