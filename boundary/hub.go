// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"errors"
	"fmt"
	"sync"
)

// Emitter broadcasts named events to the frontend.
type Emitter interface {
	Emit(event string, payload any) error
}

// ErrNoConnection is returned by Emit when no frontend is attached.
var ErrNoConnection = errors.New("boundary: no frontend connection attached")

// Hub is the event channel shared by every attached connection.
type Hub struct {
	mu          sync.RWMutex
	connections map[*conn]struct{}
}

// NewHub creates a Hub with no connections.
func NewHub() *Hub {
	return &Hub{connections: make(map[*conn]struct{})}
}

// attach adds c to the broadcast set and returns the function that
// removes it.
func (h *Hub) attach(c *conn) (detach func()) {
	h.mu.Lock()
	h.connections[c] = struct{}{}
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		delete(h.connections, c)
		h.mu.Unlock()
	}
}

// Connections returns the number of attached connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Emit writes an event frame to every attached connection. It succeeds
// if at least one connection accepted the frame.
func (h *Hub) Emit(event string, payload any) error {
	h.mu.RLock()
	targets := make([]*conn, 0, len(h.connections))
	for c := range h.connections {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	if len(targets) == 0 {
		return ErrNoConnection
	}

	frame := Frame{Type: FrameEvent, Event: event, Payload: payload}
	var errs []error
	for _, c := range targets {
		if err := c.write(frame); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == len(targets) {
		return fmt.Errorf("emitting %s: %w", event, errors.Join(errs...))
	}
	return nil
}
