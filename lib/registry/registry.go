// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nativebridge/nativebridge/lib/secret"
)

// ErrAlreadyPublished is returned by PublishPort and Fail after the port
// state has been settled.
var ErrAlreadyPublished = errors.New("registry: port already settled")

// Registry is the set-once state shared between the write server and
// the boundary. Safe for concurrent use.
type Registry struct {
	secret *secret.Buffer

	mu      sync.Mutex
	port    int
	bindErr error
	settled bool
	ready   chan struct{}
}

// New creates a Registry with a freshly generated secret: a random
// (version 4) UUID read from the operating system's CSPRNG.
func New() (*Registry, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("registry: generating secret: %w", err)
	}
	return NewWithSecret([]byte(id.String()))
}

// NewWithSecret creates a Registry holding value as its secret. value is
// zeroed after being copied into protected memory.
func NewWithSecret(value []byte) (*Registry, error) {
	buffer, err := secret.NewFromBytes(value)
	if err != nil {
		return nil, fmt.Errorf("registry: storing secret: %w", err)
	}
	return &Registry{
		secret: buffer,
		ready:  make(chan struct{}),
	}, nil
}

// Secret returns the shared secret for the trusted frontend.
func (r *Registry) Secret() string {
	return r.secret.String()
}

// VerifySecret reports whether candidate equals the shared secret, in
// constant time. An empty candidate never matches.
func (r *Registry) VerifySecret(candidate string) bool {
	if candidate == "" {
		return false
	}
	return r.secret.Equal([]byte(candidate))
}

// PublishPort records the bound port and releases Port waiters.
func (r *Registry) PublishPort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("registry: port %d out of range", port)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled {
		return ErrAlreadyPublished
	}
	r.port = port
	r.settled = true
	close(r.ready)
	return nil
}

// Fail records that the write server could not bind. Port waiters are
// released and receive err.
func (r *Registry) Fail(err error) error {
	if err == nil {
		err = errors.New("registry: bind failed")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.settled {
		return ErrAlreadyPublished
	}
	r.bindErr = err
	r.settled = true
	close(r.ready)
	return nil
}

// Ready returns a channel closed once the port is published or binding
// has failed.
func (r *Registry) Ready() <-chan struct{} {
	return r.ready
}

// Port returns the published port, blocking until it is published,
// binding fails, or ctx is done.
func (r *Registry) Port(ctx context.Context) (int, error) {
	select {
	case <-r.ready:
	case <-ctx.Done():
		return 0, fmt.Errorf("registry: waiting for write server port: %w", ctx.Err())
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bindErr != nil {
		return 0, r.bindErr
	}
	return r.port, nil
}

// Close releases the secret. Accessors must not be called afterwards.
func (r *Registry) Close() error {
	return r.secret.Close()
}
