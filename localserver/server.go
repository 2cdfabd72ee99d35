// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package localserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/nativebridge/nativebridge/lib/registry"
)

const (
	// DefaultFirstPort is where the port probe starts.
	DefaultFirstPort = 5354

	// DefaultLastPort is where the port probe gives up.
	DefaultLastPort = 65534

	// DefaultMaxPayloadSize bounds a single write: 1 GiB.
	DefaultMaxPayloadSize int64 = 1 << 30
)

// Config holds configuration for creating a Server.
type Config struct {
	// Root is the data directory all writes land under. Created with
	// mode 0700 if missing.
	Root string

	// Registry supplies the secret and receives the bound port.
	Registry *registry.Registry

	// FirstPort and LastPort bound the port probe. Zero selects the
	// defaults.
	FirstPort int
	LastPort  int

	// MaxPayloadSize bounds request bodies. Zero selects
	// DefaultMaxPayloadSize.
	MaxPayloadSize int64

	// Logger for request logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Server is the loopback file-write server.
type Server struct {
	root           string
	registry       *registry.Registry
	firstPort      int
	lastPort       int
	maxPayloadSize int64
	logger         *slog.Logger

	fsRoot     *os.Root
	httpServer *http.Server
	listener   net.Listener
	port       int
}

// New creates a Server. Nothing is bound until Start.
func New(config Config) (*Server, error) {
	if config.Root == "" {
		return nil, fmt.Errorf("data root is required")
	}
	if config.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}

	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving data root: %w", err)
	}

	server := &Server{
		root:           root,
		registry:       config.Registry,
		firstPort:      config.FirstPort,
		lastPort:       config.LastPort,
		maxPayloadSize: config.MaxPayloadSize,
		logger:         config.Logger,
	}
	if server.firstPort == 0 {
		server.firstPort = DefaultFirstPort
	}
	if server.lastPort == 0 {
		server.lastPort = DefaultLastPort
	}
	if server.maxPayloadSize <= 0 {
		server.maxPayloadSize = DefaultMaxPayloadSize
	}
	if server.logger == nil {
		server.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /{$}", server.handleWrite)

	server.httpServer = &http.Server{
		Handler:           withCORS(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	return server, nil
}

// Start creates the data root, binds a loopback port, publishes it to
// the registry, and begins serving in the background. On failure the
// registry is told, so get_port callers are released with the error.
func (s *Server) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		s.registry.Fail(err)
		return err
	}

	if err := os.MkdirAll(s.root, 0o700); err != nil {
		err = fmt.Errorf("creating data root: %w", err)
		s.registry.Fail(err)
		return err
	}
	fsRoot, err := os.OpenRoot(s.root)
	if err != nil {
		err = fmt.Errorf("opening data root: %w", err)
		s.registry.Fail(err)
		return err
	}

	listener, port, err := ListenLoopback(s.firstPort, s.lastPort)
	if err != nil {
		fsRoot.Close()
		s.registry.Fail(err)
		return err
	}
	if err := s.registry.PublishPort(port); err != nil {
		listener.Close()
		fsRoot.Close()
		return fmt.Errorf("publishing port: %w", err)
	}

	s.fsRoot = fsRoot
	s.listener = listener
	s.port = port

	s.logger.Info("write server started", "address", listener.Addr().String(), "root", s.root)

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("write server error", "error", err)
		}
	}()
	return nil
}

// Shutdown gracefully stops the server, waiting for in-flight writes
// until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down write server")
	err := s.httpServer.Shutdown(ctx)
	if s.fsRoot != nil {
		s.fsRoot.Close()
	}
	return err
}

// Port returns the bound port, or zero before Start.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Root returns the absolute data root.
func (s *Server) Root() string {
	return s.root
}
