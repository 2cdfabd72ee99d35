// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
)

// SocketServer serves CBOR frames on a Unix socket. Connections are
// long-lived: a frontend connects once, invokes any number of commands,
// and receives events until it disconnects.
type SocketServer struct {
	socketPath string
	config     Config
	logger     *slog.Logger
	ready      chan struct{}

	mu          sync.Mutex
	connections map[net.Conn]struct{}

	// activeConnections tracks connection goroutines for graceful
	// shutdown.
	activeConnections sync.WaitGroup
}

// NewSocketServer creates a server that will listen on socketPath.
func NewSocketServer(socketPath string, config Config) *SocketServer {
	return &SocketServer{
		socketPath:  socketPath,
		config:      config,
		logger:      config.logger().With("transport", "socket"),
		ready:       make(chan struct{}),
		connections: make(map[net.Conn]struct{}),
	}
}

// Ready returns a channel closed once the socket is listening.
func (s *SocketServer) Ready() <-chan struct{} {
	return s.ready
}

// Serve accepts connections until ctx is cancelled, then closes every
// connection (cancelling their in-flight commands) and waits for them
// to finish.
//
// The socket's directory is created if missing, and any existing socket
// file at the configured path is removed before listening. The socket file is removed on return.
func (s *SocketServer) Serve(ctx context.Context) error {
	if err := s.config.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.socketPath), 0o700); err != nil {
		return fmt.Errorf("creating socket directory: %w", err)
	}
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.socketPath, err)
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.socketPath, err)
	}
	defer func() {
		listener.Close()
		os.Remove(s.socketPath)
	}()

	// Only the owning user may connect: the socket hands out the
	// write-server secret.
	if err := os.Chmod(s.socketPath, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", s.socketPath, err)
	}

	// Unblock Accept and every connection read when ctx is cancelled.
	go func() {
		<-ctx.Done()
		listener.Close()
		s.closeConnections()
	}()

	s.logger.Info("socket boundary listening", "path", s.socketPath)
	close(s.ready)

	for {
		netConn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Error("accept failed", "error", err)
			continue
		}

		if !s.track(netConn) {
			netConn.Close()
			break
		}
		s.activeConnections.Add(1)
		go func() {
			defer s.activeConnections.Done()
			s.handleConnection(ctx, netConn)
		}()
	}

	s.activeConnections.Wait()
	return nil
}

// handleConnection serves one frontend until it disconnects.
func (s *SocketServer) handleConnection(ctx context.Context, netConn net.Conn) {
	defer s.untrack(netConn)
	defer netConn.Close()

	s.logger.Debug("frontend connected")
	c := newConn(newCBORCodec(netConn), s.config.Dispatcher, s.logger)
	if err := c.serve(ctx, s.config.Hub); err != nil && ctx.Err() == nil {
		s.logger.Warn("connection ended with error", "error", err)
		return
	}
	s.logger.Debug("frontend disconnected")
}

// track records netConn for shutdown. Returns false if shutdown has
// already closed the set.
func (s *SocketServer) track(netConn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections == nil {
		return false
	}
	s.connections[netConn] = struct{}{}
	return true
}

func (s *SocketServer) untrack(netConn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connections != nil {
		delete(s.connections, netConn)
	}
}

func (s *SocketServer) closeConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for netConn := range s.connections {
		netConn.Close()
	}
	s.connections = nil
}
