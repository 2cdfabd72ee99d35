// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"context"
	"fmt"
	"io"
	"log/slog"
)

// Config wires a transport to the command dispatcher and event hub.
type Config struct {
	Dispatcher *Dispatcher
	Hub        *Hub

	// Logger for connection logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

func (c Config) validate() error {
	if c.Dispatcher == nil {
		return fmt.Errorf("dispatcher is required")
	}
	if c.Hub == nil {
		return fmt.Errorf("hub is required")
	}
	return nil
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// ServeStdio serves JSON-line frames read from in and written to out
// until in reaches EOF or ctx is cancelled. Cancellation returns
// immediately; a read blocked on in is abandoned, which is acceptable
// for process stdio.
func ServeStdio(ctx context.Context, in io.Reader, out io.Writer, config Config) error {
	if err := config.validate(); err != nil {
		return err
	}
	logger := config.logger().With("transport", "stdio")

	c := newConn(newJSONCodec(in, out), config.Dispatcher, logger)

	done := make(chan error, 1)
	go func() {
		done <- c.serve(ctx, config.Hub)
	}()

	logger.Info("stdio boundary serving")
	select {
	case err := <-done:
		if err == nil {
			logger.Info("stdio boundary closed by frontend")
		}
		return err
	case <-ctx.Done():
		return nil
	}
}
