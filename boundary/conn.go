// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nativebridge/nativebridge/lib/netutil"
)

// conn serves frames from one frontend connection.
type conn struct {
	codec      frameCodec
	dispatcher *Dispatcher
	logger     *slog.Logger

	writeMu sync.Mutex
	broken  error
}

func newConn(codec frameCodec, dispatcher *Dispatcher, logger *slog.Logger) *conn {
	return &conn{codec: codec, dispatcher: dispatcher, logger: logger}
}

// write sends one frame. After the first write failure every later
// write fails with the same error.
func (c *conn) write(frame Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.broken != nil {
		return c.broken
	}
	if err := c.codec.WriteFrame(frame); err != nil {
		c.broken = fmt.Errorf("writing %s frame: %w", frame.Type, err)
		return c.broken
	}
	return nil
}

// serve reads frames until the connection ends, running each
// invocation in its own goroutine. In-flight invocations are cancelled
// when the connection ends, and serve returns after they finish. A
// normal disconnect returns nil.
func (c *conn) serve(ctx context.Context, hub *Hub) error {
	detach := hub.attach(c)
	defer detach()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for {
		frame, err := c.codec.ReadFrame()
		if err != nil {
			var malformed *frameError
			switch {
			case errors.As(err, &malformed):
				c.logger.Warn("malformed frame", "id", malformed.ID, "error", malformed.Err)
				if malformed.ID != "" {
					c.write(Frame{Type: FrameResult, ID: malformed.ID, Error: malformed.Error()})
				}
				continue
			case netutil.IsExpectedCloseError(err):
				return nil
			}
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading frame: %w", err)
		}

		if frame.Type != FrameInvoke {
			c.logger.Warn("ignoring frame", "type", frame.Type, "id", frame.ID)
			continue
		}
		if frame.ID == "" {
			c.logger.Warn("ignoring invoke frame without id", "command", frame.Command)
			continue
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			c.invoke(ctx, frame)
		}()
	}
}

// invoke runs one command and writes its result frame.
func (c *conn) invoke(ctx context.Context, frame Frame) {
	result, err := c.dispatcher.Invoke(ctx, frame.Command, frame.Args)

	reply := Frame{Type: FrameResult, ID: frame.ID}
	if err != nil {
		reply.Error = err.Error()
	} else {
		reply.Result = result
	}
	if err := c.write(reply); err != nil {
		c.logger.Debug("result not delivered", "command", frame.Command, "id", frame.ID, "error", err)
	}
}
