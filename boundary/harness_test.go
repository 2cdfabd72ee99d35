// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nativebridge/nativebridge/lib/testutil"
)

const frameTimeout = 5 * time.Second

// wireFrame is the frontend's view of an outbound JSON frame.
type wireFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   string          `json:"error"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stdioHarness plays the frontend side of ServeStdio over pipes.
type stdioHarness struct {
	input  *io.PipeWriter
	frames chan wireFrame
	done   chan error
}

func startStdio(t *testing.T, dispatcher *Dispatcher, hub *Hub) *stdioHarness {
	t.Helper()

	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()

	harness := &stdioHarness{
		input:  inWriter,
		frames: make(chan wireFrame, 256),
		done:   make(chan error, 1),
	}

	go func() {
		defer close(harness.frames)
		decoder := json.NewDecoder(outReader)
		for {
			var frame wireFrame
			if err := decoder.Decode(&frame); err != nil {
				return
			}
			harness.frames <- frame
		}
	}()

	go func() {
		err := ServeStdio(context.Background(), inReader, outWriter, Config{
			Dispatcher: dispatcher,
			Hub:        hub,
			Logger:     discardLogger(),
		})
		outWriter.Close()
		harness.done <- err
	}()

	// Attachment happens in the serving goroutine.
	deadline := time.Now().Add(frameTimeout)
	for hub.Connections() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stdio connection never attached to the hub")
		}
		time.Sleep(time.Millisecond)
	}

	t.Cleanup(func() {
		inWriter.Close()
		select {
		case <-harness.done:
		case <-time.After(frameTimeout):
			t.Error("ServeStdio did not return after input closed")
		}
	})
	return harness
}

func (h *stdioHarness) send(t *testing.T, frame any) {
	t.Helper()
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatalf("marshal frame: %v", err)
	}
	if _, err := h.input.Write(append(data, '\n')); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func (h *stdioHarness) invoke(t *testing.T, id, command string, args any) {
	t.Helper()
	frame := map[string]any{"type": "invoke", "id": id, "command": command}
	if args != nil {
		frame["args"] = args
	}
	h.send(t, frame)
}

func (h *stdioHarness) next(t *testing.T) wireFrame {
	t.Helper()
	return testutil.RequireReceive(t, h.frames, frameTimeout, "waiting for frame")
}
