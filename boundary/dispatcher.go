// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CommandFunc runs one command. args is the JSON arguments object
// (possibly nil). The returned value is encoded into the result frame;
// an error becomes the frame's error string.
type CommandFunc func(ctx context.Context, args json.RawMessage) (any, error)

// ErrUnknownCommand is returned by Invoke for unregistered names.
var ErrUnknownCommand = errors.New("unknown command")

// PanicError reports a command that panicked. The panic is contained
// in the invoking goroutine.
type PanicError struct {
	Command string
	Value   any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("command %q panicked: %v", e.Command, e.Value)
}

// Dispatcher routes invocations to registered commands.
type Dispatcher struct {
	mu       sync.RWMutex
	commands map[string]CommandFunc
	logger   *slog.Logger
}

// NewDispatcher creates an empty Dispatcher. If logger is nil,
// slog.Default() is used.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		commands: make(map[string]CommandFunc),
		logger:   logger,
	}
}

// Handle registers command under name. Panics if name is already
// registered.
func (d *Dispatcher) Handle(name string, command CommandFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.commands[name]; exists {
		panic(fmt.Sprintf("boundary.Dispatcher: duplicate handler for command %q", name))
	}
	d.commands[name] = command
}

// Commands returns the registered command names, sorted.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.commands))
	for name := range d.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke runs the named command.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args json.RawMessage) (result any, err error) {
	d.mu.RLock()
	command, exists := d.commands[name]
	d.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w %q", ErrUnknownCommand, name)
	}

	startTime := time.Now()
	defer func() {
		if recovered := recover(); recovered != nil {
			d.logger.Error("command panicked",
				"command", name,
				"panic", recovered,
				"stack", string(debug.Stack()),
			)
			result, err = nil, &PanicError{Command: name, Value: recovered}
			return
		}
		if err != nil {
			d.logger.Debug("command failed", "command", name, "error", err, "duration", time.Since(startTime))
		}
	}()

	return command(ctx, args)
}
