// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package boundary

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nativebridge/nativebridge/lib/netutil"
	"github.com/nativebridge/nativebridge/lib/registry"
	"github.com/nativebridge/nativebridge/relay"
)

// Command and event names seen by the frontend.
const (
	CommandRelayRequest = "relay_request"
	CommandRelayStream  = "relay_stream"
	CommandCancelStream = "cancel_stream"
	CommandGetSecret    = "get_secret"
	CommandGetPort      = "get_port"
	CommandCheckAuth    = "check_auth"

	// EventRelayStream carries every streaming relay event.
	EventRelayStream = "relay_stream"
)

const (
	// DefaultPortTimeout is how long get_port waits for the write
	// server to bind.
	DefaultPortTimeout = 10 * time.Second

	// maxAuthFileSize bounds the files check_auth will compare.
	maxAuthFileSize = 1000
)

// Commands binds the relay and registry to command names.
type Commands struct {
	Relay    *relay.Relay
	Registry *registry.Registry
	Events   Emitter

	// PortTimeout overrides DefaultPortTimeout when positive.
	PortTimeout time.Duration

	// Logger for command logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Register adds every command to dispatcher.
func (c *Commands) Register(dispatcher *Dispatcher) {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	dispatcher.Handle(CommandRelayRequest, c.relayRequest)
	dispatcher.Handle(CommandRelayStream, c.relayStream)
	dispatcher.Handle(CommandCancelStream, c.cancelStream)
	dispatcher.Handle(CommandGetSecret, c.getSecret)
	dispatcher.Handle(CommandGetPort, c.getPort)
	dispatcher.Handle(CommandCheckAuth, c.checkAuth)
}

// relayRequestArgs are the arguments of relay_request. Headers is a
// JSON object, usually itself sent as JSON text.
type relayRequestArgs struct {
	URL     string          `json:"url"`
	Headers json.RawMessage `json:"headers"`
	Body    string          `json:"body"`
	Method  string          `json:"method"`
}

func (c *Commands) relayRequest(ctx context.Context, raw json.RawMessage) (any, error) {
	var args relayRequestArgs
	if err := decodeArgs(raw, &args); err != nil {
		return relay.BufferedResult{Success: false, Reason: err.Error()}, nil
	}

	headerMap, err := parseHeaders(args.Headers)
	if err != nil {
		return relay.BufferedResult{Success: false, Reason: err.Error()}, nil
	}

	var body []byte
	if args.Body != "" {
		body = []byte(args.Body)
	}
	return c.Relay.RelayRequest(ctx, relay.Request{
		Method:  args.Method,
		URL:     args.URL,
		Headers: headerMap,
		Body:    body,
	}), nil
}

// relayStreamArgs are the arguments of relay_stream. Body is base64
// for every method except GET.
type relayStreamArgs struct {
	ID      string          `json:"id"`
	URL     string          `json:"url"`
	Headers json.RawMessage `json:"headers"`
	Body    string          `json:"body"`
	Method  string          `json:"method"`
}

func (c *Commands) relayStream(ctx context.Context, raw json.RawMessage) (any, error) {
	var args relayStreamArgs
	if err := decodeArgs(raw, &args); err != nil {
		return relay.StreamResult{Success: false, Reason: err.Error()}, nil
	}
	if args.ID == "" {
		return relay.StreamResult{Success: false, Reason: "id is required"}, nil
	}

	headerMap, err := parseHeaders(args.Headers)
	if err != nil {
		return relay.StreamResult{Success: false, Reason: err.Error()}, nil
	}
	body, err := relay.DecodeBody(args.Method, args.Body)
	if err != nil {
		return relay.StreamResult{Success: false, Reason: err.Error()}, nil
	}

	return c.Relay.Stream(ctx, args.ID, relay.Request{
		Method:  args.Method,
		URL:     args.URL,
		Headers: headerMap,
		Body:    body,
	}, func(event relay.Event) error {
		return c.Events.Emit(EventRelayStream, event)
	}), nil
}

type cancelStreamArgs struct {
	ID string `json:"id"`
}

func (c *Commands) cancelStream(_ context.Context, raw json.RawMessage) (any, error) {
	var args cancelStreamArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	return c.Relay.Cancel(args.ID), nil
}

func (c *Commands) getSecret(context.Context, json.RawMessage) (any, error) {
	return c.Registry.Secret(), nil
}

func (c *Commands) getPort(ctx context.Context, _ json.RawMessage) (any, error) {
	timeout := c.PortTimeout
	if timeout <= 0 {
		timeout = DefaultPortTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	port, err := c.Registry.Port(ctx)
	if err != nil {
		return nil, err
	}
	return port, nil
}

type checkAuthArgs struct {
	Path string `json:"fpath"`
	Auth string `json:"auth"`
}

// checkAuth reports whether the file at fpath holds exactly auth. Any
// problem reading the file is a false result, not an error.
func (c *Commands) checkAuth(_ context.Context, raw json.RawMessage) (any, error) {
	var args checkAuthArgs
	if err := decodeArgs(raw, &args); err != nil {
		return nil, err
	}
	if args.Path == "" {
		return false, nil
	}

	info, err := os.Stat(args.Path)
	if err != nil || !info.Mode().IsRegular() || info.Size() > maxAuthFileSize {
		return false, nil
	}

	file, err := os.Open(args.Path)
	if err != nil {
		return false, nil
	}
	defer file.Close()

	content, err := netutil.ReadLimited(file, maxAuthFileSize)
	if err != nil {
		c.Logger.Debug("auth file unreadable", "error", err)
		return false, nil
	}
	return subtle.ConstantTimeCompare(content, []byte(args.Auth)) == 1, nil
}

// decodeArgs unmarshals a command's arguments. Absent arguments decode
// as the zero value.
func decodeArgs(raw json.RawMessage, target any) error {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// parseHeaders accepts either a JSON object or a JSON string holding a
// JSON object. Non-string values map to the empty string.
func parseHeaders(raw json.RawMessage) (map[string]string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return map[string]string{}, nil
	}

	if raw[0] == '"' {
		var text string
		if err := json.Unmarshal(raw, &text); err != nil {
			return nil, fmt.Errorf("invalid headers: %w", err)
		}
		if text == "" {
			return map[string]string{}, nil
		}
		raw = json.RawMessage(text)
	}

	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("invalid headers: expected a JSON object, got %s", typeErr.Value)
		}
		return nil, fmt.Errorf("invalid headers: %w", err)
	}
	if values == nil {
		return map[string]string{}, nil
	}

	headerMap := make(map[string]string, len(values))
	for key, value := range values {
		if text, ok := value.(string); ok {
			headerMap[key] = text
		} else {
			headerMap[key] = ""
		}
	}
	return headerMap, nil
}
