// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nativebridge/nativebridge/lib/config"
	"github.com/nativebridge/nativebridge/localserver"
)

func TestParseFlags(t *testing.T) {
	opts, err := parseFlags([]string{
		"--config", "/etc/nb.yaml",
		"--data-dir", "/srv/nb",
		"--transport", "socket",
		"--socket", "/run/nb.sock",
		"--log-level", "debug",
		"--log-format", "text",
	})
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	if opts.configPath != "/etc/nb.yaml" {
		t.Errorf("config path: got %q", opts.configPath)
	}

	cfg := config.Default()
	opts.apply(cfg)
	if cfg.DataDir != "/srv/nb" {
		t.Errorf("data_dir: got %q", cfg.DataDir)
	}
	if cfg.Boundary.Transport != config.TransportSocket || cfg.Boundary.SocketPath != "/run/nb.sock" {
		t.Errorf("boundary: got %+v", cfg.Boundary)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != config.LogFormatText {
		t.Errorf("log: got %+v", cfg.Log)
	}
}

func TestParseFlagsKeepsUnsetValues(t *testing.T) {
	opts, err := parseFlags(nil)
	if err != nil {
		t.Fatalf("parseFlags: %v", err)
	}
	cfg := config.Default()
	cfg.DataDir = "/from/file"
	opts.apply(cfg)
	if cfg.DataDir != "/from/file" {
		t.Errorf("unset flag overrode config: got %q", cfg.DataDir)
	}
	if cfg.Boundary.Transport != config.TransportStdio {
		t.Errorf("transport: got %q", cfg.Boundary.Transport)
	}
}

func TestParseFlagsRejectsArguments(t *testing.T) {
	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Error("expected error for positional argument")
	}
	if _, err := parseFlags([]string{"--no-such-flag"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name   string
		format string
		json   bool
	}{
		{"auto on a buffer is json", config.LogFormatAuto, true},
		{"json", config.LogFormatJSON, true},
		{"text", config.LogFormatText, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buffer bytes.Buffer
			logger, err := newLogger(&buffer, config.LogConfig{Level: "info", Format: test.format})
			if err != nil {
				t.Fatalf("newLogger: %v", err)
			}
			logger.Debug("hidden")
			logger.Info("visible", "key", "value")

			output := buffer.String()
			if strings.Contains(output, "hidden") {
				t.Error("debug record passed an info-level logger")
			}
			isJSON := json.Valid(bytes.TrimSpace(buffer.Bytes()))
			if isJSON != test.json {
				t.Errorf("json output = %v, want %v: %s", isJSON, test.json, output)
			}
		})
	}

	if _, err := newLogger(io.Discard, config.LogConfig{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

// frontend plays the webview side of the stdio boundary.
type frontend struct {
	t       *testing.T
	input   *io.PipeWriter
	decoder *json.Decoder
	nextID  int
}

type resultFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  string          `json:"error"`
}

func (f *frontend) invoke(command string, args any) resultFrame {
	f.t.Helper()
	f.nextID++
	id := fmt.Sprintf("call-%d", f.nextID)

	encoded, err := json.Marshal(map[string]any{
		"type":    "invoke",
		"id":      id,
		"command": command,
		"args":    args,
	})
	if err != nil {
		f.t.Fatalf("encoding invoke: %v", err)
	}
	if _, err := f.input.Write(append(encoded, '\n')); err != nil {
		f.t.Fatalf("writing invoke: %v", err)
	}

	for {
		var frame resultFrame
		if err := f.decoder.Decode(&frame); err != nil {
			f.t.Fatalf("reading result for %s: %v", command, err)
		}
		if frame.Type == "result" && frame.ID == id {
			return frame
		}
	}
}

func TestServeStdioEndToEnd(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Upstream", "yes")
		w.Write([]byte("upstream says hi"))
	}))
	defer upstream.Close()

	dataDir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dataDir
	cfg.Server.FirstPort = 21000
	cfg.Server.LastPort = 21100

	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	done := make(chan error, 1)
	go func() {
		err := serve(context.Background(), cfg, logger, inReader, outWriter)
		outWriter.Close()
		done <- err
	}()

	client := &frontend{t: t, input: inWriter, decoder: json.NewDecoder(outReader)}

	secretFrame := client.invoke("get_secret", nil)
	var secret string
	if err := json.Unmarshal(secretFrame.Result, &secret); err != nil || secret == "" {
		t.Fatalf("get_secret: %s (%v)", secretFrame.Result, err)
	}

	portFrame := client.invoke("get_port", nil)
	var port int
	if err := json.Unmarshal(portFrame.Result, &port); err != nil || port < 21000 || port > 21100 {
		t.Fatalf("get_port: %s (%v)", portFrame.Result, err)
	}

	request, err := http.NewRequest(http.MethodPost,
		fmt.Sprintf("http://127.0.0.1:%d/?path=saves/slot1.bin", port),
		strings.NewReader("save data"))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	request.Header.Set(localserver.SecretHeader, secret)
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		t.Fatalf("write request: %v", err)
	}
	response.Body.Close()
	if response.StatusCode != http.StatusOK {
		t.Fatalf("write status: got %d", response.StatusCode)
	}
	written, err := os.ReadFile(filepath.Join(dataDir, "saves", "slot1.bin"))
	if err != nil || string(written) != "save data" {
		t.Fatalf("written file: %q (%v)", written, err)
	}

	relayFrame := client.invoke("relay_request", map[string]any{
		"url":     upstream.URL,
		"method":  "GET",
		"headers": map[string]string{},
	})
	if relayFrame.Error != "" {
		t.Fatalf("relay_request error: %s", relayFrame.Error)
	}
	var relayed struct {
		Success bool              `json:"success"`
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers"`
		Body    []byte            `json:"body"`
	}
	if err := json.Unmarshal(relayFrame.Result, &relayed); err != nil {
		t.Fatalf("decoding relay result %s: %v", relayFrame.Result, err)
	}
	if !relayed.Success || relayed.Status != http.StatusOK || relayed.Headers["x-upstream"] != "yes" {
		t.Errorf("relay result: %+v", relayed)
	}
	if string(relayed.Body) != "upstream says hi" {
		t.Errorf("relay body: got %q", relayed.Body)
	}

	authPath := filepath.Join(t.TempDir(), "auth")
	if err := os.WriteFile(authPath, []byte("token"), 0o600); err != nil {
		t.Fatal(err)
	}
	authFrame := client.invoke("check_auth", map[string]string{"fpath": authPath, "auth": "token"})
	if string(authFrame.Result) != "true" {
		t.Errorf("check_auth: got %s", authFrame.Result)
	}

	// Closing the frontend's side ends the process cleanly and takes
	// the write server down with it.
	inWriter.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after stdin closed")
	}

	if _, err := http.Post(fmt.Sprintf("http://127.0.0.1:%d/", port), "text/plain", nil); err == nil {
		t.Error("write server still accepting connections after shutdown")
	}
}
