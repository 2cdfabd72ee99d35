// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable consulted by Load when no
// explicit path is given.
const EnvConfig = "NATIVEBRIDGE_CONFIG"

// Transport values for BoundaryConfig.Transport.
const (
	TransportStdio  = "stdio"
	TransportSocket = "socket"
)

// Log format values for LogConfig.Format.
const (
	LogFormatAuto = "auto"
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// Config is the master configuration for the nativebridge process.
type Config struct {
	// AppIdentifier names the application. It is the final component of
	// the default data directory.
	// Default: nativebridge
	AppIdentifier string `yaml:"app_identifier" json:"app_identifier"`

	// DataDir overrides the platform data directory. Files written
	// through the local server land under this directory.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Server configures the loopback file-write server.
	Server ServerConfig `yaml:"server" json:"server"`

	// Relay configures outbound HTTP relaying.
	Relay RelayConfig `yaml:"relay" json:"relay"`

	// Boundary configures the frontend command channel.
	Boundary BoundaryConfig `yaml:"boundary" json:"boundary"`

	// Log configures structured logging.
	Log LogConfig `yaml:"log" json:"log"`
}

// ServerConfig configures the loopback file-write server.
type ServerConfig struct {
	// FirstPort is the first port probed on 127.0.0.1.
	// Default: 5354
	FirstPort int `yaml:"first_port" json:"first_port"`

	// LastPort is the last port probed, inclusive.
	// Default: 65534
	LastPort int `yaml:"last_port" json:"last_port"`

	// MaxPayloadSize bounds request bodies in bytes.
	// Default: 1 GiB
	MaxPayloadSize int64 `yaml:"max_payload_size" json:"max_payload_size"`
}

// RelayConfig configures outbound HTTP relaying.
type RelayConfig struct {
	// RequestTimeout bounds a buffered relay call (Go duration syntax).
	// Default: 120s
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`

	// StreamTimeout bounds a streaming relay session.
	// Default: 240s
	StreamTimeout string `yaml:"stream_timeout" json:"stream_timeout"`

	// MaxResponseSize bounds buffered response bodies in bytes. Zero
	// selects the relay's built-in limit.
	MaxResponseSize int64 `yaml:"max_response_size" json:"max_response_size"`

	// DecodeContent enables transparent gzip/deflate/zstd decoding of
	// response bodies.
	// Default: true
	DecodeContent bool `yaml:"decode_content" json:"decode_content"`
}

// BoundaryConfig configures the frontend command channel.
type BoundaryConfig struct {
	// Transport is "stdio" (JSON lines on stdin/stdout) or "socket"
	// (CBOR frames on a Unix socket).
	// Default: stdio
	Transport string `yaml:"transport" json:"transport"`

	// SocketPath is the Unix socket path for the socket transport. It
	// must lie outside the data directory.
	// Default: $XDG_RUNTIME_DIR/<app_identifier>/nativebridge.sock, or
	// the user cache directory when XDG_RUNTIME_DIR is unset
	SocketPath string `yaml:"socket_path" json:"socket_path"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	// Level is debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level" json:"level"`

	// Format is auto, json, or text. Auto selects text when stderr is
	// a terminal and JSON otherwise.
	// Default: auto
	Format string `yaml:"format" json:"format"`
}

// Default returns the default configuration. Every field is populated
// so that a config file only needs to name what it changes.
func Default() *Config {
	return &Config{
		AppIdentifier: "nativebridge",
		Server: ServerConfig{
			FirstPort:      5354,
			LastPort:       65534,
			MaxPayloadSize: 1 << 30,
		},
		Relay: RelayConfig{
			RequestTimeout: "120s",
			StreamTimeout:  "240s",
			DecodeContent:  true,
		},
		Boundary: BoundaryConfig{
			Transport: TransportStdio,
		},
		Log: LogConfig{
			Level:  "info",
			Format: LogFormatAuto,
		},
	}
}

// Load loads configuration from path, or from the file named by
// NATIVEBRIDGE_CONFIG when path is empty. With neither set, the defaults
// are returned.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path == "" {
		cfg := Default()
		cfg.expandVariables()
		return cfg, nil
	}
	return LoadFile(path)
}

// LoadFile loads configuration from a specific file path, merging it
// over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}

	cfg.expandVariables()
	return cfg, nil
}

// loadFile decodes one file into c, choosing the format by extension.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		decoder := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		decoder.DisallowUnknownFields()
		return decoder.Decode(c)
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		err := decoder.Decode(c)
		if errors.Is(err, io.EOF) {
			// An empty file selects the defaults.
			return nil
		}
		return err
	}
}

// expandVariables expands ${VAR} and ${VAR:-default} patterns in paths.
func (c *Config) expandVariables() {
	vars := map[string]string{
		"HOME": os.Getenv("HOME"),
	}

	c.DataDir = expandVars(c.DataDir, vars)
	vars["NATIVEBRIDGE_DATA_DIR"] = c.DataDir
	c.Boundary.SocketPath = expandVars(c.Boundary.SocketPath, vars)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// expandVars expands ${VAR} and ${VAR:-default} patterns, preferring
// vars over the process environment.
func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}

// Validate checks the configuration for errors. All problems are
// reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.AppIdentifier == "" {
		errs = append(errs, fmt.Errorf("app_identifier is required"))
	} else if strings.ContainsAny(c.AppIdentifier, `/\`) || c.AppIdentifier == "." || c.AppIdentifier == ".." {
		errs = append(errs, fmt.Errorf("app_identifier %q must be a single path component", c.AppIdentifier))
	}

	if c.Server.FirstPort < 1 || c.Server.FirstPort > 65535 {
		errs = append(errs, fmt.Errorf("server.first_port %d out of range 1-65535", c.Server.FirstPort))
	}
	if c.Server.LastPort < 1 || c.Server.LastPort > 65535 {
		errs = append(errs, fmt.Errorf("server.last_port %d out of range 1-65535", c.Server.LastPort))
	}
	if c.Server.FirstPort > c.Server.LastPort {
		errs = append(errs, fmt.Errorf("server.first_port %d is above server.last_port %d", c.Server.FirstPort, c.Server.LastPort))
	}
	if c.Server.MaxPayloadSize <= 0 {
		errs = append(errs, fmt.Errorf("server.max_payload_size must be positive"))
	}

	if _, err := parsePositiveDuration(c.Relay.RequestTimeout); err != nil {
		errs = append(errs, fmt.Errorf("relay.request_timeout: %w", err))
	}
	if _, err := parsePositiveDuration(c.Relay.StreamTimeout); err != nil {
		errs = append(errs, fmt.Errorf("relay.stream_timeout: %w", err))
	}
	if c.Relay.MaxResponseSize < 0 {
		errs = append(errs, fmt.Errorf("relay.max_response_size must not be negative"))
	}

	switch c.Boundary.Transport {
	case TransportStdio, TransportSocket:
	default:
		errs = append(errs, fmt.Errorf("boundary.transport must be one of: %v", []string{TransportStdio, TransportSocket}))
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	switch c.Log.Format {
	case LogFormatAuto, LogFormatJSON, LogFormatText:
	default:
		errs = append(errs, fmt.Errorf("log.format must be one of: %v", []string{LogFormatAuto, LogFormatJSON, LogFormatText}))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func parsePositiveDuration(value string) (time.Duration, error) {
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, err
	}
	if duration <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", value)
	}
	return duration, nil
}

// RequestTimeoutDuration returns the parsed buffered relay timeout. Call only
// after Validate has succeeded.
func (r RelayConfig) RequestTimeoutDuration() time.Duration {
	duration, _ := parsePositiveDuration(r.RequestTimeout)
	return duration
}

// StreamTimeoutDuration returns the parsed streaming relay timeout. Call
// only after Validate has succeeded.
func (r RelayConfig) StreamTimeoutDuration() time.Duration {
	duration, _ := parsePositiveDuration(r.StreamTimeout)
	return duration
}

// SlogLevel parses Level into an slog.Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, err
	}
	return level, nil
}

// ResolveDataDir returns the directory files are written under:
// DataDir when set, otherwise the platform data directory joined with
// AppIdentifier.
func (c *Config) ResolveDataDir() (string, error) {
	if c.DataDir != "" {
		return filepath.Abs(c.DataDir)
	}
	base, err := platformDataDir()
	if err != nil {
		return "", fmt.Errorf("locating data directory: %w", err)
	}
	return filepath.Join(base, c.AppIdentifier), nil
}

// ResolveSocketPath returns the absolute socket path for the socket
// transport. A path under the data directory is refused: the write
// server could replace the socket file.
func (c *Config) ResolveSocketPath() (string, error) {
	socketPath := c.Boundary.SocketPath
	if socketPath == "" {
		base, err := runtimeDir()
		if err != nil {
			return "", fmt.Errorf("locating runtime directory: %w", err)
		}
		socketPath = filepath.Join(base, c.AppIdentifier, "nativebridge.sock")
	}
	socketPath, err := filepath.Abs(socketPath)
	if err != nil {
		return "", err
	}

	dataDir, err := c.ResolveDataDir()
	if err != nil {
		return "", err
	}
	if relative, err := filepath.Rel(dataDir, socketPath); err == nil && filepath.IsLocal(relative) {
		return "", fmt.Errorf("boundary.socket_path %s is inside the data directory %s", socketPath, dataDir)
	}
	return socketPath, nil
}

// runtimeDir is XDG_RUNTIME_DIR when set, otherwise the user cache
// directory.
func runtimeDir() (string, error) {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" && filepath.IsAbs(dir) {
		return dir, nil
	}
	return os.UserCacheDir()
}

// platformDataDir follows the XDG base directory convention on Unix and
// the per-user application data directory on macOS and Windows.
func platformDataDir() (string, error) {
	switch runtime.GOOS {
	case "darwin", "windows", "ios":
		return os.UserConfigDir()
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" && filepath.IsAbs(dir) {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share"), nil
}

// EnsureDataDir creates the data directory if it does not exist and
// returns its path.
func (c *Config) EnsureDataDir() (string, error) {
	dataDir, err := c.ResolveDataDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dataDir, err)
	}
	return dataDir, nil
}
