// Copyright 2026 The Nativebridge Authors
// SPDX-License-Identifier: Apache-2.0

// Nativebridge is the native side of a webview application. It relays
// HTTP requests the webview cannot make itself (CORS, streaming) and
// accepts file writes on a secret-gated loopback server.
//
// The frontend talks to it through the command boundary: JSON-line
// frames on stdin/stdout (the default, for a host that spawns this
// process) or CBOR frames on a Unix socket (--transport=socket).
// Logs go to stderr.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/nativebridge/nativebridge/boundary"
	"github.com/nativebridge/nativebridge/lib/config"
	"github.com/nativebridge/nativebridge/lib/registry"
	"github.com/nativebridge/nativebridge/lib/version"
	"github.com/nativebridge/nativebridge/localserver"
	"github.com/nativebridge/nativebridge/relay"
)

// shutdownTimeout bounds graceful shutdown of the write server.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// options holds command-line flags. Empty values leave the config file
// (or default) value in place.
type options struct {
	configPath  string
	dataDir     string
	transport   string
	socketPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func parseFlags(args []string) (*options, error) {
	var opts options
	flagSet := pflag.NewFlagSet("nativebridge", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "path to config file (YAML, or JSON with comments); default $"+config.EnvConfig)
	flagSet.StringVar(&opts.dataDir, "data-dir", "", "directory file writes land under (default: platform data directory)")
	flagSet.StringVar(&opts.transport, "transport", "", "command transport: stdio or socket")
	flagSet.StringVar(&opts.socketPath, "socket", "", "Unix socket path for --transport=socket")
	flagSet.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&opts.logFormat, "log-format", "", "log format: auto, json, text")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}
	if flagSet.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return &opts, nil
}

// apply overrides cfg with every flag that was set.
func (o *options) apply(cfg *config.Config) {
	if o.dataDir != "" {
		cfg.DataDir = o.dataDir
	}
	if o.transport != "" {
		cfg.Boundary.Transport = o.transport
	}
	if o.socketPath != "" {
		cfg.Boundary.SocketPath = o.socketPath
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}
}

func run(args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if opts.showVersion {
		version.Print(os.Stdout, "nativebridge")
		return nil
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(os.Stderr, cfg.Log)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, logger, os.Stdin, os.Stdout)
}

// newLogger builds the process logger on w: text when w is a terminal
// and the format is auto, JSON otherwise.
func newLogger(w io.Writer, logConfig config.LogConfig) (*slog.Logger, error) {
	level, err := logConfig.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	options := &slog.HandlerOptions{Level: level}

	text := logConfig.Format == config.LogFormatText
	if logConfig.Format == config.LogFormatAuto {
		if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
			text = true
		}
	}

	if text {
		return slog.New(slog.NewTextHandler(w, options)), nil
	}
	return slog.New(slog.NewJSONHandler(w, options)), nil
}

// serve starts every component in dependency order and blocks until
// the boundary transport ends (frontend gone or ctx cancelled).
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdin io.Reader, stdout io.Writer) error {
	logger.Info("starting nativebridge",
		"version", version.Info(),
		"transport", cfg.Boundary.Transport,
	)

	dataDir, err := cfg.EnsureDataDir()
	if err != nil {
		return err
	}

	reg, err := registry.New()
	if err != nil {
		return fmt.Errorf("creating secret registry: %w", err)
	}
	defer reg.Close()

	writeServer, err := localserver.New(localserver.Config{
		Root:           dataDir,
		Registry:       reg,
		FirstPort:      cfg.Server.FirstPort,
		LastPort:       cfg.Server.LastPort,
		MaxPayloadSize: cfg.Server.MaxPayloadSize,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("creating write server: %w", err)
	}
	if err := writeServer.Start(ctx); err != nil {
		return fmt.Errorf("starting write server: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := writeServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("write server shutdown failed", "error", err)
		}
	}()

	relayer := relay.New(relay.Config{
		RequestTimeout:         cfg.Relay.RequestTimeoutDuration(),
		StreamTimeout:          cfg.Relay.StreamTimeoutDuration(),
		MaxResponseSize:        cfg.Relay.MaxResponseSize,
		DisableContentDecoding: !cfg.Relay.DecodeContent,
		Logger:                 logger,
	})

	hub := boundary.NewHub()
	dispatcher := boundary.NewDispatcher(logger)
	commands := &boundary.Commands{
		Relay:    relayer,
		Registry: reg,
		Events:   hub,
		Logger:   logger,
	}
	commands.Register(dispatcher)

	boundaryConfig := boundary.Config{Dispatcher: dispatcher, Hub: hub, Logger: logger}
	switch cfg.Boundary.Transport {
	case config.TransportSocket:
		socketPath, err := cfg.ResolveSocketPath()
		if err != nil {
			return err
		}
		err = boundary.NewSocketServer(socketPath, boundaryConfig).Serve(ctx)
		if err != nil {
			return fmt.Errorf("socket boundary: %w", err)
		}
	default:
		if err := boundary.ServeStdio(ctx, stdin, stdout, boundaryConfig); err != nil {
			return fmt.Errorf("stdio boundary: %w", err)
		}
	}

	if ctx.Err() != nil {
		logger.Info("received shutdown signal")
	}
	logger.Info("shutdown complete")
	return nil
}
