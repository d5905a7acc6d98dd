// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Claudebot-bridge is the server half of the bridge: it exposes the
// authenticated HTTP surface that lets a remote chat process delegate
// task execution to this host's coding-agent CLI.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/claudebot/bridge/config"
	"github.com/claudebot/bridge/executor"
	"github.com/claudebot/bridge/lib/process"
	"github.com/claudebot/bridge/lib/ratelimit"
	"github.com/claudebot/bridge/lib/session"
	"github.com/claudebot/bridge/server"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var logLevel string
	var showVersion bool

	pflag.StringVar(&configPath, "config", "", "path to YAML config file (optional; environment overrides)")
	pflag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	pflag.BoolVar(&showVersion, "version", false, "print version and exit")
	pflag.Parse()

	if showVersion {
		fmt.Printf("claudebot-bridge %s\n", server.Version)
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	serverConfig, err := config.LoadServer(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sessionTTL, err := serverConfig.SessionTTLDuration()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	evictionInterval, err := serverConfig.EvictionIntervalDuration()
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	sessions := session.New(sessionTTL, nil)
	limiter := ratelimit.New(serverConfig.RateLimit, serverConfig.RateWindow(), nil)

	bridge := server.New(server.Config{
		Address:          fmt.Sprintf(":%d", serverConfig.Port),
		APIKey:           serverConfig.APIKey,
		AllowedAdmins:    serverConfig.AllowedAdmins,
		Limiter:          limiter,
		Sessions:         sessions,
		Runner: &executor.Executor{
			Binary:   serverConfig.ClaudeBinary,
			BaseDir:  serverConfig.WorkingDir,
			Timeout:  serverConfig.Timeout(),
			Sessions: sessions,
			Logger:   logger,
		},
		ExecutionTimeout: serverConfig.Timeout(),
		EvictionInterval: evictionInterval,
		Logger:           logger,
	})

	logger.Info("starting claudebot-bridge",
		"version", server.Version,
		"port", serverConfig.Port,
		"working_dir", serverConfig.WorkingDir,
		"timeout_seconds", serverConfig.TimeoutSeconds,
		"rate_limit", serverConfig.RateLimit,
		"allowlist_size", len(serverConfig.AllowedAdmins),
		"key_fingerprint", server.KeyFingerprint(serverConfig.APIKey),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return bridge.Serve(ctx)
}
