// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Claudebot-exec is a command-line client for a claudebot-bridge
// server: it runs tasks, proxies file reads, and reports bridge
// status from the caller's side of the channel.
//
// Usage:
//
//	claudebot-exec run "describe this repository"
//	claudebot-exec read /var/log/app.log --analyze
//	claudebot-exec status
//	claudebot-exec ping
//
// Connection settings come from BRIDGE_URL, BRIDGE_API_KEY, and
// BRIDGE_TIMEOUT, optionally seeded from a YAML config file.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/claudebot/bridge/client"
	"github.com/claudebot/bridge/config"
	"github.com/claudebot/bridge/lib/process"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var configPath string
	var chatID int64
	var sessionID string
	var workingDir string
	var autonomous bool
	var analyze bool
	var maxBytes int64

	pflag.StringVar(&configPath, "config", "", "path to YAML config file (optional; environment overrides)")
	pflag.Int64Var(&chatID, "chat-id", 0, "caller identity for admission control and session continuity")
	pflag.StringVar(&sessionID, "session-id", "", "resume an explicit session instead of the stored one")
	pflag.StringVar(&workingDir, "working-dir", "", "working directory relative to the server's base")
	pflag.BoolVar(&autonomous, "autonomous", false, "skip the agent's permission prompts")
	pflag.BoolVar(&analyze, "analyze", false, "with read: have the agent summarize the file")
	pflag.Int64Var(&maxBytes, "max-bytes", 0, "with read: cap on bytes returned (0 = server default)")
	pflag.Parse()

	arguments := pflag.Args()
	if len(arguments) == 0 {
		return fmt.Errorf("usage: claudebot-exec <run|read|status|ping> [arguments]")
	}

	clientConfig, err := config.LoadClient(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	bridge := client.New(client.Config{
		URL:     clientConfig.URL,
		APIKey:  clientConfig.APIKey,
		Timeout: clientConfig.Timeout(),
		Logger:  logger,
	})

	ctx := context.Background()

	switch arguments[0] {
	case "run":
		if len(arguments) < 2 {
			return fmt.Errorf("usage: claudebot-exec run <task>")
		}
		task := strings.Join(arguments[1:], " ")
		return report(bridge.Execute(ctx, client.TaskRequest{
			Task:       task,
			ChatID:     chatID,
			SessionID:  sessionID,
			WorkingDir: workingDir,
			Autonomous: autonomous,
		}))

	case "read":
		if len(arguments) != 2 {
			return fmt.Errorf("usage: claudebot-exec read <absolute-path>")
		}
		if analyze {
			return report(bridge.ReadFileAnalyzed(ctx, chatID, arguments[1]))
		}
		return report(bridge.ReadFile(ctx, chatID, arguments[1], maxBytes))

	case "status":
		status, err := bridge.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("version:            %s\n", status.Version)
		fmt.Printf("healthy:            %v\n", status.Healthy)
		fmt.Printf("requests processed: %d\n", status.RequestsProcessed)
		fmt.Printf("active sessions:    %d\n", status.ActiveSessions)
		fmt.Printf("uptime:             %ds\n", status.UptimeSeconds)
		return nil

	case "ping":
		summary, err := bridge.TestConnection(ctx)
		if err != nil {
			return err
		}
		fmt.Println(summary)
		return nil

	default:
		return fmt.Errorf("unknown command %q (want run, read, status, or ping)", arguments[0])
	}
}

// report renders a typed outcome for the terminal and turns
// non-success outcomes into exit errors.
func report(result client.Result) error {
	switch result.Outcome {
	case client.Success:
		switch {
		case result.Task != nil:
			fmt.Println(result.Task.Text)
			if result.Task.SessionID != "" {
				fmt.Fprintf(os.Stderr, "session: %s\n", result.Task.SessionID)
			}
			if result.Task.CostUSD != nil {
				fmt.Fprintf(os.Stderr, "cost: $%.4f\n", *result.Task.CostUSD)
			}
		case result.File != nil:
			if result.File.Analysis != "" {
				fmt.Println(result.File.Analysis)
			} else {
				fmt.Print(result.File.Content)
			}
			if result.File.Truncated {
				fmt.Fprintf(os.Stderr, "truncated: showing %d of %d bytes\n",
					len(result.File.Content), result.File.FileSize)
			}
		}
		return nil

	case client.RateLimited:
		return fmt.Errorf("rate limited, retry in %s", result.RetryAfter)

	case client.TransportError:
		if result.Err != nil {
			return fmt.Errorf("%s: %w", result.Message, result.Err)
		}
		return fmt.Errorf("%s", result.Message)

	default:
		return fmt.Errorf("%s: %s", result.Outcome, result.Message)
	}
}
