// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package executor runs the coding-agent CLI on behalf of bridge
// callers. It resolves the caller's working directory beneath a
// configured base, substitutes stored session identifiers for
// conversational continuity, enforces a hard wall-clock timeout with
// guaranteed process-group termination, and distills the CLI's
// stream-json output into a single result.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/claudebot/bridge/lib/clock"
	"github.com/claudebot/bridge/lib/session"
)

// Request is one task execution. Constructed once by the caller and
// not mutated afterwards.
type Request struct {
	// Task is the prompt to run. Required.
	Task string

	// CallerID scopes session continuity and the default working
	// directory.
	CallerID int64

	// SessionID optionally resumes an explicit session. When empty,
	// the caller's stored session (if any) is resumed instead.
	SessionID string

	// WorkingDir is an optional path relative to the configured base
	// directory. When empty, a per-caller directory beneath the base
	// is used.
	WorkingDir string

	// Autonomous skips the CLI's permission prompts.
	Autonomous bool
}

// Result is the outcome of one execution. Produced exactly once per
// Request; failures after process launch are reported here, never as
// returned errors.
type Result struct {
	// Success reports whether the task ran to completion.
	Success bool

	// Text is the final result text on success.
	Text string

	// SessionID is the session produced by this run, resumable on a
	// later request.
	SessionID string

	// Duration is the wall-clock execution time, measured regardless
	// of outcome.
	Duration time.Duration

	// CostUSD is the run cost when the CLI reported one.
	CostUSD *float64

	// ErrorMessage describes the failure when Success is false.
	ErrorMessage string

	// TimedOut reports that the run was terminated at the deadline.
	TimedOut bool
}

// Request validation errors, testable with errors.Is. The server maps
// these to client-fault responses; anything else arising before the
// process launches is an internal fault.
var (
	ErrEmptyTask        = errors.New("task must not be empty")
	ErrWorkingDirEscape = errors.New("working_dir escapes the base directory")
)

// waitDelay bounds how long Wait blocks on the stdout pipe after the
// process group is killed, in case a grandchild inherited the pipe.
const waitDelay = 5 * time.Second

// Executor invokes the coding-agent CLI.
type Executor struct {
	// Binary is the CLI executable name or path.
	Binary string

	// BaseDir is the base directory for caller working directories.
	BaseDir string

	// Timeout is the hard wall-clock bound on one run.
	Timeout time.Duration

	// Sessions provides per-caller session continuity. Optional; when
	// nil, every run starts a fresh session.
	Sessions *session.Store

	// Logger receives structured log output. If nil, slog.Default()
	// is used.
	Logger *slog.Logger

	// Clock measures execution duration. If nil, the real clock is
	// used.
	Clock clock.Clock
}

func (e *Executor) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

func (e *Executor) clock() clock.Clock {
	if e.Clock != nil {
		return e.Clock
	}
	return clock.Real()
}

// ResolveWorkingDir combines the base directory with the caller's
// relative segment, rejecting any combination that escapes the base.
// An empty segment resolves to the caller's own directory beneath the
// base.
func (e *Executor) ResolveWorkingDir(callerID int64, workingDir string) (string, error) {
	base := filepath.Clean(e.BaseDir)
	if workingDir == "" {
		return filepath.Join(base, fmt.Sprintf("chat_%d", callerID)), nil
	}
	if filepath.IsAbs(workingDir) || strings.ContainsRune(workingDir, 0) {
		return "", fmt.Errorf("%w: %q", ErrWorkingDirEscape, workingDir)
	}

	resolved := filepath.Join(base, workingDir)
	if resolved != base && !strings.HasPrefix(resolved, base+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrWorkingDirEscape, workingDir)
	}
	return resolved, nil
}

// Execute runs the CLI with the resolved task. The returned error is
// non-nil only for an invalid request or an environment fault before
// the process launches; every failure from launch onward — non-zero
// exit, timeout, unlaunchable binary — is reported in the Result so
// the server never crashes on executor trouble.
func (e *Executor) Execute(ctx context.Context, request Request) (Result, error) {
	if strings.TrimSpace(request.Task) == "" {
		return Result{}, ErrEmptyTask
	}

	workingDir, err := e.ResolveWorkingDir(request.CallerID, request.WorkingDir)
	if err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(workingDir, 0755); err != nil {
		return Result{}, fmt.Errorf("creating working directory: %w", err)
	}

	// Resolve the session to resume: an explicit request wins, then
	// the caller's stored session.
	resumeID := request.SessionID
	if resumeID == "" && e.Sessions != nil {
		if stored, ok := e.Sessions.Get(request.CallerID); ok {
			resumeID = stored
		}
	}

	arguments := []string{
		"-p", request.Task,
		"--verbose",
		"--output-format", "stream-json",
	}
	if resumeID != "" {
		arguments = append(arguments, "--resume", resumeID)
	}
	if request.Autonomous {
		arguments = append(arguments, "--dangerously-skip-permissions")
	}

	logger := e.logger().With("caller_id", request.CallerID)
	logger.Info("executing task",
		"task_chars", len(request.Task),
		"working_dir", workingDir,
		"resume", resumeID != "",
		"autonomous", request.Autonomous,
	)

	start := e.clock().Now()
	result := e.run(ctx, arguments, workingDir)
	result.Duration = e.clock().Now().Sub(start)

	if result.Success && result.SessionID != "" && e.Sessions != nil {
		e.Sessions.Put(request.CallerID, result.SessionID)
	}

	logger.Info("execution finished",
		"success", result.Success,
		"timed_out", result.TimedOut,
		"duration_ms", result.Duration.Milliseconds(),
		"session", result.SessionID != "",
	)
	return result, nil
}

// run spawns the CLI and waits for it within the timeout. The child
// is started in its own process group; on deadline the whole group is
// killed so no grandchild outlives the request.
func (e *Executor) run(ctx context.Context, arguments []string, workingDir string) Result {
	runCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	command := exec.CommandContext(runCtx, e.Binary, arguments...)
	command.Dir = workingDir
	command.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	command.Cancel = func() error {
		// Negative PID addresses the process group, reaching any
		// children the CLI spawned.
		return unix.Kill(-command.Process.Pid, unix.SIGKILL)
	}
	command.WaitDelay = waitDelay

	stderr := &boundedBuffer{limit: 8 * 1024}
	command.Stderr = stderr

	stdout, err := command.StdoutPipe()
	if err != nil {
		return Result{ErrorMessage: fmt.Sprintf("creating stdout pipe: %v", err)}
	}

	if err := command.Start(); err != nil {
		return Result{ErrorMessage: fmt.Sprintf("starting %s: %v", e.Binary, err)}
	}

	summary, parseErr := summarizeStream(stdout)
	waitErr := command.Wait()

	if runCtx.Err() == context.DeadlineExceeded {
		return Result{
			SessionID:    summary.SessionID,
			TimedOut:     true,
			ErrorMessage: fmt.Sprintf("execution timed out after %s", e.Timeout),
		}
	}

	result := Result{
		Text:      summary.Text,
		SessionID: summary.SessionID,
		CostUSD:   summary.CostUSD,
	}

	switch {
	case summary.ErrorMessage != "":
		result.ErrorMessage = summary.ErrorMessage
	case waitErr != nil:
		result.ErrorMessage = fmt.Sprintf("%s exited: %v", e.Binary, waitErr)
		if tail := strings.TrimSpace(stderr.String()); tail != "" {
			result.ErrorMessage += ": " + tail
		}
	case parseErr != nil:
		result.ErrorMessage = fmt.Sprintf("reading executor output: %v", parseErr)
	default:
		result.Success = true
	}
	return result
}

// AnalyzeFile runs a summarization task over file content through the
// normal Execute path, inheriting its timeout and the caller's
// session continuity.
func (e *Executor) AnalyzeFile(ctx context.Context, callerID int64, path string, content []byte) (Result, error) {
	task := fmt.Sprintf(
		"Analyze the following file and summarize its purpose, structure, and anything notable.\n\nFile: %s\n\n%s",
		path, content,
	)
	return e.Execute(ctx, Request{Task: task, CallerID: callerID})
}

// boundedBuffer keeps the leading bytes written to it, discarding the
// rest. Used to retain a stderr prefix for error messages without
// unbounded growth.
type boundedBuffer struct {
	limit int
	data  []byte
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	if remaining := b.limit - len(b.data); remaining > 0 {
		if len(p) > remaining {
			b.data = append(b.data, p[:remaining]...)
		} else {
			b.data = append(b.data, p...)
		}
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string { return string(b.data) }
