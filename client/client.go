// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

// Package client is the caller-side half of the bridge: it issues
// authenticated requests to a bridge server and folds transport,
// auth, and execution failures into a small set of typed outcomes the
// chat-handling layer can branch on without parsing HTTP semantics.
//
// The client mirrors the server's wire format with its own types,
// avoiding an import dependency from the chat process back into the
// server implementation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/claudebot/bridge/lib/netutil"
)

// Outcome classifies the result of a bridge call.
type Outcome int

const (
	// Success means the task ran to completion.
	Success Outcome = iota

	// Unauthorized means the bearer credential was missing or wrong.
	Unauthorized

	// Forbidden means the caller is not in the server's allowlist.
	Forbidden

	// RateLimited means the caller exceeded its admission window.
	// RetryAfter on the result says when to try again.
	RateLimited

	// ExecutionTimeout means the task ran but hit the server's hard
	// deadline.
	ExecutionTimeout

	// ExecutionFailed means the task ran and failed, or the request
	// was rejected as invalid.
	ExecutionFailed

	// TransportError means the exchange itself failed: connection
	// refused, client-side timeout, server fault, undecodable reply.
	TransportError
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case Unauthorized:
		return "unauthorized"
	case Forbidden:
		return "forbidden"
	case RateLimited:
		return "rate_limited"
	case ExecutionTimeout:
		return "execution_timeout"
	case ExecutionFailed:
		return "execution_failed"
	case TransportError:
		return "transport_error"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// TaskRequest is one task to run on the bridge.
type TaskRequest struct {
	Task       string `json:"task"`
	ChatID     int64  `json:"chat_id"`
	SessionID  string `json:"session_id,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Autonomous bool   `json:"autonomous,omitempty"`
}

// TaskResult carries the server's execution result on Success (and,
// partially populated, on ExecutionTimeout and ExecutionFailed).
type TaskResult struct {
	Text       string   `json:"text,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	CostUSD    *float64 `json:"cost_usd,omitempty"`
}

// FileResult carries a proxied file read.
type FileResult struct {
	Content   string `json:"content,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Analysis  string `json:"analysis,omitempty"`
}

// Status mirrors the server's GET /status reply.
type Status struct {
	Version           string `json:"version"`
	Healthy           bool   `json:"healthy"`
	RequestsProcessed uint64 `json:"requests_processed"`
	ActiveSessions    int    `json:"active_sessions"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

// Result is the typed outcome of one bridge call.
type Result struct {
	// Outcome classifies what happened.
	Outcome Outcome

	// Task is populated for /execute calls that reached the
	// executor.
	Task *TaskResult

	// File is populated for successful /file/read calls.
	File *FileResult

	// RetryAfter is populated when Outcome is RateLimited.
	RetryAfter time.Duration

	// Message is a human-readable failure description, safe to
	// render to the end user.
	Message string

	// Err holds the underlying error when Outcome is TransportError.
	Err error
}

// Config configures a Client.
type Config struct {
	// URL is the bridge base URL (e.g., "http://host:9999").
	// Required.
	URL string

	// APIKey is the shared bearer secret. Required.
	APIKey string

	// Timeout is the server's execution timeout; the client allows
	// this long plus a network margin before failing closed.
	Timeout time.Duration

	// Logger is the structured logger. If nil, slog.Default() is
	// used.
	Logger *slog.Logger
}

// networkMargin is added to the server's execution timeout so a
// response produced just under the server deadline still arrives.
const networkMargin = 30 * time.Second

// Client issues authenticated requests to a bridge server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Client. The embedded http.Client carries a hard
// timeout so a call never blocks the caller's event loop past the
// configured deadline, even on a stalled connection.
func New(config Config) *Client {
	if config.URL == "" {
		panic("client: URL is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: config.URL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout + networkMargin,
		},
		logger: logger,
	}
}

// Execute runs a task on the bridge.
func (c *Client) Execute(ctx context.Context, request TaskRequest) Result {
	response, err := c.post(ctx, "/execute", request)
	if err != nil {
		c.logger.Warn("execute transport failure", "error", err)
		return Result{Outcome: TransportError, Message: "bridge unreachable", Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return c.rejection(response)
	}

	var reply executeReply
	if err := netutil.DecodeResponse(response.Body, &reply); err != nil {
		return Result{Outcome: TransportError, Message: "undecodable bridge response", Err: err}
	}

	task := &TaskResult{
		Text:       reply.Text,
		SessionID:  reply.SessionID,
		DurationMS: reply.DurationMS,
		CostUSD:    reply.CostUSD,
	}
	if reply.Success {
		return Result{Outcome: Success, Task: task}
	}
	outcome := ExecutionFailed
	if reply.Code == "execution_timeout" {
		outcome = ExecutionTimeout
	}
	return Result{Outcome: outcome, Task: task, Message: reply.Error}
}

// ReadFile proxies a bounded file read. A maxBytes of zero accepts
// the server's default cap.
func (c *Client) ReadFile(ctx context.Context, chatID int64, path string, maxBytes int64) Result {
	return c.readFile(ctx, fileReadRequest{Path: path, ChatID: chatID, MaxBytes: maxBytes})
}

// ReadFileAnalyzed reads a file and has the executor summarize it;
// the summary arrives in File.Analysis.
func (c *Client) ReadFileAnalyzed(ctx context.Context, chatID int64, path string) Result {
	return c.readFile(ctx, fileReadRequest{Path: path, ChatID: chatID, Analyze: true})
}

func (c *Client) readFile(ctx context.Context, request fileReadRequest) Result {
	response, err := c.post(ctx, "/file/read", request)
	if err != nil {
		c.logger.Warn("file read transport failure", "error", err)
		return Result{Outcome: TransportError, Message: "bridge unreachable", Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return c.rejection(response)
	}

	var reply fileReadReply
	if err := netutil.DecodeResponse(response.Body, &reply); err != nil {
		return Result{Outcome: TransportError, Message: "undecodable bridge response", Err: err}
	}

	file := &FileResult{
		Content:   reply.Content,
		FileSize:  reply.FileSize,
		Truncated: reply.Truncated,
		Analysis:  reply.Analysis,
	}
	if reply.Success {
		return Result{Outcome: Success, File: file}
	}
	outcome := ExecutionFailed
	if reply.Code == "execution_timeout" {
		outcome = ExecutionTimeout
	}
	return Result{Outcome: outcome, File: file, Message: reply.Error}
}

// Status fetches the server's status report.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var result Status
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	return &result, nil
}

// Health probes the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("health: %w", err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("health: HTTP %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}
	return nil
}

// TestConnection probes the bridge and returns a one-line summary
// suitable for a chat reply.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	if err := c.Health(ctx); err != nil {
		return "", err
	}
	status, err := c.Status(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("bridge %s up %ds, %d requests processed, %d active sessions",
		status.Version, status.UptimeSeconds, status.RequestsProcessed, status.ActiveSessions), nil
}

// rejection maps a non-200 response onto a typed outcome. The body is
// the server's JSON error envelope when one was produced.
func (c *Client) rejection(response *http.Response) Result {
	var envelope errorReply
	body := netutil.ErrorBody(response.Body)
	if err := json.Unmarshal([]byte(body), &envelope); err != nil {
		envelope.Error = body
	}
	message := envelope.Error
	if message == "" {
		message = fmt.Sprintf("HTTP %d", response.StatusCode)
	}

	switch response.StatusCode {
	case http.StatusUnauthorized:
		return Result{Outcome: Unauthorized, Message: message}
	case http.StatusForbidden:
		return Result{Outcome: Forbidden, Message: message}
	case http.StatusTooManyRequests:
		retryAfter := time.Duration(envelope.RetryAfterSeconds) * time.Second
		if retryAfter == 0 {
			if seconds, err := strconv.Atoi(response.Header.Get("Retry-After")); err == nil {
				retryAfter = time.Duration(seconds) * time.Second
			}
		}
		return Result{Outcome: RateLimited, RetryAfter: retryAfter, Message: message}
	default:
		if response.StatusCode >= 500 {
			return Result{
				Outcome: TransportError,
				Message: message,
				Err:     fmt.Errorf("bridge: HTTP %d: %s", response.StatusCode, message),
			}
		}
		return Result{Outcome: ExecutionFailed, Message: message}
	}
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.httpClient.Do(request)
}

// Wire mirrors of the server's reply shapes.

type executeReply struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text"`
	SessionID  string   `json:"session_id"`
	DurationMS int64    `json:"duration_ms"`
	CostUSD    *float64 `json:"cost_usd"`
	Error      string   `json:"error"`
	Code       string   `json:"code"`
}

type fileReadRequest struct {
	Path     string `json:"path"`
	ChatID   int64  `json:"chat_id,omitempty"`
	Analyze  bool   `json:"analyze,omitempty"`
	MaxBytes int64  `json:"max_bytes,omitempty"`
}

type fileReadReply struct {
	Success   bool   `json:"success"`
	Content   string `json:"content"`
	FileSize  int64  `json:"file_size"`
	Truncated bool   `json:"truncated"`
	Analysis  string `json:"analysis"`
	Error     string `json:"error"`
	Code      string `json:"code"`
}

type errorReply struct {
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int64  `json:"retry_after_seconds"`
}
