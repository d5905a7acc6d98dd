// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package server

// Error codes carried in JSON responses. The client switches on these
// rather than parsing message text.
const (
	CodeAuthError        = "auth_error"
	CodeForbidden        = "forbidden"
	CodeRateLimited      = "rate_limited"
	CodeInvalidRequest   = "invalid_request"
	CodePathInvalid      = "path_invalid"
	CodeFileNotFound     = "file_not_found"
	CodeNotARegularFile  = "not_a_regular_file"
	CodeExecutionTimeout = "execution_timeout"
	CodeExecutionFailed  = "execution_failed"
	CodeInternalError    = "internal_error"
)

// ExecuteRequest is the POST /execute body.
type ExecuteRequest struct {
	Task       string `json:"task"`
	ChatID     int64  `json:"chat_id"`
	SessionID  string `json:"session_id,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Autonomous bool   `json:"autonomous,omitempty"`
}

// ExecuteResponse is the POST /execute reply. Execution failures and
// timeouts are delivered here with Success false and an HTTP 200
// status: the HTTP exchange succeeded even though the task did not.
type ExecuteResponse struct {
	Success    bool     `json:"success"`
	Text       string   `json:"text,omitempty"`
	SessionID  string   `json:"session_id,omitempty"`
	DurationMS int64    `json:"duration_ms"`
	CostUSD    *float64 `json:"cost_usd,omitempty"`
	Error      string   `json:"error,omitempty"`
	Code       string   `json:"code,omitempty"`
}

// FileReadRequest is the POST /file/read body. ChatID scopes
// admission control and, when Analyze is set, the analysis run's
// session continuity.
type FileReadRequest struct {
	Path     string `json:"path"`
	ChatID   int64  `json:"chat_id,omitempty"`
	Analyze  bool   `json:"analyze,omitempty"`
	MaxBytes int64  `json:"max_bytes,omitempty"`
}

// FileReadResponse is the POST /file/read reply.
type FileReadResponse struct {
	Success   bool   `json:"success"`
	Content   string `json:"content,omitempty"`
	FileSize  int64  `json:"file_size,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Analysis  string `json:"analysis,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// StatusResponse is the GET /status reply.
type StatusResponse struct {
	Version           string `json:"version"`
	Healthy           bool   `json:"healthy"`
	RequestsProcessed uint64 `json:"requests_processed"`
	ActiveSessions    int    `json:"active_sessions"`
	UptimeSeconds     int64  `json:"uptime_seconds"`
}

// HealthResponse is the GET /health reply.
type HealthResponse struct {
	Status string `json:"status"`
}

// ErrorResponse is the envelope for rejected requests (auth,
// admission, validation, internal faults).
type ErrorResponse struct {
	Success           bool   `json:"success"`
	Error             string `json:"error"`
	Code              string `json:"code"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}
