// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claudebot/bridge/executor"
	"github.com/claudebot/bridge/lib/pathcheck"
)

// maxRequestBytes bounds request bodies. Task prompts can carry
// pasted file content, so this is generous.
const maxRequestBytes = 4 << 20

type handlerFunc func(w http.ResponseWriter, r *http.Request)

// requireAuth verifies the bearer credential before the handler runs.
// Authenticated requests get a request ID and count toward the
// /status total; rejected ones touch no other state.
func (s *Server) requireAuth(handler handlerFunc) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticate(r) {
			s.logger.Warn("authentication failed",
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
			)
			s.writeError(w, http.StatusUnauthorized, CodeAuthError, "missing or invalid credential")
			return
		}
		s.requests.Add(1)
		r.Header.Set("X-Request-Id", uuid.NewString())
		handler(w, r)
	}
}

// admit runs the post-auth admission gates in order: allowlist, then
// rate limit. Unauthorized callers never consume rate budget. Writes
// the rejection response itself; the caller proceeds only on true.
func (s *Server) admit(w http.ResponseWriter, r *http.Request, callerID int64) bool {
	if !s.allowed(callerID) {
		s.logger.Warn("caller not in allowlist",
			"request_id", r.Header.Get("X-Request-Id"),
			"caller_id", callerID,
		)
		s.writeError(w, http.StatusForbidden, CodeForbidden, "caller is not permitted")
		return false
	}

	decision := s.limiter.Allow(callerID)
	if !decision.Allowed {
		retryAfter := ceilSeconds(decision.RetryAfter)
		s.logger.Warn("rate limit exceeded",
			"request_id", r.Header.Get("X-Request-Id"),
			"caller_id", callerID,
			"retry_after_seconds", retryAfter,
		)
		w.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))
		s.writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
			Error:             fmt.Sprintf("rate limited, retry in %ds", retryAfter),
			Code:              CodeRateLimited,
			RetryAfterSeconds: retryAfter,
		})
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, StatusResponse{
		Version:           Version,
		Healthy:           true,
		RequestsProcessed: s.requests.Load(),
		ActiveSessions:    s.sessions.Len(),
		UptimeSeconds:     int64(s.clock.Now().Sub(s.started) / time.Second),
	})
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var request ExecuteRequest
	if !s.decodeBody(w, r, &request) {
		return
	}
	if strings.TrimSpace(request.Task) == "" {
		s.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "task must not be empty")
		return
	}
	if !s.admit(w, r, request.ChatID) {
		return
	}

	// A caller that disconnects mid-run does not cancel the run; the
	// result is simply undelivered.
	result, err := s.runner.Execute(context.WithoutCancel(r.Context()), executor.Request{
		Task:       request.Task,
		CallerID:   request.ChatID,
		SessionID:  request.SessionID,
		WorkingDir: request.WorkingDir,
		Autonomous: request.Autonomous,
	})
	if err != nil {
		switch {
		case errors.Is(err, executor.ErrEmptyTask):
			s.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "task must not be empty")
		case errors.Is(err, executor.ErrWorkingDirEscape):
			s.writeError(w, http.StatusBadRequest, CodePathInvalid, "working_dir must stay beneath the base directory")
		default:
			s.logger.Error("execute failed before launch",
				"request_id", r.Header.Get("X-Request-Id"),
				"caller_id", request.ChatID,
				"error", err,
			)
			s.writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, executeResponse(result))
}

func (s *Server) handleFileRead(w http.ResponseWriter, r *http.Request) {
	var request FileReadRequest
	if !s.decodeBody(w, r, &request) {
		return
	}
	if !s.admit(w, r, request.ChatID) {
		return
	}

	// Syntactic validation rejects traversal before any filesystem
	// call.
	if err := pathcheck.Validate(request.Path); err != nil {
		s.logger.Warn("path rejected",
			"request_id", r.Header.Get("X-Request-Id"),
			"caller_id", request.ChatID,
			"error", err,
		)
		s.writeError(w, http.StatusBadRequest, CodePathInvalid, err.Error())
		return
	}

	maxBytes := request.MaxBytes
	if maxBytes <= 0 {
		maxBytes = s.maxReadBytes
	}
	content, err := pathcheck.ReadFile(request.Path, maxBytes)
	if err != nil {
		switch {
		case errors.Is(err, pathcheck.ErrNotFound):
			s.writeError(w, http.StatusNotFound, CodeFileNotFound, fmt.Sprintf("file not found: %s", request.Path))
		case errors.Is(err, pathcheck.ErrNotRegularFile):
			s.writeError(w, http.StatusNotFound, CodeNotARegularFile, "path is not a regular file")
		default:
			s.logger.Error("file read failed",
				"request_id", r.Header.Get("X-Request-Id"),
				"path", request.Path,
				"error", err,
			)
			s.writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
		}
		return
	}

	response := FileReadResponse{
		Success:   true,
		Content:   string(content.Content),
		FileSize:  content.FileSize,
		Truncated: content.Truncated,
	}

	if request.Analyze {
		result, err := s.runner.AnalyzeFile(context.WithoutCancel(r.Context()), request.ChatID, request.Path, content.Content)
		switch {
		case err != nil:
			s.logger.Error("analysis failed before launch",
				"request_id", r.Header.Get("X-Request-Id"),
				"path", request.Path,
				"error", err,
			)
			s.writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
			return
		case result.TimedOut:
			response.Success = false
			response.Error = result.ErrorMessage
			response.Code = CodeExecutionTimeout
		case !result.Success:
			response.Success = false
			response.Error = result.ErrorMessage
			response.Code = CodeExecutionFailed
		default:
			response.Analysis = result.Text
		}
	}

	s.writeJSON(w, http.StatusOK, response)
}

// executeResponse maps an executor result onto the wire, attaching
// the timeout/failure code the client branches on.
func executeResponse(result executor.Result) ExecuteResponse {
	response := ExecuteResponse{
		Success:    result.Success,
		Text:       result.Text,
		SessionID:  result.SessionID,
		DurationMS: result.Duration.Milliseconds(),
		CostUSD:    result.CostUSD,
	}
	switch {
	case result.TimedOut:
		response.Error = result.ErrorMessage
		response.Code = CodeExecutionTimeout
	case !result.Success:
		response.Error = result.ErrorMessage
		response.Code = CodeExecutionFailed
	}
	return response
}

// decodeBody parses a JSON request body with a size bound. Writes the
// rejection itself; the caller proceeds only on true.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, CodeInvalidRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writing response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// ceilSeconds rounds a duration up to whole seconds, so a caller told
// to retry "in Ns" never retries early.
func ceilSeconds(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Second - 1) / time.Second)
}
