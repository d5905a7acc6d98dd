// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"strings"
	"testing"
)

func TestSummarizeStreamResultLine(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"sess-1"}`,
		`{"type":"assistant","message":"working on it"}`,
		`{"type":"result","subtype":"success","result":"done: created main.go","cost_usd":0.0421,"session_id":"sess-1"}`,
	}, "\n")

	summary, err := summarizeStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("summarizeStream: %v", err)
	}
	if summary.Text != "done: created main.go" {
		t.Errorf("Text = %q", summary.Text)
	}
	if summary.SessionID != "sess-1" {
		t.Errorf("SessionID = %q", summary.SessionID)
	}
	if summary.CostUSD == nil || *summary.CostUSD != 0.0421 {
		t.Errorf("CostUSD = %v", summary.CostUSD)
	}
	if summary.ErrorMessage != "" {
		t.Errorf("unexpected error message %q", summary.ErrorMessage)
	}
}

func TestSummarizeStreamFallsBackToLastAssistant(t *testing.T) {
	stream := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"sess-2"}`,
		`{"type":"assistant","message":"first reply"}`,
		`{"type":"assistant","message":"second reply"}`,
	}, "\n")

	summary, err := summarizeStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("summarizeStream: %v", err)
	}
	if summary.Text != "second reply" {
		t.Errorf("Text = %q, want last assistant message", summary.Text)
	}
	if summary.SessionID != "sess-2" {
		t.Errorf("SessionID = %q", summary.SessionID)
	}
}

func TestSummarizeStreamErrorResult(t *testing.T) {
	stream := `{"type":"result","subtype":"error","is_error":true,"result":"task failed","session_id":"sess-3"}`

	summary, err := summarizeStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("summarizeStream: %v", err)
	}
	if summary.ErrorMessage != "task failed" {
		t.Errorf("ErrorMessage = %q", summary.ErrorMessage)
	}
	if summary.SessionID != "sess-3" {
		t.Errorf("SessionID = %q", summary.SessionID)
	}
}

func TestSummarizeStreamErrorLine(t *testing.T) {
	stream := `{"type":"error","message":"credentials expired"}`

	summary, err := summarizeStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("summarizeStream: %v", err)
	}
	if summary.ErrorMessage != "credentials expired" {
		t.Errorf("ErrorMessage = %q", summary.ErrorMessage)
	}
}

func TestSummarizeStreamSkipsNonJSON(t *testing.T) {
	stream := strings.Join([]string{
		"warming up...",
		`{"type":"system","subtype":"init","session_id":"sess-4"}`,
		"not json either",
		`{"type":"result","result":"ok","session_id":"sess-4"}`,
	}, "\n")

	summary, err := summarizeStream(strings.NewReader(stream))
	if err != nil {
		t.Fatalf("summarizeStream: %v", err)
	}
	if summary.Text != "ok" {
		t.Errorf("Text = %q", summary.Text)
	}
	if summary.SessionID != "sess-4" {
		t.Errorf("SessionID = %q", summary.SessionID)
	}
}

func TestSummarizeStreamEmpty(t *testing.T) {
	summary, err := summarizeStream(strings.NewReader(""))
	if err != nil {
		t.Fatalf("summarizeStream: %v", err)
	}
	if summary.Text != "" || summary.SessionID != "" || summary.ErrorMessage != "" {
		t.Errorf("expected zero summary, got %+v", summary)
	}
}
