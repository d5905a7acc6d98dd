// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package executor

import (
	"bufio"
	"encoding/json"
	"io"
)

// cliOutput mirrors one line of the agent CLI's stream-json stdout.
// Only the fields the bridge consumes are declared; unknown fields
// are ignored by the JSON decoder so the CLI can evolve freely.
type cliOutput struct {
	Type      string   `json:"type"`
	Subtype   string   `json:"subtype"`
	CostUSD   *float64 `json:"cost_usd"`
	IsError   bool     `json:"is_error"`
	SessionID string   `json:"session_id"`
	Result    string   `json:"result"`
	Message   string   `json:"message"`
}

// streamSummary is the distilled outcome of one stream-json run.
type streamSummary struct {
	// Text is the final result text: the "result" line's payload, or
	// the last assistant message when the stream ended without one.
	Text string

	// SessionID is the last session identifier seen in the stream
	// (the "system" init line carries it first; the "result" line
	// repeats it).
	SessionID string

	// CostUSD is the run cost when the result line reported one.
	CostUSD *float64

	// ErrorMessage is set when the stream carried an explicit error
	// line or an is_error result.
	ErrorMessage string
}

// summarizeStream reads the CLI's stream-json stdout to completion
// and distills it into a summary. Non-JSON lines are skipped — the
// CLI occasionally writes diagnostics between events. A "result" line
// terminates the stream.
//
// This is the single adapter between the CLI's output convention and
// the bridge; if the format changes, this function is the only thing
// that needs to follow it.
func summarizeStream(stdout io.Reader) (streamSummary, error) {
	scanner := bufio.NewScanner(stdout)
	// The CLI can produce long lines (tool results with large file
	// contents).
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var summary streamSummary
	var lastAssistant string

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var output cliOutput
		if err := json.Unmarshal(line, &output); err != nil {
			continue
		}

		if output.SessionID != "" {
			summary.SessionID = output.SessionID
		}

		switch output.Type {
		case "assistant":
			if output.Message != "" {
				lastAssistant = output.Message
			}

		case "result":
			summary.Text = output.Result
			if output.CostUSD != nil {
				summary.CostUSD = output.CostUSD
			}
			if output.IsError && summary.ErrorMessage == "" {
				summary.ErrorMessage = output.Result
				if summary.ErrorMessage == "" {
					summary.ErrorMessage = "executor reported an error result"
				}
			}
			return summary, scanner.Err()

		case "error":
			summary.ErrorMessage = output.Message
			if summary.ErrorMessage == "" {
				summary.ErrorMessage = "executor reported an error"
			}
		}
	}

	if summary.Text == "" {
		summary.Text = lastAssistant
	}
	return summary, scanner.Err()
}
