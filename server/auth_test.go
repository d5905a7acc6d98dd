// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"net/http"
	"strings"
	"testing"
)

func TestKeyFingerprint(t *testing.T) {
	fingerprint := KeyFingerprint("super-secret")
	if len(fingerprint) != 16 {
		t.Errorf("fingerprint length = %d", len(fingerprint))
	}
	if fingerprint != KeyFingerprint("super-secret") {
		t.Error("fingerprint is not deterministic")
	}
	if fingerprint == KeyFingerprint("other-secret") {
		t.Error("distinct keys share a fingerprint")
	}
	if strings.Contains(fingerprint, "secret") {
		t.Error("fingerprint leaks key material")
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
		wantOK bool
	}{
		{name: "standard", header: "Bearer abc123", want: "abc123", wantOK: true},
		{name: "lowercase scheme", header: "bearer abc123", want: "abc123", wantOK: true},
		{name: "missing", header: "", wantOK: false},
		{name: "wrong scheme", header: "Basic abc123", wantOK: false},
		{name: "scheme only", header: "Bearer", wantOK: false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			r := &http.Request{Header: http.Header{}}
			if test.header != "" {
				r.Header.Set("Authorization", test.header)
			}
			got, ok := bearerToken(r)
			if ok != test.wantOK || got != test.want {
				t.Errorf("bearerToken(%q) = %q, %v", test.header, got, ok)
			}
		})
	}
}

func TestAllowed(t *testing.T) {
	empty := &Server{}
	if !empty.allowed(42) {
		t.Error("empty allowlist must admit any caller")
	}

	restricted := &Server{admins: map[int64]struct{}{1: {}, 2: {}}}
	if !restricted.allowed(1) {
		t.Error("listed caller rejected")
	}
	if restricted.allowed(99) {
		t.Error("unlisted caller admitted")
	}
}
