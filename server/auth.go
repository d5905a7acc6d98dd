// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/zeebo/blake3"
)

// KeyFingerprint returns a short stable digest of an API key, safe to
// put in logs. The key itself must never appear in logs or response
// bodies.
func KeyFingerprint(key string) string {
	sum := blake3.Sum256([]byte(key))
	return hex.EncodeToString(sum[:8])
}

// bearerToken extracts the credential from an Authorization header.
// The scheme comparison is case-insensitive per RFC 7235.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return header[len(prefix):], true
}

// authenticate verifies the request's bearer credential against the
// configured key in constant time.
func (s *Server) authenticate(r *http.Request) bool {
	token, ok := bearerToken(r)
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), s.apiKey) == 1
}

// allowed reports whether the caller passes the admin allowlist. An
// empty allowlist admits any authenticated caller.
func (s *Server) allowed(callerID int64) bool {
	if len(s.admins) == 0 {
		return true
	}
	_, ok := s.admins[callerID]
	return ok
}
