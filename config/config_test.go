// Copyright 2026 The Claudebot Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearBridgeEnvironment unsets every variable the loader reads so
// tests are hermetic regardless of the invoking shell.
func clearBridgeEnvironment(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"BRIDGE_PORT", "BRIDGE_API_KEY", "BRIDGE_WORKING_DIR",
		"BRIDGE_TIMEOUT", "BRIDGE_RATE_LIMIT", "BRIDGE_RATE_WINDOW",
		"BRIDGE_ALLOWED_ADMINS", "BRIDGE_SESSION_TTL",
		"BRIDGE_EVICTION_INTERVAL", "BRIDGE_URL", "CLAUDE_BINARY",
	} {
		t.Setenv(name, "")
		os.Unsetenv(name)
	}
}

func TestLoadServerDefaults(t *testing.T) {
	clearBridgeEnvironment(t)
	t.Setenv("BRIDGE_API_KEY", "secret")

	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Port = %d, want 9999", cfg.Port)
	}
	if cfg.TimeoutSeconds != 300 {
		t.Errorf("TimeoutSeconds = %d, want 300", cfg.TimeoutSeconds)
	}
	if cfg.RateLimit != 10 {
		t.Errorf("RateLimit = %d, want 10", cfg.RateLimit)
	}
	if cfg.RateWindowSeconds != 60 {
		t.Errorf("RateWindowSeconds = %d, want 60", cfg.RateWindowSeconds)
	}
	if cfg.WorkingDir != "/tmp/claudebot" {
		t.Errorf("WorkingDir = %q", cfg.WorkingDir)
	}
	if cfg.ClaudeBinary != "claude" {
		t.Errorf("ClaudeBinary = %q, want claude", cfg.ClaudeBinary)
	}
	if len(cfg.AllowedAdmins) != 0 {
		t.Errorf("AllowedAdmins = %v, want empty", cfg.AllowedAdmins)
	}
}

func TestLoadServerRequiresAPIKey(t *testing.T) {
	clearBridgeEnvironment(t)

	_, err := LoadServer("")
	if err == nil {
		t.Fatal("LoadServer succeeded without BRIDGE_API_KEY")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Fatalf("error %q does not mention api_key", err)
	}
}

func TestLoadServerEnvironmentOverrides(t *testing.T) {
	clearBridgeEnvironment(t)
	t.Setenv("BRIDGE_API_KEY", "secret")
	t.Setenv("BRIDGE_PORT", "8765")
	t.Setenv("BRIDGE_TIMEOUT", "120")
	t.Setenv("BRIDGE_RATE_LIMIT", "5")
	t.Setenv("BRIDGE_ALLOWED_ADMINS", "1, 2,3")
	t.Setenv("BRIDGE_SESSION_TTL", "12h")
	t.Setenv("CLAUDE_BINARY", "/opt/claude/bin/claude")

	cfg, err := LoadServer("")
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Port != 8765 {
		t.Errorf("Port = %d, want 8765", cfg.Port)
	}
	if cfg.Timeout() != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s", cfg.Timeout())
	}
	if cfg.RateLimit != 5 {
		t.Errorf("RateLimit = %d, want 5", cfg.RateLimit)
	}
	if len(cfg.AllowedAdmins) != 3 || cfg.AllowedAdmins[2] != 3 {
		t.Errorf("AllowedAdmins = %v, want [1 2 3]", cfg.AllowedAdmins)
	}
	ttl, err := cfg.SessionTTLDuration()
	if err != nil {
		t.Fatalf("SessionTTLDuration: %v", err)
	}
	if ttl != 12*time.Hour {
		t.Errorf("SessionTTL = %v, want 12h", ttl)
	}
	if cfg.ClaudeBinary != "/opt/claude/bin/claude" {
		t.Errorf("ClaudeBinary = %q", cfg.ClaudeBinary)
	}
}

func TestLoadServerYAMLThenEnvironment(t *testing.T) {
	clearBridgeEnvironment(t)

	path := filepath.Join(t.TempDir(), "bridge.yaml")
	content := "port: 7777\napi_key: from-file\nrate_limit: 3\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Environment overrides the file; file overrides defaults.
	t.Setenv("BRIDGE_PORT", "8888")

	cfg, err := LoadServer(path)
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Port != 8888 {
		t.Errorf("Port = %d, want 8888 (environment wins)", cfg.Port)
	}
	if cfg.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.APIKey)
	}
	if cfg.RateLimit != 3 {
		t.Errorf("RateLimit = %d, want 3 (file wins over default)", cfg.RateLimit)
	}
}

func TestLoadServerMalformedEnvironment(t *testing.T) {
	clearBridgeEnvironment(t)
	t.Setenv("BRIDGE_API_KEY", "secret")
	t.Setenv("BRIDGE_PORT", "not-a-port")

	if _, err := LoadServer(""); err == nil {
		t.Fatal("LoadServer accepted malformed BRIDGE_PORT")
	}
}

func TestParseAdminList(t *testing.T) {
	admins, err := ParseAdminList("1,2, 3 ,")
	if err != nil {
		t.Fatalf("ParseAdminList: %v", err)
	}
	if len(admins) != 3 {
		t.Fatalf("got %v, want 3 entries", admins)
	}

	if _, err := ParseAdminList("1,bogus"); err == nil {
		t.Fatal("ParseAdminList accepted a malformed entry")
	}

	admins, err = ParseAdminList("")
	if err != nil {
		t.Fatalf("ParseAdminList(empty): %v", err)
	}
	if len(admins) != 0 {
		t.Fatalf("empty list parsed to %v", admins)
	}
}

func TestLoadClient(t *testing.T) {
	clearBridgeEnvironment(t)
	t.Setenv("BRIDGE_URL", "https://bridge.example:9999")
	t.Setenv("BRIDGE_API_KEY", "secret")
	t.Setenv("BRIDGE_TIMEOUT", "60")

	cfg, err := LoadClient("")
	if err != nil {
		t.Fatalf("LoadClient: %v", err)
	}
	if cfg.URL != "https://bridge.example:9999" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Timeout() != time.Minute {
		t.Errorf("Timeout = %v, want 1m", cfg.Timeout())
	}
}

func TestLoadClientRequiresURL(t *testing.T) {
	clearBridgeEnvironment(t)
	t.Setenv("BRIDGE_API_KEY", "secret")

	if _, err := LoadClient(""); err == nil {
		t.Fatal("LoadClient succeeded without BRIDGE_URL")
	}
}

func TestSessionTTLZeroDisablesExpiry(t *testing.T) {
	cfg := DefaultServer()
	cfg.SessionTTL = "0"
	ttl, err := cfg.SessionTTLDuration()
	if err != nil {
		t.Fatalf("SessionTTLDuration: %v", err)
	}
	if ttl != 0 {
		t.Fatalf("ttl = %v, want 0", ttl)
	}
}
