package internal

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	if cfg.App.HTTP.Address() != ":8080" {
		t.Errorf("address = %q", cfg.App.HTTP.Address())
	}
}

func TestHTTPConfig_PortBounds(t *testing.T) {
	cfg := HTTPConfig{Port: 0}
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 should fail")
	}
	cfg = HTTPConfig{Port: 70000}
	if err := cfg.Validate(); err == nil {
		t.Error("port above 65535 should fail")
	}
	cfg = HTTPConfig{Port: 8080}
	if err := cfg.Validate(); err != nil {
		t.Errorf("port 8080 should pass: %v", err)
	}
}

func TestSQLiteConfig_PathRequired(t *testing.T) {
	cfg := SQLiteConfig{}
	if err := cfg.Validate(); err == nil {
		t.Error("empty path should fail")
	}
}

func TestEngineConfig_Bounds(t *testing.T) {
	cfg := EngineConfig{Workers: 0, QueueSize: 256}
	if err := cfg.Validate(); err == nil {
		t.Error("zero workers should fail")
	}
	cfg = EngineConfig{Workers: 128, QueueSize: 256}
	if err := cfg.Validate(); err == nil {
		t.Error("workers above 64 should fail")
	}
	cfg = EngineConfig{Workers: 2, QueueSize: 8}
	if err := cfg.Validate(); err == nil {
		t.Error("queue below 16 should fail")
	}
	cfg = EngineConfig{Workers: 2, QueueSize: 256}
	if err := cfg.Validate(); err != nil {
		t.Errorf("sane engine config should pass: %v", err)
	}
}

func TestMilestonesConfig_MinimumInterval(t *testing.T) {
	cfg := MilestonesConfig{Interval: 30 * time.Second}
	if err := cfg.Validate(); err == nil {
		t.Error("sub-minute interval should fail")
	}
	cfg = MilestonesConfig{Interval: 2 * time.Hour}
	if err := cfg.Validate(); err != nil {
		t.Errorf("2h interval should pass: %v", err)
	}
}

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_SectionValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}

	cfg = NewDefaultConfig()
	cfg.Engine.Workers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch engine error")
	}
}
