package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Engine.VotingK != 3 {
		t.Errorf("VotingK = %d, want 3", cfg.Engine.VotingK)
	}
	if cfg.Engine.ConsensusThreshold <= 0.5 {
		t.Errorf("ConsensusThreshold = %v, want strict majority", cfg.Engine.ConsensusThreshold)
	}
	if !cfg.Engine.RedFlagging {
		t.Error("red flagging should default on")
	}
	if cfg.Engine.VoteTimeout != 90*time.Second {
		t.Errorf("VoteTimeout = %v, want 90s", cfg.Engine.VoteTimeout)
	}
}

func TestLoadFromPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
anthropic:
  model: claude-haiku-4-5
engine:
  voting_k: 5
  consensus_threshold: 0.67
  vote_timeout: 30s
audit:
  enabled: true
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.Model != "claude-haiku-4-5" {
		t.Errorf("Model = %q", cfg.Anthropic.Model)
	}
	if cfg.Engine.VotingK != 5 {
		t.Errorf("VotingK = %d, want 5", cfg.Engine.VotingK)
	}
	if cfg.Engine.ConsensusThreshold != 0.67 {
		t.Errorf("ConsensusThreshold = %v, want 0.67", cfg.Engine.ConsensusThreshold)
	}
	if cfg.Engine.VoteTimeout != 30*time.Second {
		t.Errorf("VoteTimeout = %v, want 30s", cfg.Engine.VoteTimeout)
	}
	if !cfg.Audit.Enabled {
		t.Error("audit should be enabled")
	}

	// Unset keys keep their defaults.
	if cfg.Engine.MaxDepth != 5 {
		t.Errorf("MaxDepth = %d, want default 5", cfg.Engine.MaxDepth)
	}
}

func TestLoadFromPathExpandsEnv(t *testing.T) {
	t.Setenv("TEST_QUORUM_KEY", "sk-ant-test-value")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "anthropic:\n  api_key: ${TEST_QUORUM_KEY}\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}
	if cfg.Anthropic.APIKey != "sk-ant-test-value" {
		t.Errorf("APIKey = %q", cfg.Anthropic.APIKey)
	}
}

func TestGetAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	if _, err := GetAPIKey(nil); err != ErrNoAPIKey {
		t.Errorf("expected ErrNoAPIKey, got %v", err)
	}

	cfg := Default()
	cfg.Anthropic.APIKey = "sk-ant-from-config"
	key, err := GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-from-config" {
		t.Errorf("key = %q", key)
	}

	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-from-env")
	key, err = GetAPIKey(cfg)
	if err != nil {
		t.Fatalf("GetAPIKey failed: %v", err)
	}
	if key != "sk-ant-from-env" {
		t.Errorf("env should win, got %q", key)
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"empty", "", true},
		{"wrong prefix", "api-key-12345678901234", true},
		{"too short", "sk-ant-abc", true},
		{"valid", "sk-ant-REDACTED", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAPIKey(tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAPIKey(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
			}
		})
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := MaskAPIKey(""); got != "(not set)" {
		t.Errorf("MaskAPIKey(empty) = %q", got)
	}
	if got := MaskAPIKey("short"); got != "***" {
		t.Errorf("MaskAPIKey(short) = %q", got)
	}
	got := MaskAPIKey("sk-ant-REDACTED")
	if got != "sk-ant-...mnop" {
		t.Errorf("MaskAPIKey = %q", got)
	}
}
