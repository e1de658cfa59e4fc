package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// apiKeyPrefix is the prefix every Anthropic API key carries.
const apiKeyPrefix = "sk-ant-"

// ErrNoAPIKey means neither the environment nor the config carries a key.
var ErrNoAPIKey = errors.New("no Anthropic API key configured")

// GetAPIKey resolves the Anthropic API key. The ANTHROPIC_API_KEY
// environment variable wins over the config file; a config value holding
// an unexpanded ${...} reference counts as unset.
func GetAPIKey(cfg *Config) (string, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return key, nil
	}
	if cfg == nil || cfg.Anthropic.APIKey == "" {
		return "", ErrNoAPIKey
	}
	key := os.ExpandEnv(cfg.Anthropic.APIKey)
	if key == "" || strings.HasPrefix(key, "${") {
		return "", ErrNoAPIKey
	}
	return key, nil
}

// ValidateAPIKey checks that a key looks like an Anthropic key. It does
// not call the API, so a well-formed but revoked key still passes.
func ValidateAPIKey(key string) error {
	switch {
	case key == "":
		return ErrNoAPIKey
	case !strings.HasPrefix(key, apiKeyPrefix):
		return fmt.Errorf("invalid API key: expected %q prefix", apiKeyPrefix)
	case len(key) < 20:
		return errors.New("invalid API key: too short")
	}
	return nil
}

// MaskAPIKey renders a key for display, keeping only the prefix and the
// last four characters.
func MaskAPIKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 15 {
		return "***"
	}
	return key[:len(apiKeyPrefix)] + "..." + key[len(key)-4:]
}
