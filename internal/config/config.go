// Package config handles configuration loading and management for quorum.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for quorum.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Engine    EngineConfig    `mapstructure:"engine"`
	TUI       TUIConfig       `mapstructure:"tui"`
	Audit     AuditConfig     `mapstructure:"audit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey     string `mapstructure:"api_key"`
	Model      string `mapstructure:"model"`
	UseBedrock bool   `mapstructure:"use_bedrock"`
	AWSRegion  string `mapstructure:"aws_region"`
	AWSProfile string `mapstructure:"aws_profile"`
}

// EngineConfig holds the run parameters for the reliability engine.
type EngineConfig struct {
	// VotingK is the initial number of votes per atomic step.
	VotingK int `mapstructure:"voting_k"`
	// MaxDepth bounds recursive decomposition.
	MaxDepth int `mapstructure:"max_depth"`
	// MaxRetries is how many times a failed subtask is re-attempted.
	MaxRetries int `mapstructure:"max_retries"`
	// RedFlagging toggles candidate screening.
	RedFlagging bool `mapstructure:"red_flagging"`
	// ConsensusThreshold is the required winning share among valid votes.
	ConsensusThreshold float64 `mapstructure:"consensus_threshold"`
	// MaxEscalationK caps vote-count doubling on disagreement.
	MaxEscalationK int `mapstructure:"max_escalation_k"`
	// VoteTimeout bounds each individual vote generation.
	VoteTimeout time.Duration `mapstructure:"vote_timeout"`
}

// TUIConfig holds TUI display settings.
type TUIConfig struct {
	RefreshRate time.Duration `mapstructure:"refresh_rate"`
}

// AuditConfig holds audit trail settings.
type AuditConfig struct {
	// Enabled persists every run to the audit database.
	Enabled bool `mapstructure:"enabled"`
	// Path overrides the default audit database location.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY)
// 2. Project config (.quorum.yaml in current directory or parent)
// 3. User config (~/.config/quorum/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = os.ExpandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_bedrock", cfg.Anthropic.UseBedrock)
	v.Set("anthropic.aws_region", cfg.Anthropic.AWSRegion)
	v.Set("anthropic.aws_profile", cfg.Anthropic.AWSProfile)
	v.Set("engine.voting_k", cfg.Engine.VotingK)
	v.Set("engine.max_depth", cfg.Engine.MaxDepth)
	v.Set("engine.max_retries", cfg.Engine.MaxRetries)
	v.Set("engine.red_flagging", cfg.Engine.RedFlagging)
	v.Set("engine.consensus_threshold", cfg.Engine.ConsensusThreshold)
	v.Set("engine.max_escalation_k", cfg.Engine.MaxEscalationK)
	v.Set("engine.vote_timeout", cfg.Engine.VoteTimeout.String())
	v.Set("tui.refresh_rate", cfg.TUI.RefreshRate.String())
	v.Set("audit.enabled", cfg.Audit.Enabled)
	v.Set("audit.path", cfg.Audit.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// GetProjectConfigPath returns the path to the project config file if it exists.
func GetProjectConfigPath() string {
	return findProjectConfig()
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5")
	v.SetDefault("anthropic.use_bedrock", false)
	v.SetDefault("anthropic.aws_region", "")
	v.SetDefault("anthropic.aws_profile", "")

	v.SetDefault("engine.voting_k", 3)
	v.SetDefault("engine.max_depth", 5)
	v.SetDefault("engine.max_retries", 2)
	v.SetDefault("engine.red_flagging", true)
	v.SetDefault("engine.consensus_threshold", 0.51)
	v.SetDefault("engine.max_escalation_k", 16)
	v.SetDefault("engine.vote_timeout", "90s")

	v.SetDefault("tui.refresh_rate", "100ms")

	v.SetDefault("audit.enabled", false)
	v.SetDefault("audit.path", "")
}

// getUserConfigDir returns the XDG config directory for quorum.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "quorum")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "quorum")
	}
	return filepath.Join(home, ".config", "quorum")
}

// findProjectConfig searches for .quorum.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(cwd, ".quorum.yaml")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(cwd)
		if parent == cwd {
			break
		}
		cwd = parent
	}

	return ""
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Anthropic: AnthropicConfig{
			Model: "claude-sonnet-4-5",
		},
		Engine: EngineConfig{
			VotingK:            3,
			MaxDepth:           5,
			MaxRetries:         2,
			RedFlagging:        true,
			ConsensusThreshold: 0.51,
			MaxEscalationK:     16,
			VoteTimeout:        90 * time.Second,
		},
		TUI: TUIConfig{
			RefreshRate: 100 * time.Millisecond,
		},
		Audit: AuditConfig{},
	}
}
