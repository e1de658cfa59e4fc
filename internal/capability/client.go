package capability

import (
	"context"
	"fmt"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

// defaultModel is used when ClientConfig leaves the model unset.
const defaultModel = anthropic.ModelClaudeSonnet4_20250514

// Client is the transport behind the Anthropic-backed generator. It holds
// the SDK client, the resolved model, and a token tracker shared by every
// request issued through it.
type Client struct {
	inner   anthropic.Client
	model   anthropic.Model
	tracker *TokenTracker
}

// ClientConfig selects the model and how requests reach it.
type ClientConfig struct {
	// Model names the Claude model; empty picks defaultModel.
	Model anthropic.Model
	// APIKey authenticates direct API access. Empty falls back to the
	// ANTHROPIC_API_KEY environment variable.
	APIKey string
	// UseAWSBedrock routes requests through AWS Bedrock with ambient AWS
	// credentials; no Anthropic API key is needed then.
	UseAWSBedrock bool
	// AWSRegion pins the Bedrock region when set.
	AWSRegion string
	// AWSProfile selects a shared-config profile for Bedrock when set.
	AWSProfile string
}

// NewClient builds a Client for the configured transport.
func NewClient(cfg ClientConfig) (*Client, error) {
	var opts []option.RequestOption
	if cfg.UseAWSBedrock {
		var load []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			load = append(load, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			load = append(load, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(context.Background(), load...))
	} else {
		key := cfg.APIKey
		if key == "" {
			key = os.Getenv("ANTHROPIC_API_KEY")
		}
		if key == "" {
			return nil, fmt.Errorf("no Anthropic API key: set ANTHROPIC_API_KEY or configure one")
		}
		opts = append(opts, option.WithAPIKey(key))
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	if cfg.UseAWSBedrock {
		model = bedrockModelID(model)
	}

	return &Client{
		inner:   anthropic.NewClient(opts...),
		model:   model,
		tracker: NewTokenTracker(),
	}, nil
}

// bedrockModelID maps a standard Anthropic model name onto the matching
// cross-region Bedrock inference profile. Unknown names pass through, so
// a caller can hand over a Bedrock ID directly.
func bedrockModelID(model anthropic.Model) anthropic.Model {
	switch model {
	case anthropic.ModelClaudeSonnet4_20250514:
		return "us.anthropic.claude-sonnet-4-20250514-v1:0"
	case anthropic.ModelClaudeSonnet4_5_20250929:
		return "us.anthropic.claude-sonnet-4-5-20250929-v1:0"
	case anthropic.ModelClaudeHaiku4_5_20251001:
		return "us.anthropic.claude-haiku-4-5-20251001-v1:0"
	case anthropic.ModelClaudeOpus4_1_20250805:
		return "us.anthropic.claude-opus-4-1-20250805-v1:0"
	case anthropic.ModelClaude3_5Haiku20241022:
		return "us.anthropic.claude-3-5-haiku-20241022-v1:0"
	}
	return model
}

// sdk exposes the underlying SDK client to the generator.
func (c *Client) sdk() *anthropic.Client {
	return &c.inner
}

// Model returns the resolved model name.
func (c *Client) Model() anthropic.Model {
	return c.model
}

// Tracker returns the client's token usage tracker.
func (c *Client) Tracker() *TokenTracker {
	return c.tracker
}
