package capability

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
)

// Sampling parameter table for vote decorrelation. Requests cycle through
// these by VariationKey so candidates for the same instruction never share
// sampling conditions.
var variations = []struct {
	temperature float64
	topP        float64
}{
	{0.2, 1.0},
	{0.5, 1.0},
	{0.8, 0.95},
	{1.0, 0.9},
	{0.7, 0.85},
	{0.4, 0.92},
}

// System prompts per request role. Execution answers must be bare results so
// canonicalized exact-match grouping has a chance to agree.
var systemPrompts = map[Role]string{
	RoleDecompose: "You are a task planner. Answer strictly in the requested JSON format " +
		"with no surrounding prose.",
	RoleExecuteAtomic: "You are executing a single atomic step. Respond with the result " +
		"only: no explanation, no preamble, no markdown fences.",
	RoleScreen: "You are a fast validity checker. Answer with exactly VALID or " +
		"INVALID: <reason>.",
}

// AnthropicGenerator implements Generator on top of the Anthropic Messages API.
type AnthropicGenerator struct {
	client    *Client
	maxTokens int64
}

// NewAnthropicGenerator creates a Generator backed by the given client.
func NewAnthropicGenerator(client *Client) *AnthropicGenerator {
	return &AnthropicGenerator{
		client:    client,
		maxTokens: 4096,
	}
}

// Generate issues one request and returns the text response.
// Token usage is recorded on the client's tracker for every successful call.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (*Response, error) {
	v := variations[abs(req.VariationKey)%len(variations)]

	system := systemPrompts[req.Role]
	if system == "" {
		system = systemPrompts[RoleExecuteAtomic]
	}

	resp, err := g.client.sdk().Messages.New(ctx, anthropic.MessageNewParams{
		Model:     g.client.Model(),
		MaxTokens: g.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Instruction)),
		},
		Temperature: anthropic.Float(v.temperature),
		TopP:        anthropic.Float(v.topP),
	})
	if err != nil {
		return nil, classify(ctx, err)
	}

	g.client.Tracker().Add(resp.Usage.InputTokens, resp.Usage.OutputTokens)

	var text strings.Builder
	for _, block := range resp.Content {
		if variant, ok := block.AsAny().(anthropic.TextBlock); ok {
			text.WriteString(variant.Text)
		}
	}

	if text.Len() == 0 {
		return nil, &Error{Kind: ErrKindMalformed, Message: "empty response"}
	}

	return &Response{
		Text: text.String(),
		Usage: TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// classify maps SDK and context errors onto the capability error taxonomy.
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Kind: ErrKindTimeout, Message: err.Error()}
	}
	return &Error{Kind: ErrKindUnavailable, Message: err.Error()}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
