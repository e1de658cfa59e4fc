package screen

import (
	"context"
	"fmt"
	"strings"

	"github.com/ShayCichocki/quorum/internal/capability"
)

const screenPromptTemplate = `Task: %s

Candidate result:
%s

Is the candidate a plausible, well-formed result for the task? Answer with
exactly VALID or INVALID: <reason>.`

// Capability screens candidates with a dedicated fast generation call.
// It is stateless between calls and safe for concurrent use, so candidates
// can still be screened in parallel.
type Capability struct {
	gen capability.Generator
}

// NewCapability creates a capability-backed screener.
func NewCapability(gen capability.Generator) *Capability {
	return &Capability{gen: gen}
}

// Screen implements Screener. A malformed verdict from the capability flags
// the candidate: an unscreenable candidate must not count as a vote.
func (c *Capability) Screen(ctx context.Context, candidate, task string) (Verdict, error) {
	resp, err := c.gen.Generate(ctx, capability.Request{
		Instruction: fmt.Sprintf(screenPromptTemplate, task, candidate),
		Role:        capability.RoleScreen,
	})
	if err != nil {
		return Verdict{}, fmt.Errorf("screen call: %w", err)
	}

	answer := strings.TrimSpace(resp.Text)
	upper := strings.ToUpper(answer)

	switch {
	case strings.HasPrefix(upper, "VALID"):
		return Pass(), nil
	case strings.HasPrefix(upper, "INVALID"):
		reason := strings.TrimSpace(strings.TrimPrefix(answer[len("INVALID"):], ":"))
		if reason == "" {
			reason = "screener rejected candidate"
		}
		return Flag(reason), nil
	default:
		return Flag("unparseable screening verdict: " + truncate(answer, 80)), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
