// Package screen provides red-flag screening of candidate results.
// Screening is a cheap pre-filter run on every candidate before it may count
// toward consensus; a flagged candidate is excluded from the tally entirely.
package screen

import (
	"context"
	"fmt"
	"strings"
	"unicode"
)

// Verdict is the outcome of screening one candidate.
type Verdict struct {
	// Flagged is true if the candidate must not count toward consensus.
	Flagged bool
	// Reason explains the flag, empty for a pass.
	Reason string
}

// Pass returns a passing verdict.
func Pass() Verdict {
	return Verdict{}
}

// Flag returns a flagging verdict with the given reason.
func Flag(reason string) Verdict {
	return Verdict{Flagged: true, Reason: reason}
}

// Screener judges whether a candidate result for a task is plausible.
// Implementations must be side-effect free and safe for concurrent use, since
// all candidates of a voting round are screened in parallel.
type Screener interface {
	Screen(ctx context.Context, candidate, task string) (Verdict, error)
}

// Func adapts a plain function to the Screener interface.
type Func func(ctx context.Context, candidate, task string) (Verdict, error)

// Screen implements Screener.
func (f Func) Screen(ctx context.Context, candidate, task string) (Verdict, error) {
	return f(ctx, candidate, task)
}

// Refusal phrases that mark a candidate as a non-answer rather than a result.
var refusalMarkers = []string{
	"i cannot",
	"i can't",
	"i'm unable",
	"i am unable",
	"as an ai",
	"i'm sorry",
}

// Structural screens candidates on cheap structural rules: non-empty, bounded
// length, printable, and not a refusal. It needs no capability call.
type Structural struct {
	// MaxLength is the maximum accepted candidate length in bytes.
	// Zero means no limit.
	MaxLength int
}

// NewStructural creates a structural screener with the given length bound.
func NewStructural(maxLength int) *Structural {
	return &Structural{MaxLength: maxLength}
}

// Screen implements Screener.
func (s *Structural) Screen(_ context.Context, candidate, _ string) (Verdict, error) {
	trimmed := strings.TrimSpace(candidate)
	if trimmed == "" {
		return Flag("empty candidate"), nil
	}
	if s.MaxLength > 0 && len(trimmed) > s.MaxLength {
		return Flag(fmt.Sprintf("candidate exceeds %d bytes", s.MaxLength)), nil
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range refusalMarkers {
		if strings.Contains(lower, marker) {
			return Flag("refusal phrasing: " + marker), nil
		}
	}

	for _, r := range trimmed {
		if r == '\n' || r == '\t' {
			continue
		}
		if unicode.IsControl(r) {
			return Flag("control characters in candidate"), nil
		}
	}

	return Pass(), nil
}

// Chain runs screeners in order; the first flag wins. A candidate passes only
// if every screener passes it.
type Chain []Screener

// Screen implements Screener.
func (c Chain) Screen(ctx context.Context, candidate, task string) (Verdict, error) {
	for _, s := range c {
		verdict, err := s.Screen(ctx, candidate, task)
		if err != nil {
			return Verdict{}, err
		}
		if verdict.Flagged {
			return verdict, nil
		}
	}
	return Pass(), nil
}
