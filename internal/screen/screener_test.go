package screen

import (
	"context"
	"strings"
	"testing"

	"github.com/ShayCichocki/quorum/internal/capability"
)

func TestStructural_Screen(t *testing.T) {
	s := NewStructural(100)

	tests := []struct {
		name      string
		candidate string
		flagged   bool
	}{
		{"plain result passes", "42", false},
		{"multiline result passes", "line one\nline two", false},
		{"empty is flagged", "", true},
		{"whitespace only is flagged", "   \n\t ", true},
		{"over length is flagged", strings.Repeat("x", 101), true},
		{"refusal is flagged", "I cannot complete this task", true},
		{"refusal mid-sentence is flagged", "Sorry, as an AI I should not", true},
		{"control characters are flagged", "ok\x00ok", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			verdict, err := s.Screen(context.Background(), tt.candidate, "some task")
			if err != nil {
				t.Fatalf("Screen() error = %v", err)
			}
			if verdict.Flagged != tt.flagged {
				t.Errorf("Screen(%q).Flagged = %v, want %v (reason %q)",
					tt.candidate, verdict.Flagged, tt.flagged, verdict.Reason)
			}
			if verdict.Flagged && verdict.Reason == "" {
				t.Errorf("flagged verdict missing reason")
			}
		})
	}
}

func TestStructural_NoLengthLimit(t *testing.T) {
	s := NewStructural(0)
	verdict, err := s.Screen(context.Background(), strings.Repeat("x", 10_000), "task")
	if err != nil {
		t.Fatalf("Screen() error = %v", err)
	}
	if verdict.Flagged {
		t.Errorf("zero MaxLength should not flag long candidates: %q", verdict.Reason)
	}
}

func TestChain_FirstFlagWins(t *testing.T) {
	passAll := Func(func(context.Context, string, string) (Verdict, error) {
		return Pass(), nil
	})
	flagAll := Func(func(context.Context, string, string) (Verdict, error) {
		return Flag("nope"), nil
	})

	chain := Chain{passAll, flagAll, passAll}
	verdict, err := chain.Screen(context.Background(), "x", "task")
	if err != nil {
		t.Fatalf("Screen() error = %v", err)
	}
	if !verdict.Flagged || verdict.Reason != "nope" {
		t.Errorf("chain verdict = %+v, want flag with reason %q", verdict, "nope")
	}
}

// scriptedGenerator returns canned responses for capability-backed screening.
type scriptedGenerator struct {
	text string
	err  error
}

func (g *scriptedGenerator) Generate(_ context.Context, _ capability.Request) (*capability.Response, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &capability.Response{Text: g.text}, nil
}

func TestCapability_Screen(t *testing.T) {
	tests := []struct {
		name    string
		answer  string
		flagged bool
		reason  string
	}{
		{"valid passes", "VALID", false, ""},
		{"valid with trailing prose passes", "VALID - looks fine", false, ""},
		{"invalid flags with reason", "INVALID: wrong format", true, "wrong format"},
		{"invalid without reason gets default", "INVALID", true, "screener rejected candidate"},
		{"garbage verdict flags", "maybe?", true, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewCapability(&scriptedGenerator{text: tt.answer})
			verdict, err := c.Screen(context.Background(), "candidate", "task")
			if err != nil {
				t.Fatalf("Screen() error = %v", err)
			}
			if verdict.Flagged != tt.flagged {
				t.Errorf("Flagged = %v, want %v", verdict.Flagged, tt.flagged)
			}
			if tt.reason != "" && verdict.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", verdict.Reason, tt.reason)
			}
		})
	}
}

func TestCapability_ScreenError(t *testing.T) {
	c := NewCapability(&scriptedGenerator{err: &capability.Error{
		Kind: capability.ErrKindUnavailable, Message: "down",
	}})
	if _, err := c.Screen(context.Background(), "candidate", "task"); err == nil {
		t.Fatal("expected error when screening capability is unavailable")
	}
}
