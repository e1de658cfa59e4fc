package decompose

import (
	"context"
	"errors"
	"testing"

	"github.com/ShayCichocki/quorum/internal/capability"
	"github.com/ShayCichocki/quorum/internal/stats"
)

// fakeGenerator returns a canned response and records whether it was called.
type fakeGenerator struct {
	text   string
	err    error
	called bool
}

func (g *fakeGenerator) Generate(_ context.Context, _ capability.Request) (*capability.Response, error) {
	g.called = true
	if g.err != nil {
		return nil, g.err
	}
	return &capability.Response{Text: g.text}, nil
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		atomic   bool
		subtasks int
		wantErr  bool
	}{
		{"atomic", `{"atomic": true}`, true, 0, false},
		{"two subtasks", `{"atomic": false, "subtasks": ["append A", "append B"]}`, false, 2, false},
		{"json wrapped in prose", "Here you go:\n{\"atomic\": false, \"subtasks\": [\"x\", \"y\"]}\nDone.", false, 2, false},
		{"single subtask degrades to atomic", `{"atomic": false, "subtasks": ["only one"]}`, true, 0, false},
		{"blank subtasks dropped then degrade", `{"atomic": false, "subtasks": ["real", "  "]}`, true, 0, false},
		{"no json", "sure, sounds good", false, 0, true},
		{"broken json", `{"atomic": fal`, false, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec, err := ParseResponse(tt.response)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseResponse() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if dec.Atomic != tt.atomic {
				t.Errorf("Atomic = %v, want %v", dec.Atomic, tt.atomic)
			}
			if len(dec.Subtasks) != tt.subtasks {
				t.Errorf("len(Subtasks) = %d, want %d", len(dec.Subtasks), tt.subtasks)
			}
		})
	}
}

func TestDecompose_DepthBoundForcesAtomic(t *testing.T) {
	// The capability recommends splitting, but at the depth bound its
	// judgement must not even be consulted.
	gen := &fakeGenerator{text: `{"atomic": false, "subtasks": ["a", "b"]}`}
	d := New(gen, stats.NewTracker(), 3)

	dec, err := d.Decompose(context.Background(), "deep task", 3)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if !dec.Atomic {
		t.Error("depth at bound must force Atomic")
	}
	if gen.called {
		t.Error("capability must not be called at the depth bound")
	}
}

func TestDecompose_RecordsStats(t *testing.T) {
	gen := &fakeGenerator{text: `{"atomic": false, "subtasks": ["append A", "append B"]}`}
	tracker := stats.NewTracker()
	d := New(gen, tracker, 5)

	dec, err := d.Decompose(context.Background(), "append A then B", 0)
	if err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if dec.Atomic {
		t.Fatal("expected split")
	}
	if got := tracker.Snapshot().Decompositions; got != 1 {
		t.Errorf("Decompositions = %d, want 1", got)
	}
}

func TestDecompose_AtomicNotCounted(t *testing.T) {
	gen := &fakeGenerator{text: `{"atomic": true}`}
	tracker := stats.NewTracker()
	d := New(gen, tracker, 5)

	if _, err := d.Decompose(context.Background(), "small task", 0); err != nil {
		t.Fatalf("Decompose() error = %v", err)
	}
	if got := tracker.Snapshot().Decompositions; got != 0 {
		t.Errorf("Decompositions = %d, want 0 for atomic judgement", got)
	}
}

func TestDecompose_CapabilityFailure(t *testing.T) {
	gen := &fakeGenerator{err: &capability.Error{Kind: capability.ErrKindUnavailable, Message: "down"}}
	d := New(gen, stats.NewTracker(), 5)

	_, err := d.Decompose(context.Background(), "task", 0)
	if err == nil {
		t.Fatal("expected error")
	}
	var decErr *Error
	if !errors.As(err, &decErr) {
		t.Fatalf("error type = %T, want *decompose.Error", err)
	}
}

func TestDecompose_MalformedResponse(t *testing.T) {
	gen := &fakeGenerator{text: "I'd be happy to help!"}
	d := New(gen, stats.NewTracker(), 5)

	_, err := d.Decompose(context.Background(), "task", 0)
	var decErr *Error
	if !errors.As(err, &decErr) {
		t.Fatalf("error = %v, want *decompose.Error", err)
	}
}
