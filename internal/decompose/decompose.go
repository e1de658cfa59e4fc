// Package decompose provides recursive task decomposition for the engine.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/ShayCichocki/quorum/internal/capability"
	"github.com/ShayCichocki/quorum/internal/stats"
)

// Decomposition is the outcome of a decomposition query. Exactly one of the
// two forms holds: the task is atomic, or it splits into the ordered subtask
// list. Callers must handle both cases explicitly.
type Decomposition struct {
	// Atomic is true if the task is a single indivisible action.
	Atomic bool
	// Subtasks is the ordered list of child task descriptions.
	// Empty when Atomic is true.
	Subtasks []string
}

// Error indicates the generation capability was unavailable or returned a
// malformed decomposition.
type Error struct {
	Description string
	Err         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("decompose %q: %v", truncate(e.Description, 60), e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// decompositionResponse is the JSON structure returned by the capability.
type decompositionResponse struct {
	Atomic   bool     `json:"atomic"`
	Subtasks []string `json:"subtasks"`
}

// Decomposer judges whether tasks are atomic and splits the ones that aren't.
type Decomposer struct {
	gen      capability.Generator
	tracker  *stats.Tracker
	maxDepth int
}

// New creates a Decomposer. Depth at or beyond maxDepth forces Atomic
// regardless of the capability's judgement, bounding recursion.
func New(gen capability.Generator, tracker *stats.Tracker, maxDepth int) *Decomposer {
	return &Decomposer{gen: gen, tracker: tracker, maxDepth: maxDepth}
}

// Decompose asks whether the task at the given depth is atomic.
// At depth >= maxDepth it returns Atomic without consulting the capability;
// this is a deliberate escape hatch, not an error. On capability failure it
// returns an *Error.
func (d *Decomposer) Decompose(ctx context.Context, description string, depth int) (Decomposition, error) {
	if depth >= d.maxDepth {
		log.Printf("[decompose] depth %d at bound %d, forcing atomic: %s",
			depth, d.maxDepth, truncate(description, 60))
		return Decomposition{Atomic: true}, nil
	}

	resp, err := d.gen.Generate(ctx, capability.Request{
		Instruction: fmt.Sprintf(decompositionPrompt, description),
		Role:        capability.RoleDecompose,
	})
	if err != nil {
		return Decomposition{}, &Error{Description: description, Err: err}
	}

	dec, err := ParseResponse(resp.Text)
	if err != nil {
		return Decomposition{}, &Error{Description: description, Err: err}
	}

	if !dec.Atomic {
		d.tracker.RecordDecomposition()
		log.Printf("[decompose] split into %d subtasks: %s",
			len(dec.Subtasks), truncate(description, 60))
	}

	return dec, nil
}

// ParseResponse parses the capability's JSON decomposition response.
// A non-atomic response with fewer than two usable subtasks degrades to
// Atomic: re-executing the same task as its own single child makes no
// progress.
func ParseResponse(response string) (Decomposition, error) {
	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart == -1 || jsonEnd == -1 || jsonEnd <= jsonStart {
		return Decomposition{}, fmt.Errorf("no JSON object in response: %q", truncate(response, 200))
	}

	var parsed decompositionResponse
	if err := json.Unmarshal([]byte(response[jsonStart:jsonEnd+1]), &parsed); err != nil {
		return Decomposition{}, fmt.Errorf("unmarshal decomposition: %w", err)
	}

	if parsed.Atomic {
		return Decomposition{Atomic: true}, nil
	}

	subtasks := make([]string, 0, len(parsed.Subtasks))
	for _, s := range parsed.Subtasks {
		if trimmed := strings.TrimSpace(s); trimmed != "" {
			subtasks = append(subtasks, trimmed)
		}
	}

	if len(subtasks) < 2 {
		return Decomposition{Atomic: true}, nil
	}

	return Decomposition{Subtasks: subtasks}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
