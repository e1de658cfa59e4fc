package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStopped is returned when a run is halted by a stop signal.
// Stop is checked between sibling subtasks, never mid-vote.
var ErrStopped = errors.New("run stopped by signal")

// RetryExhaustedError is returned when a subtask fails on every allowed
// attempt. Reasons holds one entry per failed attempt, in order.
type RetryExhaustedError struct {
	// Description is the failed subtask's text.
	Description string
	// Attempts is the total number of attempts made.
	Attempts int
	// Reasons holds the failure reason of each attempt.
	Reasons []string
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("subtask failed after %d attempts: %s (last: %s)",
		e.Attempts, truncate(e.Description, 60), e.Reasons[len(e.Reasons)-1])
}

// Chain returns the attempt reasons joined into one readable string.
func (e *RetryExhaustedError) Chain() string {
	parts := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		parts[i] = fmt.Sprintf("attempt %d: %s", i+1, r)
	}
	return strings.Join(parts, "; ")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
