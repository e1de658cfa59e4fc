// Package capability provides the generation-capability contract and its
// Anthropic API implementation. The engine requires nothing beyond this
// contract: one instruction in, one text response out.
package capability

import (
	"context"
	"fmt"
)

// Role identifies the purpose of a generation request.
type Role string

const (
	// RoleDecompose asks whether a task is atomic and, if not, for subtasks.
	RoleDecompose Role = "decompose"
	// RoleExecuteAtomic asks for the result of a single atomic task.
	RoleExecuteAtomic Role = "execute_atomic"
	// RoleScreen asks for a plausibility verdict on a candidate result.
	RoleScreen Role = "screen"
)

// Request is a single instruction to the generation capability.
type Request struct {
	// Instruction is the full prompt text.
	Instruction string
	// Role identifies the purpose of the request.
	Role Role
	// VariationKey selects decorrelated sampling parameters. Requests for the
	// same instruction with distinct keys must not share sampling conditions,
	// so their errors stay statistically independent.
	VariationKey int
}

// TokenUsage reports tokens consumed by one generation call.
type TokenUsage struct {
	InputTokens  int64
	OutputTokens int64
}

// Response is the capability's answer to one request.
type Response struct {
	// Text is the response text.
	Text string
	// Usage is the token usage for the call.
	Usage TokenUsage
}

// ErrorKind classifies capability failures.
type ErrorKind string

const (
	// ErrKindTimeout indicates the call exceeded its deadline.
	ErrKindTimeout ErrorKind = "timeout"
	// ErrKindUnavailable indicates the capability could not be reached.
	ErrKindUnavailable ErrorKind = "unavailable"
	// ErrKindMalformed indicates the capability returned an unusable response.
	ErrKindMalformed ErrorKind = "malformed"
)

// Error is a classified capability failure.
type Error struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("capability %s: %s", e.Kind, e.Message)
}

// IsTimeout returns true if err is a capability timeout.
func IsTimeout(err error) bool {
	capErr, ok := err.(*Error)
	return ok && capErr.Kind == ErrKindTimeout
}

// Generator answers a single instruction with a text response.
// Implementations must be safe for concurrent use: one voting round issues
// its k requests concurrently.
type Generator interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
