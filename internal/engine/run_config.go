// Package engine coordinates recursive task decomposition, voted atomic
// execution, and ordered composition of results.
package engine

import (
	"time"

	"github.com/ShayCichocki/quorum/internal/voting"
)

// Default run parameters.
const (
	// DefaultVotingK is the initial number of votes per atomic step.
	DefaultVotingK = 3
	// DefaultMaxDecompositionDepth bounds recursive decomposition.
	DefaultMaxDecompositionDepth = 5
	// DefaultMaxSubtaskRetries is how many times a failed subtask is
	// re-attempted before the whole run fails.
	DefaultMaxSubtaskRetries = 2
)

// RunConfig contains runtime configuration that is immutable after construction.
// It consolidates the knobs that define how a run operates.
type RunConfig struct {
	// VotingK is the initial number of decorrelated votes per atomic step.
	VotingK int

	// MaxDecompositionDepth bounds the recursion; tasks at the limit are
	// forced atomic.
	MaxDecompositionDepth int

	// MaxSubtaskRetries is the number of re-attempts for a failed subtask.
	MaxSubtaskRetries int

	// EnableRedFlagging turns candidate screening on or off.
	EnableRedFlagging bool

	// ConsensusThreshold is the required winning share among valid votes.
	// Must exceed one half; values at or below 0.5 fall back to the default.
	ConsensusThreshold float64

	// MaxEscalationK caps vote-count doubling on disagreement.
	MaxEscalationK int

	// VoteTimeout bounds each individual vote generation.
	VoteTimeout time.Duration
}

// DefaultRunConfig returns a RunConfig with all defaults applied.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		VotingK:               DefaultVotingK,
		MaxDecompositionDepth: DefaultMaxDecompositionDepth,
		MaxSubtaskRetries:     DefaultMaxSubtaskRetries,
		EnableRedFlagging:     true,
		ConsensusThreshold:    voting.DefaultThreshold,
		MaxEscalationK:        voting.DefaultMaxEscalationK,
		VoteTimeout:           voting.DefaultVoteTimeout,
	}
}

// normalized returns a copy with zero values replaced by defaults.
func (c RunConfig) normalized() RunConfig {
	d := DefaultRunConfig()
	if c.VotingK <= 0 {
		c.VotingK = d.VotingK
	}
	if c.MaxDecompositionDepth <= 0 {
		c.MaxDecompositionDepth = d.MaxDecompositionDepth
	}
	if c.MaxSubtaskRetries < 0 {
		c.MaxSubtaskRetries = d.MaxSubtaskRetries
	}
	if c.ConsensusThreshold <= 0.5 || c.ConsensusThreshold > 1 {
		c.ConsensusThreshold = d.ConsensusThreshold
	}
	if c.MaxEscalationK <= 0 {
		c.MaxEscalationK = d.MaxEscalationK
	}
	if c.VoteTimeout <= 0 {
		c.VoteTimeout = d.VoteTimeout
	}
	return c
}

// votingConfig projects the run-level knobs onto the vote executor's config.
func (c RunConfig) votingConfig() voting.Config {
	return voting.Config{
		Threshold:        c.ConsensusThreshold,
		MaxEscalationK:   c.MaxEscalationK,
		VoteTimeout:      c.VoteTimeout,
		DisableScreening: !c.EnableRedFlagging,
	}
}
