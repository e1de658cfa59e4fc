package models

// Candidate is one independent sample obtained for a single atomic task.
// Candidates are owned by the voting round that produced them and are
// discarded after consensus resolution except for logging.
type Candidate struct {
	// CallID identifies the generation call that produced this candidate.
	CallID string `json:"call_id"`
	// Text is the raw response text.
	Text string `json:"text"`
	// Canonical is the canonicalized form used for exact-match grouping.
	Canonical string `json:"canonical"`
	// Flagged is true if the red-flag screener rejected this candidate.
	Flagged bool `json:"flagged"`
	// FlagReason explains why the candidate was flagged, if it was.
	FlagReason string `json:"flag_reason,omitempty"`
}

// ConsensusResult is the computed outcome of a voting round. It is a value,
// not persisted state.
type ConsensusResult struct {
	// Winner is the winning text. Empty unless Agreed is true.
	Winner string `json:"winner,omitempty"`
	// Agreed is true if a quorum of valid candidates agreed on the winner.
	Agreed bool `json:"agreed"`
	// AgreeVotes is the number of valid candidates in the winning group.
	AgreeVotes int `json:"agree_votes"`
	// ValidVotes is the total number of unflagged candidates tallied.
	ValidVotes int `json:"valid_votes"`
	// Escalations is the number of escalation rounds consumed.
	Escalations int `json:"escalations"`
}

// Share returns the winning group's fraction of valid votes.
func (r ConsensusResult) Share() float64 {
	if r.ValidVotes == 0 {
		return 0
	}
	return float64(r.AgreeVotes) / float64(r.ValidVotes)
}

// ExecutionStats holds run-scoped counters. Lifetime is one top-level run;
// the snapshot is a plain value safe to copy.
type ExecutionStats struct {
	// Decompositions is the number of non-atomic decompositions performed.
	Decompositions int64 `json:"decompositions_performed"`
	// AtomicExecutions is the number of atomic voting executions started.
	AtomicExecutions int64 `json:"atomic_executions"`
	// VotesCast is the number of completed candidate samples, valid or flagged.
	VotesCast int64 `json:"votes_cast"`
	// RedFlagsDetected is the number of candidates rejected by screening.
	RedFlagsDetected int64 `json:"red_flags_detected"`
	// Escalations is the number of vote-count escalations.
	Escalations int64 `json:"escalations"`
	// Failures is the number of failed node attempts.
	Failures int64 `json:"failures"`
}
