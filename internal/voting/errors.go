package voting

import "fmt"

// NoConsensusError indicates voting exhausted escalation without a group of
// valid candidates reaching the consensus threshold. It carries the
// best-supported candidate and its share so the failure is diagnosable.
type NoConsensusError struct {
	// Description is the atomic task that failed to reach consensus.
	Description string
	// Best is the best-supported candidate text.
	Best string
	// BestVotes is the number of valid votes for Best.
	BestVotes int
	// ValidVotes is the total number of valid votes in the final round.
	ValidVotes int
	// Escalations is the number of escalation rounds consumed.
	Escalations int
}

// Share returns the best candidate's fraction of valid votes.
func (e *NoConsensusError) Share() float64 {
	if e.ValidVotes == 0 {
		return 0
	}
	return float64(e.BestVotes) / float64(e.ValidVotes)
}

// Error implements the error interface.
func (e *NoConsensusError) Error() string {
	return fmt.Sprintf("no consensus after %d escalations: best candidate held %d/%d valid votes (%.0f%%)",
		e.Escalations, e.BestVotes, e.ValidVotes, e.Share()*100)
}

// RedFlagExhaustionError indicates consecutive rounds produced only flagged
// candidates, so no consensus is reachable within the escalation bound.
type RedFlagExhaustionError struct {
	// Description is the atomic task whose candidates kept getting flagged.
	Description string
	// Flagged is the total number of flagged candidates across the rounds.
	Flagged int
}

// Error implements the error interface.
func (e *RedFlagExhaustionError) Error() string {
	return fmt.Sprintf("red-flag exhaustion: %d consecutive candidates flagged, no valid votes to tally", e.Flagged)
}
