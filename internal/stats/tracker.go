// Package stats provides run-scoped execution counters and error-rate
// estimation for voting-based execution.
package stats

import (
	"math"
	"sync/atomic"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// DefaultPerVoteError is the assumed per-vote error rate used when a run has
// not yet observed enough votes to estimate one empirically.
const DefaultPerVoteError = 0.1

// Tracker accumulates execution counters for a single run. All increments are
// atomic so concurrent voting goroutines can record without a shared lock.
// A tracker serving sequential runs is reset at each run boundary so every
// snapshot covers exactly one run.
type Tracker struct {
	decompositions   atomic.Int64
	atomicExecutions atomic.Int64
	votesCast        atomic.Int64
	redFlags         atomic.Int64
	escalations      atomic.Int64
	failures         atomic.Int64
}

// NewTracker creates a zeroed Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// RecordDecomposition records one non-atomic decomposition.
func (t *Tracker) RecordDecomposition() { t.decompositions.Add(1) }

// RecordAtomicExecution records the start of one atomic voting execution.
func (t *Tracker) RecordAtomicExecution() { t.atomicExecutions.Add(1) }

// RecordVote records one completed candidate sample, valid or flagged.
// Timed-out requests are replaced rather than recorded.
func (t *Tracker) RecordVote() { t.votesCast.Add(1) }

// RecordRedFlag records one candidate rejected by screening.
func (t *Tracker) RecordRedFlag() { t.redFlags.Add(1) }

// RecordEscalation records one vote-count escalation.
func (t *Tracker) RecordEscalation() { t.escalations.Add(1) }

// RecordFailure records one failed node attempt.
func (t *Tracker) RecordFailure() { t.failures.Add(1) }

// Reset returns every counter to zero. Called at the start of a run when
// the tracker outlives a single run.
func (t *Tracker) Reset() {
	t.decompositions.Store(0)
	t.atomicExecutions.Store(0)
	t.votesCast.Store(0)
	t.redFlags.Store(0)
	t.escalations.Store(0)
	t.failures.Store(0)
}

// Snapshot returns a point-in-time copy of all counters.
func (t *Tracker) Snapshot() models.ExecutionStats {
	return models.ExecutionStats{
		Decompositions:   t.decompositions.Load(),
		AtomicExecutions: t.atomicExecutions.Load(),
		VotesCast:        t.votesCast.Load(),
		RedFlagsDetected: t.redFlags.Load(),
		Escalations:      t.escalations.Load(),
		Failures:         t.failures.Load(),
	}
}

// EstimateErrorRate returns a best-effort estimate of the probability that a
// run of totalSteps atomic steps produces at least one wrong accepted result.
// The per-vote error rate is approximated by the observed red-flag fraction
// and the vote count per step by the observed average, falling back to
// defaults before any votes have been cast. This is a diagnostic, not a
// certified bound.
func (t *Tracker) EstimateErrorRate(totalSteps int) float64 {
	votes := t.votesCast.Load()
	execs := t.atomicExecutions.Load()

	perVote := DefaultPerVoteError
	if votes > 0 {
		observed := float64(t.redFlags.Load()) / float64(votes)
		if observed > 0 {
			perVote = observed
		}
	}

	votesPerStep := 3
	if execs > 0 && votes > 0 {
		votesPerStep = int(votes / execs)
		if votesPerStep < 1 {
			votesPerStep = 1
		}
	}

	model := ErrorModel{PerVoteError: perVote, VotesPerStep: votesPerStep}
	return model.AggregateFailureProbability(totalSteps)
}

// ErrorModel holds the i.i.d. per-vote error assumptions under which voting
// suppresses the aggregate error rate.
type ErrorModel struct {
	// PerVoteError is the probability that a single independent vote is wrong.
	PerVoteError float64
	// VotesPerStep is the number of independent votes per atomic step.
	VotesPerStep int
}

// StepFailureProbability returns an upper bound on the probability that a
// majority of votes for one atomic step is wrong, via the Hoeffding bound
// exp(-2k(1/2-p)^2) for p < 1/2. For p >= 1/2 voting cannot help and the
// bound degenerates to 1.
func (m ErrorModel) StepFailureProbability() float64 {
	if m.PerVoteError >= 0.5 {
		return 1
	}
	if m.PerVoteError <= 0 || m.VotesPerStep <= 0 {
		return 0
	}
	gap := 0.5 - m.PerVoteError
	return math.Exp(-2 * float64(m.VotesPerStep) * gap * gap)
}

// AggregateFailureProbability returns the probability that at least one of
// totalSteps independent atomic steps fails: 1-(1-q)^n for per-step bound q.
func (m ErrorModel) AggregateFailureProbability(totalSteps int) float64 {
	if totalSteps <= 0 {
		return 0
	}
	q := m.StepFailureProbability()
	if q >= 1 {
		return 1
	}
	return 1 - math.Pow(1-q, float64(totalSteps))
}

// RequiredVotes returns the per-step vote count k needed to keep the
// aggregate failure probability of totalSteps steps at or below target,
// assuming independent votes each wrong with probability perVoteError.
// Solving the Hoeffding bound gives k >= ln(n/target) / (2(1/2-p)^2), so the
// required k grows only logarithmically in the number of steps. Returns 0 if
// the target is unachievable (perVoteError >= 1/2).
func RequiredVotes(totalSteps int, perVoteError, target float64) int {
	if totalSteps <= 0 || target <= 0 || target >= 1 {
		return 0
	}
	if perVoteError >= 0.5 {
		return 0
	}
	if perVoteError <= 0 {
		return 1
	}
	gap := 0.5 - perVoteError
	// Per-step budget via union bound: target / n.
	k := math.Log(float64(totalSteps)/target) / (2 * gap * gap)
	if k < 1 {
		return 1
	}
	return int(math.Ceil(k))
}
