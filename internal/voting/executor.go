// Package voting obtains k independent candidates for one atomic task,
// screens them, and applies the consensus rule with bounded escalation.
package voting

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/quorum/internal/capability"
	"github.com/ShayCichocki/quorum/internal/screen"
	"github.com/ShayCichocki/quorum/internal/stats"
	"github.com/ShayCichocki/quorum/pkg/models"
)

const (
	// DefaultThreshold requires a strict majority of valid votes.
	DefaultThreshold = 0.51
	// DefaultMaxEscalationK bounds the per-round vote count under escalation.
	DefaultMaxEscalationK = 16
	// DefaultVoteTimeout is the per-request deadline for one vote.
	DefaultVoteTimeout = 90 * time.Second

	// maxAllFlaggedRounds is how many consecutive rounds may yield zero valid
	// candidates before the executor gives up instead of escalating further.
	maxAllFlaggedRounds = 2
)

// Config controls the consensus rule and escalation behavior.
type Config struct {
	// Threshold is the fraction of valid votes the largest group must reach.
	// It must exceed one half so at most one group can win a round; values
	// at or below 0.5 are replaced by the default.
	Threshold float64
	// MaxEscalationK is the upper bound on the per-round vote count.
	MaxEscalationK int
	// VoteTimeout is the deadline for a single vote request.
	VoteTimeout time.Duration
	// MaxReplacements bounds replacement requests for timed-out votes per
	// round. Zero means one replacement per originally requested vote.
	MaxReplacements int
	// DisableScreening skips red-flag screening even if a screener is set.
	DisableScreening bool
}

// normalized returns the config with defaults applied.
func (c Config) normalized() Config {
	// A threshold at or below one half would let a tied split "win", making
	// the outcome depend on which group completed first.
	if c.Threshold <= 0.5 || c.Threshold > 1 {
		c.Threshold = DefaultThreshold
	}
	if c.MaxEscalationK < 1 {
		c.MaxEscalationK = DefaultMaxEscalationK
	}
	if c.VoteTimeout <= 0 {
		c.VoteTimeout = DefaultVoteTimeout
	}
	return c
}

// Executor runs voting rounds for atomic tasks. Within one round all k
// requests are issued concurrently; the tally is commutative, so candidate
// completion order never affects the outcome.
type Executor struct {
	gen      capability.Generator
	screener screen.Screener
	tracker  *stats.Tracker
	cfg      Config
}

// NewExecutor creates an Executor. The screener may be nil to disable
// red-flag screening.
func NewExecutor(gen capability.Generator, screener screen.Screener, tracker *stats.Tracker, cfg Config) *Executor {
	return &Executor{
		gen:      gen,
		screener: screener,
		tracker:  tracker,
		cfg:      cfg.normalized(),
	}
}

// ExecuteAtomic obtains k independent candidates for the task and applies the
// consensus rule, escalating by doubling k (bounded by MaxEscalationK) until
// a quorum agrees. Returns NoConsensusError or RedFlagExhaustionError when
// escalation is exhausted.
func (e *Executor) ExecuteAtomic(ctx context.Context, description string, k int) (models.ConsensusResult, error) {
	if k < 1 {
		k = 1
	}
	if k > e.cfg.MaxEscalationK {
		k = e.cfg.MaxEscalationK
	}

	e.tracker.RecordAtomicExecution()

	escalations := 0
	allFlaggedRounds := 0
	totalFlagged := 0
	variationBase := 0

	for {
		candidates, issued, err := e.sampleRound(ctx, description, k, variationBase)
		if err != nil {
			return models.ConsensusResult{}, err
		}
		variationBase += issued

		valid := make([]models.Candidate, 0, len(candidates))
		for _, c := range candidates {
			if c.Flagged {
				totalFlagged++
				continue
			}
			valid = append(valid, c)
		}

		if len(valid) == 0 {
			allFlaggedRounds++
			log.Printf("[voting] round of %d produced no valid candidates (%d consecutive)", k, allFlaggedRounds)
			if allFlaggedRounds >= maxAllFlaggedRounds || k >= e.cfg.MaxEscalationK {
				return models.ConsensusResult{}, &RedFlagExhaustionError{
					Description: description,
					Flagged:     totalFlagged,
				}
			}
		} else {
			allFlaggedRounds = 0
			winner, count := tally(valid)
			share := float64(count) / float64(len(valid))

			if share >= e.cfg.Threshold {
				return models.ConsensusResult{
					Winner:      winner,
					Agreed:      true,
					AgreeVotes:  count,
					ValidVotes:  len(valid),
					Escalations: escalations,
				}, nil
			}

			if k >= e.cfg.MaxEscalationK {
				return models.ConsensusResult{}, &NoConsensusError{
					Description: description,
					Best:        winner,
					BestVotes:   count,
					ValidVotes:  len(valid),
					Escalations: escalations,
				}
			}

			log.Printf("[voting] no quorum at k=%d: best %d/%d valid (threshold %.2f), escalating",
				k, count, len(valid), e.cfg.Threshold)
		}

		k *= 2
		if k > e.cfg.MaxEscalationK {
			k = e.cfg.MaxEscalationK
		}
		escalations++
		e.tracker.RecordEscalation()
	}
}

// voteOutcome is one completed or timed-out sample.
type voteOutcome struct {
	candidate models.Candidate
	timedOut  bool
	err       error
}

// sampleRound issues k concurrent decorrelated requests and screens each
// completed candidate. Timed-out requests are replaced (up to the bound) with
// fresh variation keys so the effective k is not silently weakened. Returns
// the candidates and the number of requests issued.
func (e *Executor) sampleRound(ctx context.Context, description string, k, variationBase int) ([]models.Candidate, int, error) {
	results := make(chan voteOutcome, k)

	issued := 0
	launch := func() {
		key := variationBase + issued
		issued++
		go e.sampleOne(ctx, description, key, results)
	}

	for i := 0; i < k; i++ {
		launch()
	}

	maxReplacements := e.cfg.MaxReplacements
	if maxReplacements <= 0 {
		maxReplacements = k
	}

	candidates := make([]models.Candidate, 0, k)
	replacements := 0
	outstanding := k

	for outstanding > 0 {
		select {
		case <-ctx.Done():
			return nil, issued, ctx.Err()
		case outcome := <-results:
			outstanding--
			switch {
			case outcome.timedOut:
				if replacements < maxReplacements {
					replacements++
					outstanding++
					log.Printf("[voting] vote timed out, issuing replacement %d/%d", replacements, maxReplacements)
					launch()
				} else {
					log.Printf("[voting] vote timed out, replacement budget exhausted")
				}
			case outcome.err != nil:
				return nil, issued, fmt.Errorf("vote request: %w", outcome.err)
			default:
				candidates = append(candidates, outcome.candidate)
			}
		}
	}

	return candidates, issued, nil
}

// sampleOne performs one vote request plus screening and delivers the
// outcome. Every completed candidate counts as a cast vote, flagged or not;
// timeouts count as neither a vote nor a red flag.
func (e *Executor) sampleOne(ctx context.Context, description string, variationKey int, results chan<- voteOutcome) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.VoteTimeout)
	defer cancel()

	resp, err := e.gen.Generate(callCtx, capability.Request{
		Instruction:  description,
		Role:         capability.RoleExecuteAtomic,
		VariationKey: variationKey,
	})
	if err != nil {
		if capability.IsTimeout(err) || callCtx.Err() == context.DeadlineExceeded {
			results <- voteOutcome{timedOut: true}
			return
		}
		results <- voteOutcome{err: err}
		return
	}

	e.tracker.RecordVote()

	candidate := models.Candidate{
		CallID:    uuid.New().String(),
		Text:      resp.Text,
		Canonical: Canonicalize(resp.Text),
	}

	if e.screener != nil && !e.cfg.DisableScreening {
		verdict, err := e.screener.Screen(ctx, resp.Text, description)
		if err != nil {
			// An unscreenable candidate must not count as a vote.
			verdict = screen.Flag("screening failed: " + err.Error())
		}
		if verdict.Flagged {
			candidate.Flagged = true
			candidate.FlagReason = verdict.Reason
			e.tracker.RecordRedFlag()
			log.Printf("[voting] candidate %s flagged: %s", candidate.CallID[:8], verdict.Reason)
		}
	}

	results <- voteOutcome{candidate: candidate}
}

// tally groups valid candidates by canonical form and returns the raw text of
// the largest group's first candidate with the group size. Ties break toward
// the group seen first, keeping the result deterministic for a fixed
// candidate order; the group sizes themselves are completion-order
// independent.
func tally(valid []models.Candidate) (string, int) {
	counts := make(map[string]int, len(valid))
	first := make(map[string]string, len(valid))
	order := make([]string, 0, len(valid))

	for _, c := range valid {
		if _, seen := counts[c.Canonical]; !seen {
			order = append(order, c.Canonical)
			first[c.Canonical] = c.Text
		}
		counts[c.Canonical]++
	}

	bestKey := ""
	bestCount := 0
	for _, key := range order {
		if counts[key] > bestCount {
			bestKey = key
			bestCount = counts[key]
		}
	}

	return first[bestKey], bestCount
}
