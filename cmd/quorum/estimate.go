package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/quorum/internal/stats"
)

var (
	estimateSteps    int
	estimateVoteErr  float64
	estimateTarget   float64
	estimateVotesPer int
)

var estimateCmd = &cobra.Command{
	Use:   "estimate",
	Short: "Estimate the votes needed for a target aggregate error",
	Long: `Estimate how many votes per atomic step are required to keep the
aggregate failure probability of a long run below a target.

The model treats each vote as an independent sample that is wrong with
probability --vote-error. The required vote count grows logarithmically
with the number of steps, which is what makes very long runs feasible.

Examples:
  quorum estimate --steps 1000
  quorum estimate --steps 1000000 --vote-error 0.2 --target 0.01`,
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().IntVar(&estimateSteps, "steps", 1000, "Number of atomic steps in the run")
	estimateCmd.Flags().Float64Var(&estimateVoteErr, "vote-error", stats.DefaultPerVoteError, "Per-vote error probability")
	estimateCmd.Flags().Float64Var(&estimateTarget, "target", 0.01, "Target aggregate failure probability")
	estimateCmd.Flags().IntVar(&estimateVotesPer, "votes-per-step", 0, "Also report the failure model at this vote count")
}

func runEstimate(cmd *cobra.Command, args []string) error {
	if estimateSteps < 1 {
		return fmt.Errorf("--steps must be at least 1")
	}
	if estimateVoteErr < 0 || estimateVoteErr >= 1 {
		return fmt.Errorf("--vote-error must be in [0, 1)")
	}
	if estimateTarget <= 0 || estimateTarget >= 1 {
		return fmt.Errorf("--target must be in (0, 1)")
	}

	bold := color.New(color.Bold)
	dim := color.New(color.Faint)

	if estimateVoteErr >= 0.5 {
		fmt.Fprintln(os.Stderr, "Per-vote error of 0.5 or more cannot be fixed by voting: the majority is no better than a coin flip.")
		os.Exit(1)
	}

	k := stats.RequiredVotes(estimateSteps, estimateVoteErr, estimateTarget)
	bold.Printf("required votes per step: %d\n", k)
	dim.Printf("steps=%d vote_error=%g target=%g\n", estimateSteps, estimateVoteErr, estimateTarget)

	votesPer := estimateVotesPer
	if votesPer <= 0 {
		votesPer = k
	}

	model := stats.ErrorModel{
		PerVoteError: estimateVoteErr,
		VotesPerStep: votesPer,
	}
	fmt.Printf("per-step failure probability at %d votes: %.3g\n", votesPer, model.StepFailureProbability())
	fmt.Printf("aggregate failure probability over %d steps: %.3g\n", estimateSteps, model.AggregateFailureProbability(estimateSteps))

	return nil
}
