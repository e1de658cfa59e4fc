package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "quorum",
	Short: "Reliability engine for long chains of LLM steps",
	Long: `Quorum executes long sequences of atomic LLM actions with near-zero
aggregate error. Tasks are recursively decomposed into atomic steps; each
step is answered by several decorrelated generations that must agree
before the result counts, and disagreements escalate to larger vote
pools before anything is composed into a final answer.

Core behaviors:
- Decomposes tasks into ordered atomic subtasks
- Votes each atomic step with k decorrelated generations
- Screens candidates for red flags before they can vote
- Escalates the vote pool when consensus is not reached
- Composes child results strictly in order`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(estimateCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}
