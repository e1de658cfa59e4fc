package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/quorum/internal/audit"
	"github.com/ShayCichocki/quorum/internal/config"
)

var (
	auditJSON  bool
	auditYAML  bool
	auditLimit int
)

var auditCmd = &cobra.Command{
	Use:   "audit [run-id]",
	Short: "Inspect persisted runs",
	Long: `List or inspect runs persisted to the audit database.

Without arguments, lists recent runs. With a run ID, shows that run's
statistics, failure trace, and full node tree.

Output formats:
  - Human-readable (default)
  - JSON (--json flag): machine-readable structured output
  - YAML (--yaml flag): snapshot export of a run

Examples:
  quorum audit                 # list recent runs
  quorum audit --limit 50      # list more runs
  quorum audit <run-id>        # show one run in full
  quorum audit <run-id> --json | jq '.Stats'
  quorum audit <run-id> --yaml > run.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAuditCmd,
}

func init() {
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output in JSON format")
	auditCmd.Flags().BoolVar(&auditYAML, "yaml", false, "Output a run snapshot in YAML format")
	auditCmd.Flags().IntVar(&auditLimit, "limit", 20, "Maximum number of runs to list")
}

func runAuditCmd(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	path := cfg.Audit.Path
	if path == "" {
		path = audit.DefaultPath()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		fmt.Println("No audit database yet. Run with --audit or enable audit.enabled.")
		return nil
	}

	db, err := audit.Open(path)
	if err != nil {
		return fmt.Errorf("open audit database: %w", err)
	}
	defer db.Close()

	if len(args) == 0 {
		return listRuns(db)
	}
	return showRun(db, args[0])
}

func listRuns(db *audit.DB) error {
	runs, err := db.ListRuns(auditLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("No runs recorded.")
		return nil
	}

	if auditJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	for _, r := range runs {
		status := green.Sprint("ok  ")
		if !r.Success {
			status = red.Sprint("fail")
		}
		fmt.Printf("%s  %s  %s  votes=%d  %s\n",
			r.ID[:8], status, r.StartedAt.Format("2006-01-02 15:04"),
			r.VotesCast, truncateTask(r.Task, 50))
	}
	return nil
}

func showRun(db *audit.DB, id string) error {
	rec, err := db.GetRun(id)
	if err != nil {
		return err
	}

	if auditJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rec)
	}
	if auditYAML {
		out, err := yaml.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode run: %w", err)
		}
		os.Stdout.Write(out)
		return nil
	}

	fmt.Printf("run:      %s\n", rec.ID)
	fmt.Printf("task:     %s\n", rec.Task)
	fmt.Printf("success:  %t\n", rec.Success)
	if rec.Success {
		fmt.Printf("answer:   %s\n", rec.Answer)
	}
	fmt.Printf("started:  %s\n", rec.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("duration: %s\n", rec.Duration)
	fmt.Printf("stats:    decompositions=%d atomic=%d votes=%d red_flags=%d escalations=%d failures=%d\n",
		rec.Stats.Decompositions, rec.Stats.AtomicExecutions, rec.Stats.VotesCast,
		rec.Stats.RedFlagsDetected, rec.Stats.Escalations, rec.Stats.Failures)

	if len(rec.FailureTrace) > 0 {
		fmt.Println("failure trace:")
		for _, entry := range rec.FailureTrace {
			fmt.Printf("  %s: %s\n", entry.NodePath, entry.Reason)
		}
	}

	fmt.Printf("nodes (%d):\n", len(rec.Nodes))
	for _, node := range rec.Nodes {
		indent := ""
		for i := 0; i < node.Depth; i++ {
			indent += "  "
		}
		fmt.Printf("  %s[%s] %s\n", indent, node.State, truncateTask(node.Description, 60))
	}
	return nil
}

func truncateTask(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
