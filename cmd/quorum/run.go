package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/quorum/internal/audit"
	"github.com/ShayCichocki/quorum/internal/capability"
	"github.com/ShayCichocki/quorum/internal/config"
	"github.com/ShayCichocki/quorum/internal/engine"
	"github.com/ShayCichocki/quorum/internal/notify"
	"github.com/ShayCichocki/quorum/internal/tui"
)

var (
	runHeadless bool
	runFile     string
	runK        int
	runAudit    bool
	runModel    string
)

var runCmd = &cobra.Command{
	Use:   "run <task>",
	Short: "Run a task through the reliability engine",
	Long: `Run a task through decomposition, voting, and composition.

The task is recursively decomposed into ordered atomic subtasks. Each
atomic subtask is answered by k decorrelated generations; candidates are
screened for red flags, and the surviving votes must agree before the
result counts. Disagreement doubles the vote pool up to a bound.

Task input:
  quorum run "summarize every section of the report"
  quorum run --file tasks.yaml       # run a list of tasks in order

Examples:
  quorum run "translate the changelog" --k 5
  quorum run "migrate the data" --headless --audit`,
	Args: cobra.ArbitraryArgs,
	RunE: runTask,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "Run without TUI (headless mode)")
	runCmd.Flags().StringVar(&runFile, "file", "", "YAML file with a list of tasks to run in order")
	runCmd.Flags().IntVar(&runK, "k", 0, "Initial number of votes per atomic step (default from config)")
	runCmd.Flags().BoolVar(&runAudit, "audit", false, "Persist the run to the audit database")
	runCmd.Flags().StringVar(&runModel, "model", "", "Claude model to use (default from config)")
}

// taskFile is the schema of a --file task list.
type taskFile struct {
	Tasks []string `yaml:"tasks"`
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	tasks, err := collectTasks(args)
	if err != nil {
		return err
	}

	model := cfg.Anthropic.Model
	if runModel != "" {
		model = runModel
	}

	apiKey := ""
	if !cfg.Anthropic.UseBedrock {
		apiKey, err = config.GetAPIKey(cfg)
		if err != nil {
			return err
		}
	}

	client, err := capability.NewClient(capability.ClientConfig{
		Model:         anthropic.Model(model),
		APIKey:        apiKey,
		UseAWSBedrock: cfg.Anthropic.UseBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	gen := capability.NewAnthropicGenerator(client)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("get working directory: %w", err)
	}

	signals, err := notify.NewManager(cwd)
	if err != nil {
		return fmt.Errorf("create signal manager: %w", err)
	}
	defer signals.Close()
	signals.ClearSignals()

	runCfg := runConfigFrom(cfg, cmd)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Println("\nReceived interrupt, shutting down...")
		cancel()
	}()

	var store *audit.DB
	if runAudit || cfg.Audit.Enabled {
		path := cfg.Audit.Path
		if path == "" {
			path = audit.DefaultPath()
		}
		store, err = audit.Open(path)
		if err != nil {
			return fmt.Errorf("open audit database: %w", err)
		}
		defer store.Close()
	}

	logger := engine.NewDebugLoggerForDir(cwd)
	defer logger.Close()

	var firstErr error
	for _, task := range tasks {
		result, err := runOne(ctx, task, gen, runCfg, signals, logger)
		if result != nil {
			printSummary(task, result, client.Tracker())
			if store != nil {
				id, saveErr := store.SaveRun(audit.RunRecord{
					Task:         task,
					Success:      result.Success,
					Answer:       result.Answer,
					Stats:        result.Stats,
					FailureTrace: result.FailureTrace,
					StartedAt:    result.StartedAt,
					Duration:     result.Duration,
					Nodes:        result.Nodes,
				})
				if saveErr != nil {
					fmt.Fprintf(os.Stderr, "Warning: audit save failed: %v\n", saveErr)
				} else {
					fmt.Printf("Audit run ID: %s\n", id)
				}
			}
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err != nil {
			// A failed task poisons everything after it; stop the list.
			break
		}
	}

	return firstErr
}

// collectTasks resolves the task list from args or --file.
func collectTasks(args []string) ([]string, error) {
	if runFile != "" {
		data, err := os.ReadFile(runFile)
		if err != nil {
			return nil, fmt.Errorf("read task file: %w", err)
		}
		var tf taskFile
		if err := yaml.Unmarshal(data, &tf); err != nil {
			return nil, fmt.Errorf("parse task file: %w", err)
		}
		if len(tf.Tasks) == 0 {
			return nil, fmt.Errorf("task file %s has no tasks", runFile)
		}
		return tf.Tasks, nil
	}

	if len(args) == 0 {
		return nil, fmt.Errorf("a task description or --file is required")
	}
	task := args[0]
	for _, a := range args[1:] {
		task += " " + a
	}
	return []string{task}, nil
}

// runConfigFrom builds the engine run config from loaded config plus flags.
func runConfigFrom(cfg *config.Config, cmd *cobra.Command) engine.RunConfig {
	rc := engine.RunConfig{
		VotingK:               cfg.Engine.VotingK,
		MaxDecompositionDepth: cfg.Engine.MaxDepth,
		MaxSubtaskRetries:     cfg.Engine.MaxRetries,
		EnableRedFlagging:     cfg.Engine.RedFlagging,
		ConsensusThreshold:    cfg.Engine.ConsensusThreshold,
		MaxEscalationK:        cfg.Engine.MaxEscalationK,
		VoteTimeout:           cfg.Engine.VoteTimeout,
	}
	if cmd.Flags().Changed("k") && runK > 0 {
		rc.VotingK = runK
	}
	return rc
}

// runOne executes a single task with or without the TUI.
func runOne(ctx context.Context, task string, gen capability.Generator, runCfg engine.RunConfig, signals *notify.Manager, logger *engine.DebugLogger) (*engine.RunResult, error) {
	eng := engine.New(gen,
		engine.WithRunConfig(runCfg),
		engine.WithSignals(signals),
		engine.WithLogger(logger),
	)

	if runHeadless {
		go drainEvents(eng.Events())
		result, err := eng.Run(ctx, task)
		eng.Close()
		return result, err
	}

	type runOutcome struct {
		result *engine.RunResult
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		result, err := eng.Run(ctx, task)
		done <- runOutcome{result, err}
		eng.Close()
	}()

	view := tui.NewRunView(task, eng.Events(), eng.Tracker())
	if _, err := tea.NewProgram(view).Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: TUI error: %v\n", err)
	}

	outcome := <-done
	return outcome.result, outcome.err
}

// drainEvents keeps the emit path from blocking in headless mode.
func drainEvents(events <-chan engine.Event) {
	for ev := range events {
		switch ev.Type {
		case engine.EventNodeFailed:
			fmt.Fprintf(os.Stderr, "node %s failed: %v\n", ev.NodePath, ev.Error)
		case engine.EventNodeRetrying:
			fmt.Fprintf(os.Stderr, "retrying %s (%s)\n", ev.NodePath, ev.Message)
		}
	}
}

// printSummary prints the run outcome and counters.
func printSummary(task string, result *engine.RunResult, tokens *capability.TokenTracker) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	dim := color.New(color.Faint)

	fmt.Println()
	dim.Printf("task: %s\n", task)
	if result.Success {
		green.Printf("✓ Task complete (%s)\n", result.Duration.Round(time.Millisecond))
		fmt.Println(result.Answer)
	} else {
		red.Printf("✗ Task failed (%s)\n", result.Duration.Round(time.Millisecond))
		for _, entry := range result.FailureTrace {
			red.Printf("  %s: %s\n", entry.NodePath, entry.Reason)
		}
	}

	dim.Printf("decompositions=%d atomic=%d votes=%d red_flags=%d escalations=%d failures=%d\n",
		result.Stats.Decompositions, result.Stats.AtomicExecutions,
		result.Stats.VotesCast, result.Stats.RedFlagsDetected,
		result.Stats.Escalations, result.Stats.Failures)
	if result.DroppedEvents > 0 {
		dim.Printf("note: %d progress events dropped (subscriber fell behind)\n", result.DroppedEvents)
	}

	if tokens != nil {
		in, out := tokens.Total()
		dim.Printf("tokens: %d in / %d out across %d calls ($%.4f)\n",
			in, out, tokens.Calls(), tokens.Cost())
	}
}
