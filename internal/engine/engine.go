package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ShayCichocki/quorum/internal/capability"
	"github.com/ShayCichocki/quorum/internal/compose"
	"github.com/ShayCichocki/quorum/internal/decompose"
	"github.com/ShayCichocki/quorum/internal/notify"
	"github.com/ShayCichocki/quorum/internal/screen"
	"github.com/ShayCichocki/quorum/internal/stats"
	"github.com/ShayCichocki/quorum/internal/voting"
	"github.com/ShayCichocki/quorum/pkg/models"
)

const pauseCheckInterval = 500 * time.Millisecond

// Engine runs a task through recursive decomposition, voted atomic
// execution, and ordered composition. A single Engine may be reused for
// sequential runs; each Run gets a fresh node arena and resets the
// statistics tracker, so RunResult.Stats covers exactly one run.
type Engine struct {
	gen      capability.Generator
	tracker  *stats.Tracker
	cfg      RunConfig
	composer compose.Func
	screener screen.Screener
	signals  *notify.Manager
	logger   *DebugLogger
	emitter  *eventEmitter
}

// Option configures an Engine. Use With* functions to create Options.
type Option func(*Engine)

// WithRunConfig sets the run configuration.
func WithRunConfig(cfg RunConfig) Option {
	return func(e *Engine) { e.cfg = cfg }
}

// WithComposer overrides how child results are combined.
func WithComposer(f compose.Func) Option {
	return func(e *Engine) { e.composer = f }
}

// WithScreener overrides the red-flag screener.
func WithScreener(s screen.Screener) Option {
	return func(e *Engine) { e.screener = s }
}

// WithSignals attaches a notification manager for stop/pause control.
func WithSignals(m *notify.Manager) Option {
	return func(e *Engine) { e.signals = m }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithTracker sets the statistics tracker. Useful when the caller wants
// to read counters while a run is in progress.
func WithTracker(t *stats.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// New creates an Engine backed by the given generator.
func New(gen capability.Generator, opts ...Option) *Engine {
	e := &Engine{
		gen:      gen,
		cfg:      DefaultRunConfig(),
		composer: compose.Join,
		logger:   NopLogger(),
		emitter:  newEventEmitter(256),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.cfg = e.cfg.normalized()
	if e.tracker == nil {
		e.tracker = stats.NewTracker()
	}
	if e.screener == nil {
		e.screener = screen.Chain{
			screen.NewStructural(0),
			screen.NewCapability(e.gen),
		}
	}
	return e
}

// Events returns the channel of run events for subscribers such as the TUI.
func (e *Engine) Events() <-chan Event {
	return e.emitter.events
}

// Tracker returns the engine's statistics tracker.
func (e *Engine) Tracker() *stats.Tracker {
	return e.tracker
}

// RunResult is the outcome of a single Run.
type RunResult struct {
	// Success is true if the root task composed a final answer.
	Success bool `json:"success"`
	// Answer is the composed root result when Success is true.
	Answer string `json:"answer,omitempty"`
	// Stats is a snapshot of the run's execution counters.
	Stats models.ExecutionStats `json:"stats"`
	// FailureTrace lists the failed nodes with their accumulated reasons.
	FailureTrace []models.FailureEntry `json:"failure_trace,omitempty"`
	// Nodes is the complete task tree, root first.
	Nodes []models.TaskNode `json:"nodes,omitempty"`
	// DroppedEvents counts events lost because the subscriber fell behind.
	DroppedEvents uint64 `json:"dropped_events,omitempty"`
	// StartedAt is when the run began.
	StartedAt time.Time `json:"started_at"`
	// Duration is the total wall-clock time of the run.
	Duration time.Duration `json:"duration"`
}

// Run executes the given task to completion or failure.
// The returned RunResult is always non-nil; the error carries the root
// cause when Success is false.
func (e *Engine) Run(ctx context.Context, task string) (*RunResult, error) {
	started := time.Now()
	e.tracker.Reset()
	droppedBefore := e.emitter.Dropped()

	decomposer := decompose.New(e.gen, e.tracker, e.cfg.MaxDecompositionDepth)
	voter := voting.NewExecutor(e.gen, e.screener, e.tracker, e.cfg.votingConfig())

	a := newArena()
	root := a.newNode("", task, 0)

	e.logger.Log("run started: %s", task)
	e.emitter.emit(Event{Type: EventRunStarted, NodeID: root.ID, Description: task})

	run := &runState{
		engine:     e,
		arena:      a,
		decomposer: decomposer,
		voter:      voter,
	}

	// The root is retried exactly like any child node, so a failing
	// atomic root still gets the full retry budget and a recorded reason.
	answer, err := run.resolveWithRetry(ctx, root.ID)

	result := &RunResult{
		Success:   err == nil,
		Answer:    answer,
		Stats:     e.tracker.Snapshot(),
		StartedAt: started,
		Duration:  time.Since(started),
	}

	if err != nil {
		if node := a.get(root.ID); node != nil && !node.State.Terminal() {
			if node.FailureReason == "" {
				node.FailureReason = err.Error()
			}
			a.setState(root.ID, models.NodeStateFailed)
		}
		result.FailureTrace = run.failureTrace()
		e.logger.Log("run failed: %v", err)
	} else {
		e.logger.Log("run done: %s", truncate(answer, 120))
	}
	result.Nodes = a.snapshot()

	e.emitter.emit(Event{Type: EventRunDone, NodeID: root.ID, Error: err})
	result.DroppedEvents = e.emitter.Dropped() - droppedBefore
	return result, err
}

// Close releases the engine's event channel. Call after the final Run.
func (e *Engine) Close() {
	e.emitter.close()
}

// runState carries the per-run collaborators so a run never sees a
// previous run's tree or voters.
type runState struct {
	engine     *Engine
	arena      *arena
	decomposer *decompose.Decomposer
	voter      *voting.Executor
}

// resolve processes one node to a composed result.
// For atomic nodes this is a voting round; for composite nodes it is a
// strict in-order resolution of every child followed by composition.
func (r *runState) resolve(ctx context.Context, nodeID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e := r.engine
	a := r.arena
	node := a.get(nodeID)
	path := a.path(nodeID)

	a.setState(nodeID, models.NodeStateDecomposing)
	e.emitter.emit(Event{Type: EventNodeDecomposing, NodeID: nodeID, NodePath: path, Description: node.Description})

	dec, err := r.decomposer.Decompose(ctx, node.Description, node.Depth)
	if err != nil {
		a.setState(nodeID, models.NodeStateDecompositionFailed)
		return "", fmt.Errorf("decompose %s: %w", path, err)
	}

	if dec.Atomic {
		return r.executeAtomic(ctx, nodeID, path)
	}

	a.resetChildren(nodeID)
	a.setState(nodeID, models.NodeStateDecomposed)
	e.logger.Log("node %s decomposed into %d subtasks", path, len(dec.Subtasks))
	e.emitter.emit(Event{
		Type: EventNodeDecomposed, NodeID: nodeID, NodePath: path,
		Description: node.Description,
		Message:     fmt.Sprintf("%d subtasks", len(dec.Subtasks)),
	})

	children := make([]string, 0, len(dec.Subtasks))
	for _, sub := range dec.Subtasks {
		child := a.newNode(nodeID, sub, node.Depth+1)
		children = append(children, child.ID)
	}

	// Children run strictly in order; a child never starts before its
	// left sibling reaches a terminal state.
	results := make([]string, 0, len(children))
	for _, childID := range children {
		if err := r.checkSignals(ctx); err != nil {
			return "", err
		}
		result, err := r.resolveWithRetry(ctx, childID)
		if err != nil {
			return "", err
		}
		results = append(results, result)
	}

	composed := e.composer(node.Description, results)
	a.setResult(nodeID, composed)
	a.setState(nodeID, models.NodeStateComposed)
	e.emitter.emit(Event{Type: EventNodeComposed, NodeID: nodeID, NodePath: path, Description: node.Description})
	return composed, nil
}

// resolveWithRetry runs resolve on a child up to MaxSubtaskRetries extra
// times, accumulating the failure reason of each attempt on the node.
func (r *runState) resolveWithRetry(ctx context.Context, nodeID string) (string, error) {
	e := r.engine
	a := r.arena
	node := a.get(nodeID)
	path := a.path(nodeID)

	maxAttempts := e.cfg.MaxSubtaskRetries + 1
	reasons := make([]string, 0, maxAttempts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := r.resolve(ctx, nodeID)
		if err == nil {
			return result, nil
		}

		// Context cancellation and stop signals are not retryable.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStopped) {
			return "", err
		}

		reasons = append(reasons, err.Error())
		a.recordAttemptFailure(nodeID, attempt, err.Error())
		e.tracker.RecordFailure()
		e.logger.Log("node %s attempt %d/%d failed: %v", path, attempt, maxAttempts, err)

		if attempt < maxAttempts {
			e.emitter.emit(Event{
				Type: EventNodeRetrying, NodeID: nodeID, NodePath: path,
				Description: node.Description,
				Message:     fmt.Sprintf("attempt %d/%d", attempt+1, maxAttempts),
				Error:       err,
			})
		}
	}

	a.setState(nodeID, models.NodeStateFailed)
	retryErr := &RetryExhaustedError{
		Description: node.Description,
		Attempts:    maxAttempts,
		Reasons:     reasons,
	}
	e.emitter.emit(Event{
		Type: EventNodeFailed, NodeID: nodeID, NodePath: path,
		Description: node.Description, Error: retryErr,
	})
	return "", retryErr
}

// executeAtomic runs the voting round for a leaf node. A leaf's composed
// result is its own consensus winner.
func (r *runState) executeAtomic(ctx context.Context, nodeID, path string) (string, error) {
	e := r.engine
	a := r.arena
	node := a.get(nodeID)

	a.setState(nodeID, models.NodeStateExecuting)
	e.emitter.emit(Event{Type: EventNodeExecuting, NodeID: nodeID, NodePath: path, Description: node.Description})

	res, err := r.voter.ExecuteAtomic(ctx, node.Description, e.cfg.VotingK)
	if err != nil {
		a.setState(nodeID, models.NodeStateExecutionFailed)
		return "", fmt.Errorf("execute %s: %w", path, err)
	}

	a.setResult(nodeID, res.Winner)
	a.setState(nodeID, models.NodeStateVoted)
	a.setState(nodeID, models.NodeStateComposed)
	e.logger.Log("node %s voted: %d/%d valid votes, %d escalations",
		path, res.AgreeVotes, res.ValidVotes, res.Escalations)
	e.emitter.emit(Event{
		Type: EventNodeVoted, NodeID: nodeID, NodePath: path,
		Description: node.Description,
		Votes:       res.ValidVotes,
		Escalations: res.Escalations,
	})
	return res.Winner, nil
}

// checkSignals handles stop/pause signals between sibling subtasks.
func (r *runState) checkSignals(ctx context.Context) error {
	if r.engine.signals == nil {
		return nil
	}
	r.engine.signals.WaitWhilePaused(pauseCheckInterval)
	if r.engine.signals.ShouldStop() {
		return ErrStopped
	}
	return ctx.Err()
}

// failureTrace collects every failed node with its accumulated reason,
// root-first, so a reader can follow the path to the failing leaf.
func (r *runState) failureTrace() []models.FailureEntry {
	var trace []models.FailureEntry
	for _, node := range r.arena.snapshot() {
		if node.State != models.NodeStateFailed {
			continue
		}
		trace = append(trace, models.FailureEntry{
			NodePath: r.arena.path(node.ID),
			Reason:   node.FailureReason,
		})
	}
	return trace
}
