package voting

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/ShayCichocki/quorum/internal/capability"
	"github.com/ShayCichocki/quorum/internal/screen"
	"github.com/ShayCichocki/quorum/internal/stats"
	"github.com/ShayCichocki/quorum/pkg/models"
)

// mockGen returns scripted responses by call number. Call numbers are
// assigned under a lock so each concurrent vote gets a distinct script entry
// regardless of completion order.
type mockGen struct {
	mu       sync.Mutex
	perCall  []string     // response for call n is perCall[n-1]; past the end, fallback
	fallback string       // used when perCall is exhausted
	timeouts map[int]bool // call numbers that time out
	calls    int
}

func (g *mockGen) Generate(_ context.Context, req capability.Request) (*capability.Response, error) {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()

	if g.timeouts[n] {
		return nil, &capability.Error{Kind: capability.ErrKindTimeout, Message: "deadline exceeded"}
	}

	text := g.fallback
	if n-1 < len(g.perCall) {
		text = g.perCall[n-1]
	}
	return &capability.Response{Text: text}, nil
}

func (g *mockGen) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func TestExecuteAtomic_ConsensusCorrectness(t *testing.T) {
	// k=5, 4 agreeing unflagged candidates: that value wins with no
	// escalation and exactly 5 votes cast.
	gen := &mockGen{perCall: []string{"OK", "OK", "OK", "wrong", "OK"}}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, nil, tracker, Config{})

	result, err := ex.ExecuteAtomic(context.Background(), "do the thing", 5)
	if err != nil {
		t.Fatalf("ExecuteAtomic() error = %v", err)
	}

	if !result.Agreed || result.Winner != "OK" {
		t.Errorf("result = %+v, want agreed winner OK", result)
	}
	if result.AgreeVotes != 4 || result.ValidVotes != 5 {
		t.Errorf("votes = %d/%d, want 4/5", result.AgreeVotes, result.ValidVotes)
	}
	if result.Escalations != 0 {
		t.Errorf("Escalations = %d, want 0", result.Escalations)
	}

	snap := tracker.Snapshot()
	if snap.VotesCast != 5 {
		t.Errorf("VotesCast = %d, want 5", snap.VotesCast)
	}
	if snap.Escalations != 0 {
		t.Errorf("stats Escalations = %d, want 0", snap.Escalations)
	}
	if snap.AtomicExecutions != 1 {
		t.Errorf("AtomicExecutions = %d, want 1", snap.AtomicExecutions)
	}
}

func TestExecuteAtomic_EscalatesOnDisagreement(t *testing.T) {
	// Three distinct candidates cannot reach a strict majority; the executor
	// must escalate rather than pick one.
	gen := &mockGen{perCall: []string{"A", "B", "C"}, fallback: "D"}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, nil, tracker, Config{Threshold: 0.51})

	result, err := ex.ExecuteAtomic(context.Background(), "disputed step", 3)
	if err != nil {
		t.Fatalf("ExecuteAtomic() error = %v", err)
	}

	if result.Winner != "D" {
		t.Errorf("Winner = %q, want %q from the escalated round", result.Winner, "D")
	}
	if result.Escalations != 1 {
		t.Errorf("Escalations = %d, want 1", result.Escalations)
	}
	if got := tracker.Snapshot().Escalations; got != 1 {
		t.Errorf("stats Escalations = %d, want 1", got)
	}
}

func TestExecuteAtomic_ThresholdAbovePlainMajority(t *testing.T) {
	// A 2-1 split is a plain majority but not 70%; the executor must
	// escalate instead of accepting it.
	gen := &mockGen{perCall: []string{"X", "X", "Y"}, fallback: "X"}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, nil, tracker, Config{Threshold: 0.7})

	result, err := ex.ExecuteAtomic(context.Background(), "strict step", 3)
	if err != nil {
		t.Fatalf("ExecuteAtomic() error = %v", err)
	}
	if result.Escalations != 1 {
		t.Errorf("Escalations = %d, want 1 (2-1 split below 0.7 threshold)", result.Escalations)
	}
	if result.Winner != "X" {
		t.Errorf("Winner = %q, want %q", result.Winner, "X")
	}
}

func TestConfigThresholdMustExceedHalf(t *testing.T) {
	// At or below one half a tied split could "win", and the winner would
	// be whichever group completed first.
	for _, th := range []float64{0, 0.25, 0.5} {
		if got := (Config{Threshold: th}).normalized().Threshold; got != DefaultThreshold {
			t.Errorf("Threshold %v normalized to %v, want %v", th, got, DefaultThreshold)
		}
	}
	if got := (Config{Threshold: 0.75}).normalized().Threshold; got != 0.75 {
		t.Errorf("Threshold 0.75 normalized to %v, want unchanged", got)
	}
}

func TestExecuteAtomic_TiedSplitEscalates(t *testing.T) {
	// An operator threshold of exactly 0.5 is coerced upward, so a 2-2
	// split escalates instead of handing the win to the faster group.
	gen := &mockGen{perCall: []string{"L", "L", "R", "R"}, fallback: "L"}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, nil, tracker, Config{Threshold: 0.5, MaxEscalationK: 8})

	result, err := ex.ExecuteAtomic(context.Background(), "split step", 4)
	if err != nil {
		t.Fatalf("ExecuteAtomic() error = %v", err)
	}
	if result.Escalations != 1 {
		t.Errorf("Escalations = %d, want 1 (tie must not win)", result.Escalations)
	}
	if result.Winner != "L" {
		t.Errorf("Winner = %q, want %q from the escalated round", result.Winner, "L")
	}
}

// flagFirstN flags the first n candidates it screens, regardless of text.
type flagFirstN struct {
	n       int32
	counter atomic.Int32
}

func (f *flagFirstN) Screen(_ context.Context, _ string, _ string) (screen.Verdict, error) {
	if f.counter.Add(1) <= f.n {
		return screen.Flag("suspicious"), nil
	}
	return screen.Pass(), nil
}

func TestExecuteAtomic_FlaggedCandidateExcluded(t *testing.T) {
	// The flagged candidate is textually identical to the winner but must
	// not count toward the tally.
	gen := &mockGen{fallback: "OK"}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, &flagFirstN{n: 1}, tracker, Config{})

	result, err := ex.ExecuteAtomic(context.Background(), "screened step", 5)
	if err != nil {
		t.Fatalf("ExecuteAtomic() error = %v", err)
	}

	if result.Winner != "OK" || !result.Agreed {
		t.Fatalf("result = %+v, want agreed winner OK", result)
	}
	if result.ValidVotes != 4 || result.AgreeVotes != 4 {
		t.Errorf("votes = %d/%d, want 4/4 (flagged vote excluded)", result.AgreeVotes, result.ValidVotes)
	}

	snap := tracker.Snapshot()
	if snap.RedFlagsDetected != 1 {
		t.Errorf("RedFlagsDetected = %d, want 1", snap.RedFlagsDetected)
	}
	if snap.VotesCast != 5 {
		t.Errorf("VotesCast = %d, want 5 (flagged candidates still count as cast)", snap.VotesCast)
	}
}

func TestExecuteAtomic_TimeoutReplaced(t *testing.T) {
	// One of five requests times out; a replacement keeps the effective k at
	// five valid attempts.
	gen := &mockGen{fallback: "OK", timeouts: map[int]bool{1: true}}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, nil, tracker, Config{})

	result, err := ex.ExecuteAtomic(context.Background(), "flaky step", 5)
	if err != nil {
		t.Fatalf("ExecuteAtomic() error = %v", err)
	}

	if result.ValidVotes != 5 {
		t.Errorf("ValidVotes = %d, want 5", result.ValidVotes)
	}
	if got := tracker.Snapshot().VotesCast; got != 5 {
		t.Errorf("VotesCast = %d, want exactly 5 completed attempts", got)
	}
	if gen.callCount() != 6 {
		t.Errorf("generator calls = %d, want 6 (5 + 1 replacement)", gen.callCount())
	}
}

func TestExecuteAtomic_NoConsensusAtMaxK(t *testing.T) {
	gen := &mockGen{}
	// Every call returns a unique answer; consensus is impossible.
	for i := 0; i < 32; i++ {
		gen.perCall = append(gen.perCall, fmt.Sprintf("answer-%d", i))
	}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, nil, tracker, Config{MaxEscalationK: 6})

	_, err := ex.ExecuteAtomic(context.Background(), "unanswerable", 3)

	var ncErr *NoConsensusError
	if !errors.As(err, &ncErr) {
		t.Fatalf("error = %v, want *NoConsensusError", err)
	}
	if ncErr.ValidVotes != 6 {
		t.Errorf("final round ValidVotes = %d, want 6", ncErr.ValidVotes)
	}
	if ncErr.BestVotes != 1 {
		t.Errorf("BestVotes = %d, want 1", ncErr.BestVotes)
	}
	if ncErr.Best == "" {
		t.Error("NoConsensusError must carry the best-supported candidate")
	}
	if ncErr.Escalations != 1 {
		t.Errorf("Escalations = %d, want 1 (k: 3 -> 6)", ncErr.Escalations)
	}
}

// flagAll flags every candidate.
type flagAll struct{}

func (flagAll) Screen(context.Context, string, string) (screen.Verdict, error) {
	return screen.Flag("always"), nil
}

func TestExecuteAtomic_RedFlagExhaustion(t *testing.T) {
	gen := &mockGen{fallback: "OK"}
	tracker := stats.NewTracker()
	ex := NewExecutor(gen, flagAll{}, tracker, Config{MaxEscalationK: 8})

	_, err := ex.ExecuteAtomic(context.Background(), "unscreenable", 2)

	var rfErr *RedFlagExhaustionError
	if !errors.As(err, &rfErr) {
		t.Fatalf("error = %v, want *RedFlagExhaustionError", err)
	}
	if rfErr.Flagged == 0 {
		t.Error("RedFlagExhaustionError must report flagged count")
	}

	snap := tracker.Snapshot()
	if snap.RedFlagsDetected != int64(rfErr.Flagged) {
		t.Errorf("RedFlagsDetected = %d, want %d", snap.RedFlagsDetected, rfErr.Flagged)
	}
}

func TestExecuteAtomic_GeneratorFailureIsFatal(t *testing.T) {
	gen := &failingGen{}
	ex := NewExecutor(gen, nil, stats.NewTracker(), Config{})

	if _, err := ex.ExecuteAtomic(context.Background(), "step", 3); err == nil {
		t.Fatal("expected error from unavailable capability")
	}
}

type failingGen struct{}

func (failingGen) Generate(context.Context, capability.Request) (*capability.Response, error) {
	return nil, &capability.Error{Kind: capability.ErrKindUnavailable, Message: "api down"}
}

func TestTally(t *testing.T) {
	valid := candidates("a", "b", "a", "c", "a")
	winner, count := tally(valid)
	if winner != "a" || count != 3 {
		t.Errorf("tally() = (%q, %d), want (a, 3)", winner, count)
	}
}

func TestTally_CommutativeGroupSizes(t *testing.T) {
	// The winning group's size must not depend on candidate arrival order.
	a := candidates("x", "y", "x", "x", "y")
	b := candidates("y", "x", "y", "x", "x")

	_, countA := tally(a)
	_, countB := tally(b)
	if countA != countB {
		t.Errorf("tally sizes differ across orderings: %d vs %d", countA, countB)
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"trims whitespace", "  hello  ", "hello"},
		{"collapses runs", "a   b\t\nc", "a b c"},
		{"strips code fence", "```\nresult\n```", "result"},
		{"strips fence with language", "```json\n{\"a\":1}\n```", "{\"a\":1}"},
		{"strips quotes", `"answer"`, "answer"},
		{"preserves case", "Hello World", "Hello World"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Canonicalize(tt.in); got != tt.want {
				t.Errorf("Canonicalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func candidates(texts ...string) []models.Candidate {
	out := make([]models.Candidate, len(texts))
	for i, text := range texts {
		out[i] = models.Candidate{Text: text, Canonical: Canonicalize(text)}
	}
	return out
}
