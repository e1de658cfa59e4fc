package capability

import "sync"

// Rough Sonnet-class pricing in USD per million tokens; the Cost figure is
// an estimate for summaries, not billing.
const (
	inputCostPerMTok  = 3.0
	outputCostPerMTok = 15.0
)

// TokenTracker accumulates token usage over the lifetime of a Client. The
// generator records usage from every response, including votes that are
// later flagged or discarded.
type TokenTracker struct {
	mu        sync.Mutex
	inputTok  int64
	outputTok int64
	calls     int
}

// NewTokenTracker returns a zeroed tracker.
func NewTokenTracker() *TokenTracker {
	return &TokenTracker{}
}

// Add records the token usage of one completed request.
func (t *TokenTracker) Add(input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok += input
	t.outputTok += output
	t.calls++
}

// Total returns the accumulated input and output token counts.
func (t *TokenTracker) Total() (input, output int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputTok, t.outputTok
}

// Calls returns how many requests have been recorded.
func (t *TokenTracker) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Reset clears the accumulated usage.
func (t *TokenTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inputTok = 0
	t.outputTok = 0
	t.calls = 0
}

// Cost estimates the accumulated spend in USD.
func (t *TokenTracker) Cost() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	in := float64(t.inputTok) / 1e6 * inputCostPerMTok
	out := float64(t.outputTok) / 1e6 * outputCostPerMTok
	return in + out
}
