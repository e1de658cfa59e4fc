package engine

import (
	"log"
	"sync/atomic"
	"time"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventRunStarted indicates a run has started.
	EventRunStarted EventType = "run_started"
	// EventNodeDecomposing indicates a node is being decomposed.
	EventNodeDecomposing EventType = "node_decomposing"
	// EventNodeDecomposed indicates a node was split into subtasks.
	EventNodeDecomposed EventType = "node_decomposed"
	// EventNodeExecuting indicates an atomic node is being voted on.
	EventNodeExecuting EventType = "node_executing"
	// EventNodeVoted indicates an atomic node reached consensus.
	EventNodeVoted EventType = "node_voted"
	// EventNodeComposed indicates a parent combined its children's results.
	EventNodeComposed EventType = "node_composed"
	// EventNodeRetrying indicates a failed subtask is being re-attempted.
	EventNodeRetrying EventType = "node_retrying"
	// EventNodeFailed indicates a node exhausted its retries.
	EventNodeFailed EventType = "node_failed"
	// EventRunDone indicates the run has finished.
	EventRunDone EventType = "run_done"
)

// Event represents an event emitted by the engine during a run.
// These events feed the TUI and progress reporting.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// NodeID is the ID of the related task node, if applicable.
	NodeID string
	// NodePath is the slash-separated path of the node from the root.
	NodePath string
	// Description is the task description of the related node.
	Description string
	// Message provides additional context about the event.
	Message string
	// Error contains error details for failure events.
	Error error
	// Votes is the number of valid votes cast (for voted events).
	Votes int
	// Escalations is the number of vote escalations (for voted events).
	Escalations int
	// Timestamp is when the event occurred.
	Timestamp time.Time
}

// eventEmitter handles event emission for the engine.
// It provides a thread-safe way to emit events to a single subscriber.
type eventEmitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

func newEventEmitter(bufferSize int) *eventEmitter {
	return &eventEmitter{
		events: make(chan Event, bufferSize),
	}
}

// emit sends an event to the events channel.
// If the channel is full, it tries with a timeout before dropping the event.
func (e *eventEmitter) emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	// Give the receiver a short window to drain before dropping.
	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[engine] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// Dropped returns the total number of events dropped so far.
func (e *eventEmitter) Dropped() uint64 {
	return e.droppedCount.Load()
}

func (e *eventEmitter) close() {
	close(e.events)
}
