package models

import "time"

// NodeState represents the current state of a task node.
type NodeState string

const (
	// NodeStatePending indicates the node has not started processing.
	NodeStatePending NodeState = "pending"
	// NodeStateDecomposing indicates a decomposition query is in flight.
	NodeStateDecomposing NodeState = "decomposing"
	// NodeStateDecomposed indicates the node was split into ordered children.
	NodeStateDecomposed NodeState = "decomposed"
	// NodeStateDecompositionFailed indicates the decomposition query failed.
	NodeStateDecompositionFailed NodeState = "decomposition_failed"
	// NodeStateExecuting indicates a voting round is in flight for an atomic node.
	NodeStateExecuting NodeState = "executing"
	// NodeStateVoted indicates voting reached consensus on a result.
	NodeStateVoted NodeState = "voted"
	// NodeStateExecutionFailed indicates voting exhausted escalation without consensus.
	NodeStateExecutionFailed NodeState = "execution_failed"
	// NodeStateComposed indicates the node has a final composed result.
	NodeStateComposed NodeState = "composed"
	// NodeStateFailed indicates the node failed after exhausting retries.
	NodeStateFailed NodeState = "failed"
)

// Valid returns true if the state is a known value.
func (s NodeState) Valid() bool {
	switch s {
	case NodeStatePending, NodeStateDecomposing, NodeStateDecomposed,
		NodeStateDecompositionFailed, NodeStateExecuting, NodeStateVoted,
		NodeStateExecutionFailed, NodeStateComposed, NodeStateFailed:
		return true
	default:
		return false
	}
}

// Terminal returns true if no further transitions are allowed from this state.
func (s NodeState) Terminal() bool {
	return s == NodeStateComposed || s == NodeStateFailed
}

// TaskNode is one node in the recursive task tree. Nodes are addressed by
// opaque IDs; parent and child relationships are ID references rather than
// native pointers so completed subtrees can be read safely while the run
// continues elsewhere.
type TaskNode struct {
	// ID is the unique identifier for this node.
	ID string `json:"id"`
	// ParentID is the ID of the parent node, empty for the root.
	// Used only to route composed results upward, never for ownership.
	ParentID string `json:"parent_id,omitempty"`
	// Description is the task text this node is responsible for.
	Description string `json:"description"`
	// Depth is the decomposition depth, 0 for the root.
	Depth int `json:"depth"`
	// State is the current state of the node.
	State NodeState `json:"state"`
	// ChildIDs lists the node's children in execution order.
	// The ordering is immutable once the children are created.
	ChildIDs []string `json:"child_ids,omitempty"`
	// Result holds the composed result once State is Composed.
	Result string `json:"result,omitempty"`
	// FailureReason accumulates the failure chain if the node failed.
	FailureReason string `json:"failure_reason,omitempty"`
	// Retries counts the failed attempts recorded against this node.
	Retries int `json:"retries,omitempty"`
	// CreatedAt is when the node was created.
	CreatedAt time.Time `json:"created_at"`
	// CompletedAt is when the node reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// FailureEntry identifies one failed node in a run's failure trace.
type FailureEntry struct {
	// NodePath is the slash-separated path from the root to the failed node,
	// using child indexes (e.g. "root/1/0").
	NodePath string `json:"node_path"`
	// Reason is the accumulated failure reason for that node.
	Reason string `json:"reason"`
}
