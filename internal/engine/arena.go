package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// arena owns every task node created during a run.
// Nodes are referenced by ID; parents hold ordered child ID lists.
type arena struct {
	mu    sync.RWMutex
	nodes map[string]*models.TaskNode
	root  string
}

func newArena() *arena {
	return &arena{nodes: make(map[string]*models.TaskNode)}
}

// newNode allocates a node and links it under the given parent.
// An empty parentID makes the node the root.
func (a *arena) newNode(parentID, description string, depth int) *models.TaskNode {
	a.mu.Lock()
	defer a.mu.Unlock()

	node := &models.TaskNode{
		ID:          uuid.New().String(),
		ParentID:    parentID,
		Description: description,
		Depth:       depth,
		State:       models.NodeStatePending,
		CreatedAt:   time.Now(),
	}
	a.nodes[node.ID] = node

	if parentID == "" {
		a.root = node.ID
	} else if parent, ok := a.nodes[parentID]; ok {
		parent.ChildIDs = append(parent.ChildIDs, node.ID)
	}
	return node
}

// get returns the node with the given ID, or nil.
func (a *arena) get(id string) *models.TaskNode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nodes[id]
}

// setState transitions a node and stamps completion time on terminal states.
func (a *arena) setState(id string, state models.NodeState) {
	a.mu.Lock()
	defer a.mu.Unlock()

	node, ok := a.nodes[id]
	if !ok {
		return
	}
	node.State = state
	if state.Terminal() {
		now := time.Now()
		node.CompletedAt = &now
	}
}

// setResult stores a node's composed result.
func (a *arena) setResult(id, result string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if node, ok := a.nodes[id]; ok {
		node.Result = result
	}
}

// resetChildren unlinks a node's children. Used when a composite node is
// retried and re-decomposed; the stale subtree must not shadow the new one.
func (a *arena) resetChildren(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if node, ok := a.nodes[id]; ok {
		node.ChildIDs = nil
	}
}

// recordAttemptFailure bumps the node's retry counter and appends the
// attempt's reason to its failure chain.
func (a *arena) recordAttemptFailure(id string, attempt int, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	node, ok := a.nodes[id]
	if !ok {
		return
	}
	node.Retries = attempt
	entry := fmt.Sprintf("attempt %d: %s", attempt, reason)
	if node.FailureReason == "" {
		node.FailureReason = entry
	} else {
		node.FailureReason += "; " + entry
	}
}

// path returns the child-index path of a node from the root, e.g. "root/1/0".
func (a *arena) path(id string) string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var indexes []string
	for id != "" {
		node, ok := a.nodes[id]
		if !ok {
			break
		}
		if node.ParentID == "" {
			indexes = append(indexes, "root")
			break
		}
		parent := a.nodes[node.ParentID]
		if parent == nil {
			break
		}
		idx := 0
		for i, childID := range parent.ChildIDs {
			if childID == id {
				idx = i
				break
			}
		}
		indexes = append(indexes, strconv.Itoa(idx))
		id = node.ParentID
	}

	// Reverse into root-first order.
	for i, j := 0, len(indexes)-1; i < j; i, j = i+1, j-1 {
		indexes[i], indexes[j] = indexes[j], indexes[i]
	}
	return strings.Join(indexes, "/")
}

// snapshot returns copies of all nodes, root first, children in creation order.
func (a *arena) snapshot() []models.TaskNode {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.root == "" {
		return nil
	}

	out := make([]models.TaskNode, 0, len(a.nodes))
	var walk func(id string)
	walk = func(id string) {
		node, ok := a.nodes[id]
		if !ok {
			return
		}
		out = append(out, *node)
		for _, childID := range node.ChildIDs {
			walk(childID)
		}
	}
	walk(a.root)
	return out
}
