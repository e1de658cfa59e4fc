package audit

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ShayCichocki/quorum/pkg/models"
)

// RunRecord is one persisted run with its statistics and node tree.
type RunRecord struct {
	// ID is the unique identifier for this run.
	ID string
	// Task is the root task text.
	Task string
	// Success is true if the run composed a final answer.
	Success bool
	// Answer is the composed result when Success is true.
	Answer string
	// Stats holds the run's execution counters.
	Stats models.ExecutionStats
	// FailureTrace lists the failed nodes with their reasons.
	FailureTrace []models.FailureEntry
	// StartedAt is when the run began.
	StartedAt time.Time
	// Duration is the run's wall-clock time.
	Duration time.Duration
	// Nodes is the complete task tree, root first.
	Nodes []models.TaskNode
}

// RunSummary is the listing view of a persisted run.
type RunSummary struct {
	ID        string
	Task      string
	Success   bool
	VotesCast int64
	StartedAt time.Time
	Duration  time.Duration
}

// SaveRun persists a run and its node tree in one transaction.
// If the record has no ID, one is assigned and returned.
func (db *DB) SaveRun(rec RunRecord) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	traceJSON, err := json.Marshal(rec.FailureTrace)
	if err != nil {
		return "", fmt.Errorf("marshal failure trace: %w", err)
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return "", fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (id, task, success, answer, decompositions, atomic_executions,
			votes_cast, red_flags, escalations, failures, failure_trace, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Task, boolToInt(rec.Success), rec.Answer,
		rec.Stats.Decompositions, rec.Stats.AtomicExecutions,
		rec.Stats.VotesCast, rec.Stats.RedFlagsDetected,
		rec.Stats.Escalations, rec.Stats.Failures,
		string(traceJSON), rec.StartedAt.UTC(), rec.Duration.Milliseconds(),
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, node := range rec.Nodes {
		var completedAt interface{}
		if node.CompletedAt != nil {
			completedAt = node.CompletedAt.UTC()
		}
		_, err = tx.Exec(`
			INSERT INTO nodes (id, run_id, parent_id, description, depth, state,
				result, failure_reason, retries, created_at, completed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			node.ID, rec.ID, node.ParentID, node.Description, node.Depth,
			string(node.State), node.Result, node.FailureReason, node.Retries,
			node.CreatedAt.UTC(), completedAt,
		)
		if err != nil {
			return "", fmt.Errorf("insert node %s: %w", node.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return rec.ID, nil
}

// GetRun loads one run with its node tree.
func (db *DB) GetRun(id string) (*RunRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var rec RunRecord
	var success int
	var traceJSON string
	var durationMS int64

	row := db.conn.QueryRow(`
		SELECT id, task, success, answer, decompositions, atomic_executions,
			votes_cast, red_flags, escalations, failures, failure_trace, started_at, duration_ms
		FROM runs WHERE id = ?`, id)
	err := row.Scan(&rec.ID, &rec.Task, &success, &rec.Answer,
		&rec.Stats.Decompositions, &rec.Stats.AtomicExecutions,
		&rec.Stats.VotesCast, &rec.Stats.RedFlagsDetected,
		&rec.Stats.Escalations, &rec.Stats.Failures,
		&traceJSON, &rec.StartedAt, &durationMS)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	rec.Success = success != 0
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	if traceJSON != "" {
		if err := json.Unmarshal([]byte(traceJSON), &rec.FailureTrace); err != nil {
			return nil, fmt.Errorf("unmarshal failure trace: %w", err)
		}
	}

	rows, err := db.conn.Query(`
		SELECT id, parent_id, description, depth, state, result, failure_reason,
			retries, created_at, completed_at
		FROM nodes WHERE run_id = ? ORDER BY created_at, id`, id)
	if err != nil {
		return nil, fmt.Errorf("load nodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var node models.TaskNode
		var state string
		var completedAt sql.NullTime
		err := rows.Scan(&node.ID, &node.ParentID, &node.Description, &node.Depth,
			&state, &node.Result, &node.FailureReason, &node.Retries,
			&node.CreatedAt, &completedAt)
		if err != nil {
			return nil, fmt.Errorf("scan node: %w", err)
		}
		node.State = models.NodeState(state)
		if completedAt.Valid {
			t := completedAt.Time
			node.CompletedAt = &t
		}
		rec.Nodes = append(rec.Nodes, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nodes: %w", err)
	}

	return &rec, nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]RunSummary, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	rows, err := db.conn.Query(`
		SELECT id, task, success, votes_cast, started_at, duration_ms
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		var success int
		var durationMS int64
		if err := rows.Scan(&s.ID, &s.Task, &success, &s.VotesCast, &s.StartedAt, &durationMS); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		s.Success = success != 0
		s.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, s)
	}
	return out, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
