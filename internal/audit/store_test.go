package audit

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ShayCichocki/quorum/pkg/models"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSaveAndGetRun(t *testing.T) {
	db := openTestDB(t)

	started := time.Now().Add(-time.Minute)
	completed := started.Add(30 * time.Second)
	rec := RunRecord{
		Task:    "summarize the report",
		Success: true,
		Answer:  "done",
		Stats: models.ExecutionStats{
			Decompositions:   1,
			AtomicExecutions: 2,
			VotesCast:        6,
		},
		StartedAt: started,
		Duration:  45 * time.Second,
		Nodes: []models.TaskNode{
			{
				ID:          "n1",
				Description: "summarize the report",
				State:       models.NodeStateComposed,
				Result:      "done",
				CreatedAt:   started,
				CompletedAt: &completed,
			},
			{
				ID:          "n2",
				ParentID:    "n1",
				Description: "read the report",
				Depth:       1,
				State:       models.NodeStateComposed,
				Result:      "read",
				CreatedAt:   started.Add(time.Second),
			},
		},
	}

	id, err := db.SaveRun(rec)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected assigned run ID")
	}

	got, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Task != rec.Task || !got.Success || got.Answer != "done" {
		t.Errorf("got %q/%v/%q", got.Task, got.Success, got.Answer)
	}
	if got.Stats.VotesCast != 6 {
		t.Errorf("VotesCast = %d, want 6", got.Stats.VotesCast)
	}
	if got.Duration != 45*time.Second {
		t.Errorf("Duration = %v, want 45s", got.Duration)
	}
	if len(got.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(got.Nodes))
	}
	if got.Nodes[0].ID != "n1" || got.Nodes[0].CompletedAt == nil {
		t.Errorf("root node = %+v", got.Nodes[0])
	}
	if got.Nodes[1].ParentID != "n1" || got.Nodes[1].CompletedAt != nil {
		t.Errorf("child node = %+v", got.Nodes[1])
	}
}

func TestSaveRunWithFailureTrace(t *testing.T) {
	db := openTestDB(t)

	rec := RunRecord{
		Task: "doomed task",
		FailureTrace: []models.FailureEntry{
			{NodePath: "root/1", Reason: "attempt 1: backend down"},
		},
		StartedAt: time.Now(),
	}

	id, err := db.SaveRun(rec)
	if err != nil {
		t.Fatalf("SaveRun failed: %v", err)
	}

	got, err := db.GetRun(id)
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Success {
		t.Error("expected failed run")
	}
	if len(got.FailureTrace) != 1 || got.FailureTrace[0].NodePath != "root/1" {
		t.Errorf("FailureTrace = %+v", got.FailureTrace)
	}
}

func TestListRuns(t *testing.T) {
	db := openTestDB(t)

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		_, err := db.SaveRun(RunRecord{
			Task:      "task",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("SaveRun failed: %v", err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].StartedAt.Before(runs[1].StartedAt) {
		t.Error("runs not in newest-first order")
	}
}

func TestGetRunNotFound(t *testing.T) {
	db := openTestDB(t)
	if _, err := db.GetRun("missing"); err == nil {
		t.Fatal("expected error for missing run")
	}
}
