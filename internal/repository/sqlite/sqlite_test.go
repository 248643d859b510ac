package sqlite

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"roadwatch/internal/model"
)

// ========================================
// Test Setup Helpers
// ========================================

func setupTestDB(t *testing.T) (*DB, func()) {
	t.Helper()

	tempDir, err := os.MkdirTemp("", "runs_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	cleanup := func() {
		db.Close()
		os.RemoveAll(tempDir)
	}

	return db, cleanup
}

func insertRun(t *testing.T, repo *RunRepository, task model.Task, source model.SourceKind, started time.Time) *model.Run {
	t.Helper()

	run := &model.Run{
		SessionID: "session-1",
		Task:      task,
		Source:    source,
		Input:     "input.jpg",
		Status:    model.RunRunning,
		StartedAt: started,
	}
	if _, err := repo.Insert(run); err != nil {
		t.Fatalf("Failed to insert run: %v", err)
	}
	return run
}

// ========================================
// Database Tests
// ========================================

func TestDatabase_CreatesParentDirectory(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "db_dir_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "nested", "data", "runs.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}
}

func TestDatabase_MigrationIsIdempotent(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := db.migrate(); err != nil {
		t.Fatalf("Second migration failed: %v", err)
	}
}

// ========================================
// Run Repository Tests
// ========================================

func TestRunRepository_InsertAndGetByID(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository(db)
	started := time.Now().Truncate(time.Second)
	run := insertRun(t, repo, model.TaskTrafficSign, model.SourceImage, started)

	if run.ID == 0 {
		t.Fatal("Insert should set the run ID")
	}

	got, err := repo.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got == nil {
		t.Fatal("Expected run, got nil")
	}
	if got.Task != model.TaskTrafficSign || got.Source != model.SourceImage {
		t.Errorf("Unexpected task/source: %q/%q", got.Task, got.Source)
	}
	if got.Status != model.RunRunning {
		t.Errorf("Expected status running, got %q", got.Status)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("Expected started %v, got %v", started, got.StartedAt)
	}
	if !got.FinishedAt.IsZero() {
		t.Errorf("Unfinished run should have zero FinishedAt, got %v", got.FinishedAt)
	}
}

func TestRunRepository_GetByID_NotFound(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	got, err := NewRunRepository(db).GetByID(42)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got != nil {
		t.Errorf("Expected nil for missing run, got %+v", got)
	}
}

func TestRunRepository_Finish(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository(db)
	run := insertRun(t, repo, model.TaskDrowsiness, model.SourceWebcam, time.Now())

	run.Status = model.RunFailed
	run.Error = "capture closed"
	run.Frames = 12
	run.FinishedAt = time.Now()
	if err := repo.Finish(run); err != nil {
		t.Fatalf("Finish failed: %v", err)
	}

	got, err := repo.GetByID(run.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Status != model.RunFailed || got.Error != "capture closed" || got.Frames != 12 {
		t.Errorf("Unexpected finished run: %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt should be set")
	}
}

func TestRunRepository_Finish_Missing(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	err := NewRunRepository(db).Finish(&model.Run{ID: 99, Status: model.RunFinished, FinishedAt: time.Now()})
	if err == nil {
		t.Error("Expected error when finishing a missing run")
	}
}

func TestRunRepository_GetAll_Filters(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	runRepo := NewRunRepository(db)
	objectRepo := NewObjectRepository(db)
	base := time.Now().Add(-time.Hour)

	first := insertRun(t, runRepo, model.TaskTrafficSign, model.SourceImage, base)
	second := insertRun(t, runRepo, model.TaskTrafficSign, model.SourceVideo, base.Add(time.Minute))
	third := insertRun(t, runRepo, model.TaskDrowsiness, model.SourceWebcam, base.Add(2*time.Minute))

	err := objectRepo.InsertBatch([]model.RunObject{
		{RunID: first.ID, ObjectName: "stop", Count: 1, BestConfidence: 0.9},
		{RunID: second.ID, ObjectName: "stop", Count: 4, BestConfidence: 0.8},
		{RunID: second.ID, ObjectName: "yield", Count: 2, BestConfidence: 0.7},
	})
	if err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	tests := []struct {
		name   string
		filter *model.RunFilter
		want   []int64
	}{
		{"no filter", nil, []int64{third.ID, second.ID, first.ID}},
		{"by task", &model.RunFilter{Task: string(model.TaskTrafficSign)}, []int64{second.ID, first.ID}},
		{"by source", &model.RunFilter{Source: string(model.SourceWebcam)}, []int64{third.ID}},
		{"by object", &model.RunFilter{Object: "stop"}, []int64{second.ID, first.ID}},
		{"object and source", &model.RunFilter{Object: "stop", Source: string(model.SourceImage)}, []int64{first.ID}},
		{"limit", &model.RunFilter{Limit: 2}, []int64{third.ID, second.ID}},
		{"offset", &model.RunFilter{Limit: 2, Offset: 2}, []int64{first.ID}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs, err := runRepo.GetAll(tt.filter)
			if err != nil {
				t.Fatalf("GetAll failed: %v", err)
			}
			if len(runs) != len(tt.want) {
				t.Fatalf("Expected %d runs, got %d", len(tt.want), len(runs))
			}
			for i, id := range tt.want {
				if runs[i].ID != id {
					t.Errorf("Run %d: expected ID %d, got %d", i, id, runs[i].ID)
				}
			}
		})
	}

	count, err := runRepo.GetTotalCount(&model.RunFilter{Object: "stop"})
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 runs with stop, got %d", count)
	}
}

func TestRunRepository_DeleteAll(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	runRepo := NewRunRepository(db)
	objectRepo := NewObjectRepository(db)
	run := insertRun(t, runRepo, model.TaskTrafficSign, model.SourceImage, time.Now())
	if err := objectRepo.InsertBatch([]model.RunObject{{RunID: run.ID, ObjectName: "stop", Count: 1}}); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	if err := runRepo.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}

	count, err := runRepo.GetTotalCount(nil)
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 runs, got %d", count)
	}
	names, err := objectRepo.GetAllObjectNames()
	if err != nil {
		t.Fatalf("GetAllObjectNames failed: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("Expected no object names, got %v", names)
	}
}

func TestRunRepository_ConcurrentInsert(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRunRepository(db)

	done := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		go func(idx int) {
			run := &model.Run{
				SessionID: "concurrent",
				Task:      model.TaskTrafficSign,
				Source:    model.SourceImage,
				Input:     "img_" + string(rune('a'+idx)) + ".jpg",
				Status:    model.RunFinished,
				StartedAt: time.Now(),
			}
			if _, err := repo.Insert(run); err != nil {
				t.Errorf("Concurrent insert %d failed: %v", idx, err)
			}
			done <- true
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	count, err := repo.GetTotalCount(nil)
	if err != nil {
		t.Fatalf("GetTotalCount failed: %v", err)
	}
	if count != 10 {
		t.Errorf("Expected 10 runs, got %d", count)
	}
}

// ========================================
// Object Repository Tests
// ========================================

func TestObjectRepository_InsertBatchAndRead(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	runRepo := NewRunRepository(db)
	objectRepo := NewObjectRepository(db)
	run := insertRun(t, runRepo, model.TaskTrafficSign, model.SourceVideo, time.Now())

	tally := model.Tally{}
	tally.Add([]model.Detection{
		{Label: "yield", Confidence: 0.6},
		{Label: "stop", Confidence: 0.5},
		{Label: "stop", Confidence: 0.9},
	})
	if err := objectRepo.InsertBatch(tally.Objects(run.ID)); err != nil {
		t.Fatalf("InsertBatch failed: %v", err)
	}

	objects, err := objectRepo.GetByRunID(run.ID)
	if err != nil {
		t.Fatalf("GetByRunID failed: %v", err)
	}
	if len(objects) != 2 {
		t.Fatalf("Expected 2 objects, got %d", len(objects))
	}
	if objects[0].ObjectName != "stop" || objects[0].Count != 2 || objects[0].BestConfidence != 0.9 {
		t.Errorf("Unexpected stop row: %+v", objects[0])
	}
	if objects[1].ObjectName != "yield" || objects[1].Count != 1 {
		t.Errorf("Unexpected yield row: %+v", objects[1])
	}

	names, err := objectRepo.GetAllObjectNames()
	if err != nil {
		t.Fatalf("GetAllObjectNames failed: %v", err)
	}
	if len(names) != 2 || names[0] != "stop" || names[1] != "yield" {
		t.Errorf("Unexpected names: %v", names)
	}
}

func TestObjectRepository_InsertBatch_Empty(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	if err := NewObjectRepository(db).InsertBatch(nil); err != nil {
		t.Errorf("Empty batch should be a no-op, got %v", err)
	}
}
