package research

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/zulandar/researchdesk/internal/models"
	"github.com/zulandar/researchdesk/internal/todo"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(&models.Todo{}, &models.ResearchResult{}, &models.ResearchProgress{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedTodo(t *testing.T, db *gorm.DB, title string) *models.Todo {
	t.Helper()
	td, err := todo.Create(db, todo.CreateOpts{Title: title})
	if err != nil {
		t.Fatalf("seed todo: %v", err)
	}
	return td
}

func TestGenerateID(t *testing.T) {
	id, err := GenerateID()
	if err != nil {
		t.Fatalf("GenerateID: %v", err)
	}
	if !strings.HasPrefix(id, "rr-") {
		t.Errorf("ID %q should have rr- prefix", id)
	}
	if len(id) != 15 {
		t.Errorf("ID %q has length %d, want 15", id, len(id))
	}
}

func TestOpenRequest_Defaults(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	p, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: "web"})
	if err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}
	if p.Stage != models.StageSearching {
		t.Errorf("stage = %q, want searching", p.Stage)
	}
	if p.ProgressPercentage != 0 {
		t.Errorf("percentage = %v, want 0", p.ProgressPercentage)
	}
	if p.CurrentStep != "Initializing research" {
		t.Errorf("current_step = %q", p.CurrentStep)
	}
	if p.EstimatedRemaining == nil || *p.EstimatedRemaining != DefaultEstimatedSeconds {
		t.Errorf("estimated_remaining = %v, want %d", p.EstimatedRemaining, DefaultEstimatedSeconds)
	}
}

func TestOpenRequest_UpsertResets(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: "web"}); err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}

	advanced := &models.ResearchProgress{
		TodoID: td.ID, Service: "web",
		Stage: models.StageAnalyzing, ProgressPercentage: 60, CurrentStep: "Reading sources",
	}
	if err := UpdateProgress(db, advanced); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	// Reopening the same pair resets the attempt rather than adding a row.
	if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: "web"}); err != nil {
		t.Fatalf("reopen: %v", err)
	}

	var rows int64
	db.Model(&models.ResearchProgress{}).Where("todo_id = ?", td.ID).Count(&rows)
	if rows != 1 {
		t.Fatalf("progress rows = %d, want 1", rows)
	}
	p, err := Progress(db, td.ID, "web")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Stage != models.StageSearching || p.ProgressPercentage != 0 {
		t.Errorf("reopen did not reset: stage=%q pct=%v", p.Stage, p.ProgressPercentage)
	}
}

func TestOpenRequest_TwoServicesCoexist(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	for _, svc := range []string{"web", "academic"} {
		if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: svc}); err != nil {
			t.Fatalf("OpenRequest %s: %v", svc, err)
		}
	}

	var rows int64
	db.Model(&models.ResearchProgress{}).Where("todo_id = ?", td.ID).Count(&rows)
	if rows != 2 {
		t.Errorf("progress rows = %d, want one per service", rows)
	}
}

func TestOpenRequest_Validation(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	var verr *models.ValidationError
	if _, err := OpenRequest(db, OpenOpts{Service: "web"}); !errors.As(err, &verr) {
		t.Errorf("missing todo_id: error = %v, want ValidationError", err)
	}
	if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID}); !errors.As(err, &verr) {
		t.Errorf("missing service: error = %v, want ValidationError", err)
	}
	if _, err := OpenRequest(db, OpenOpts{TodoID: "td-000000000000", Service: "web"}); !errors.As(err, &verr) {
		t.Errorf("absent todo: error = %v, want ValidationError", err)
	}
}

func TestUpdateProgress_NoActiveRequest(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	err := UpdateProgress(db, &models.ResearchProgress{
		TodoID: td.ID, Service: "web", Stage: models.StageAnalyzing,
	})
	if !errors.Is(err, ErrNoActiveRequest) {
		t.Errorf("error = %v, want ErrNoActiveRequest", err)
	}
}

func TestUpdateProgress_Overwrites(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: "web"}); err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}

	remaining := 90
	err := UpdateProgress(db, &models.ResearchProgress{
		TodoID: td.ID, Service: "web",
		Stage: models.StageSynthesizing, ProgressPercentage: 80,
		CurrentStep: "Writing summary", EstimatedRemaining: &remaining,
	})
	if err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}

	p, err := Progress(db, td.ID, "web")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Stage != models.StageSynthesizing || p.ProgressPercentage != 80 || p.CurrentStep != "Writing summary" {
		t.Errorf("progress not overwritten: %+v", p)
	}
	if p.EstimatedRemaining == nil || *p.EstimatedRemaining != 90 {
		t.Errorf("estimated_remaining = %v, want 90", p.EstimatedRemaining)
	}
}

func TestProgress_Absent(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	p, err := Progress(db, td.ID, "web")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p != nil {
		t.Errorf("Progress with no open request returned %+v, want nil", p)
	}
}

func TestComplete_Success(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: "web"}); err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}

	started := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	completed := started.Add(125 * time.Second)
	confidence := 0.9
	result, err := Complete(db, td.ID, CompleteOpts{
		Service:     "web",
		Prompt:      "summarize the topic",
		Content:     "findings",
		StartedAt:   started,
		CompletedAt: completed,
		Metadata: &models.ResearchMetadata{
			Sources:    []string{"https://example.com"},
			Confidence: &confidence,
		},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if result.Status != models.ResultCompleted {
		t.Errorf("status = %q, want completed by default", result.Status)
	}
	if result.DurationSeconds != 125 {
		t.Errorf("duration = %d, want 125", result.DurationSeconds)
	}

	// All three transactional effects must have landed.
	after, _ := todo.Get(db, td.ID)
	if after.Status != models.StatusReview {
		t.Errorf("todo status = %q, want review", after.Status)
	}
	if !after.UpdatedAt.Equal(result.CompletedAt) {
		t.Errorf("todo updated_at %v != result completed_at %v", after.UpdatedAt, result.CompletedAt)
	}
	p, _ := Progress(db, td.ID, "web")
	if p != nil {
		t.Errorf("progress row survived completion: %+v", p)
	}

	meta, err := result.DecodeMetadata()
	if err != nil {
		t.Fatalf("DecodeMetadata: %v", err)
	}
	if len(meta.Sources) != 1 || meta.Confidence == nil || *meta.Confidence != 0.9 {
		t.Errorf("metadata round-trip lost data: %+v", meta)
	}
}

func TestComplete_FailedLeavesStatus(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	if _, err := Start(db, OpenOpts{TodoID: td.ID, Service: "web", Prompt: "dig in"}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	result, err := Complete(db, td.ID, CompleteOpts{
		Service: "web",
		Content: "provider returned an error page",
		Status:  models.ResultFailed,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if result.Status != models.ResultFailed {
		t.Errorf("status = %q, want failed", result.Status)
	}

	after, _ := todo.Get(db, td.ID)
	if after.Status != models.StatusResearching {
		t.Errorf("todo status = %q, failed result must not advance it", after.Status)
	}
	p, _ := Progress(db, td.ID, "web")
	if p != nil {
		t.Error("progress row should be cleared even on failure")
	}
}

func TestComplete_Validation(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	var verr *models.ValidationError
	if _, err := Complete(db, td.ID, CompleteOpts{Service: "web"}); !errors.As(err, &verr) {
		t.Errorf("empty content: error = %v, want ValidationError", err)
	}
	if _, err := Complete(db, td.ID, CompleteOpts{Content: "x"}); !errors.As(err, &verr) {
		t.Errorf("empty service: error = %v, want ValidationError", err)
	}
	if _, err := Complete(db, "td-000000000000", CompleteOpts{Service: "web", Content: "x"}); !errors.As(err, &verr) {
		t.Errorf("absent todo: error = %v, want ValidationError", err)
	}
}

func TestComplete_AbsentTodoWritesNothing(t *testing.T) {
	db := openTestDB(t)

	var verr *models.ValidationError
	_, err := Complete(db, "td-000000000000", CompleteOpts{Service: "web", Content: "x"})
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}

	// The existence check runs inside the transaction, so nothing may
	// have been inserted for the missing todo.
	var rows int64
	db.Model(&models.ResearchResult{}).Count(&rows)
	if rows != 0 {
		t.Errorf("%d result rows written for an absent todo, want 0", rows)
	}
}

func TestStoredUnknownEnums_ReadAsDefaults(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Rows from an older schema")

	if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: "web"}); err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}
	if err := db.Model(&models.ResearchProgress{}).
		Where("todo_id = ? AND service = ?", td.ID, "web").
		UpdateColumn("stage", "bogus").Error; err != nil {
		t.Fatalf("rewrite stage: %v", err)
	}
	p, err := Progress(db, td.ID, "web")
	if err != nil {
		t.Fatalf("Progress: %v", err)
	}
	if p.Stage != models.StageSearching {
		t.Errorf("stage = %q, unknown stored stage must read as searching", p.Stage)
	}

	result, err := Complete(db, td.ID, CompleteOpts{Service: "web", Content: "findings"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := db.Model(&models.ResearchResult{}).
		Where("id = ?", result.ID).
		UpdateColumn("status", "bogus").Error; err != nil {
		t.Fatalf("rewrite status: %v", err)
	}
	latest, err := LatestResult(db, td.ID)
	if err != nil {
		t.Fatalf("LatestResult: %v", err)
	}
	if latest.Status != models.ResultFailed {
		t.Errorf("status = %q, unknown stored result status must read as failed", latest.Status)
	}
}

func TestResults_Ordering(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	base := time.Date(2026, 8, 28, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := Complete(db, td.ID, CompleteOpts{
			Service:     "web",
			Content:     "round",
			StartedAt:   base,
			CompletedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Complete %d: %v", i, err)
		}
	}

	results, err := Results(db, td.ID)
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	for i := 1; i < len(results); i++ {
		if results[i].CompletedAt.After(results[i-1].CompletedAt) {
			t.Errorf("results not ordered newest first at position %d", i)
		}
	}

	latest, err := LatestResult(db, td.ID)
	if err != nil {
		t.Fatalf("LatestResult: %v", err)
	}
	if latest == nil || !latest.CompletedAt.Equal(results[0].CompletedAt) {
		t.Errorf("LatestResult = %v, want the newest result", latest)
	}
}

func TestLatestResult_Absent(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	latest, err := LatestResult(db, td.ID)
	if err != nil {
		t.Fatalf("LatestResult: %v", err)
	}
	if latest != nil {
		t.Errorf("LatestResult with no results returned %+v, want nil", latest)
	}
}

func TestStart(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Buy milk")

	p, err := Start(db, OpenOpts{TodoID: td.ID, Service: "web", Prompt: "compare oat milk brands"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p == nil {
		t.Fatal("Start returned nil progress for existing todo")
	}

	after, _ := todo.Get(db, td.ID)
	if after.Status != models.StatusResearching {
		t.Errorf("todo status = %q, want researching", after.Status)
	}
}

func TestStart_Absent(t *testing.T) {
	db := openTestDB(t)

	p, err := Start(db, OpenOpts{TodoID: "td-000000000000", Service: "web"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if p != nil {
		t.Errorf("Start on absent todo returned %+v, want nil", p)
	}
}

func TestCancel(t *testing.T) {
	db := openTestDB(t)
	td := seedTodo(t, db, "Research topic")

	if _, err := Start(db, OpenOpts{TodoID: td.ID, Service: "web"}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := OpenRequest(db, OpenOpts{TodoID: td.ID, Service: "academic"}); err != nil {
		t.Fatalf("OpenRequest: %v", err)
	}

	after, err := Cancel(db, td.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if after.Status != models.StatusPending {
		t.Errorf("todo status = %q, want pending", after.Status)
	}

	var rows int64
	db.Model(&models.ResearchProgress{}).Where("todo_id = ?", td.ID).Count(&rows)
	if rows != 0 {
		t.Errorf("%d progress rows survived cancel", rows)
	}
}

func TestCancel_Absent(t *testing.T) {
	db := openTestDB(t)

	td, err := Cancel(db, "td-000000000000")
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if td != nil {
		t.Errorf("Cancel on absent todo returned %+v, want nil", td)
	}
}

func TestSweepStale(t *testing.T) {
	db := openTestDB(t)
	stale := seedTodo(t, db, "Abandoned")
	fresh := seedTodo(t, db, "Active")

	if _, err := Start(db, OpenOpts{TodoID: stale.ID, Service: "web"}); err != nil {
		t.Fatalf("Start stale: %v", err)
	}
	if _, err := Start(db, OpenOpts{TodoID: fresh.ID, Service: "web"}); err != nil {
		t.Fatalf("Start fresh: %v", err)
	}

	old := time.Now().UTC().Add(-2 * time.Hour)
	if err := db.Model(&models.ResearchProgress{}).
		Where("todo_id = ?", stale.ID).
		UpdateColumns(map[string]interface{}{"updated_at": old}).Error; err != nil {
		t.Fatalf("age progress: %v", err)
	}

	swept, err := SweepStale(db, time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("SweepStale: %v", err)
	}
	if swept != 1 {
		t.Errorf("swept = %d, want 1", swept)
	}

	latest, err := LatestResult(db, stale.ID)
	if err != nil {
		t.Fatalf("LatestResult: %v", err)
	}
	if latest == nil || latest.Status != models.ResultTimeout {
		t.Errorf("stale attempt should finalize as timeout, got %v", latest)
	}

	after, _ := todo.Get(db, stale.ID)
	if after.Status != models.StatusResearching {
		t.Errorf("timeout must not advance the todo, status = %q", after.Status)
	}

	if p, _ := Progress(db, fresh.ID, "web"); p == nil {
		t.Error("fresh progress row was swept")
	}
	if p, _ := Progress(db, stale.ID, "web"); p != nil {
		t.Error("stale progress row survived the sweep")
	}
}
