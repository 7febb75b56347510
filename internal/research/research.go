// Package research owns the research-attempt lifecycle: progress rows
// for in-flight attempts and result rows for finished ones.
package research

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/researchdesk/internal/models"
	"github.com/zulandar/researchdesk/internal/todo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultEstimatedSeconds is the estimate written to a fresh progress row
// when the caller does not supply one.
const DefaultEstimatedSeconds = 300

// ErrNoActiveRequest is returned by UpdateProgress when no progress row
// exists for the (todo, service) pair. Callers must open a request first;
// an unmatched update is a logic error, not something to swallow.
var ErrNoActiveRequest = errors.New("research: no active request for todo/service")

// OpenOpts holds parameters for opening a research request.
type OpenOpts struct {
	TodoID  string
	Service string
	// Prompt is carried for the collaborator driving the external
	// provider; it is persisted only when a result arrives.
	Prompt           string
	EstimatedSeconds int // 0 means DefaultEstimatedSeconds
}

// CompleteOpts holds the result payload for finalizing an attempt.
type CompleteOpts struct {
	Service     string
	Prompt      string
	Content     string
	RawHTML     string
	Metadata    *models.ResearchMetadata
	StartedAt   time.Time
	CompletedAt time.Time           // zero means now
	Status      models.ResultStatus // empty means completed
}

// GenerateID creates a unique result ID in rr-xxxxxxxxxxxx format.
func GenerateID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("research: generate ID: %w", err)
	}
	return "rr-" + hex.EncodeToString(b), nil
}

// OpenRequest upserts the progress row for (todo, service): stage resets
// to searching, percentage to zero. An existing row for the pair is
// replaced wholesale; last writer wins.
func OpenRequest(db *gorm.DB, opts OpenOpts) (*models.ResearchProgress, error) {
	if opts.TodoID == "" {
		return nil, models.Validation("todo_id", "is required")
	}
	if opts.Service == "" {
		return nil, models.Validation("service", "is required")
	}
	if err := requireTodo(db, opts.TodoID); err != nil {
		return nil, err
	}

	est := opts.EstimatedSeconds
	if est == 0 {
		est = DefaultEstimatedSeconds
	}

	progress := models.ResearchProgress{
		TodoID:             opts.TodoID,
		Service:            opts.Service,
		Stage:              models.StageSearching,
		ProgressPercentage: 0,
		CurrentStep:        "Initializing research",
		EstimatedRemaining: &est,
		UpdatedAt:          time.Now().UTC(),
	}

	result := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "todo_id"}, {Name: "service"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"stage", "progress_percentage", "current_step", "estimated_remaining", "updated_at",
		}),
	}).Create(&progress)
	if result.Error != nil {
		return nil, fmt.Errorf("research: open request for %s/%s: %w", opts.TodoID, opts.Service, result.Error)
	}
	return &progress, nil
}

// UpdateProgress overwrites the progress row matching (todo, service).
// Returns ErrNoActiveRequest when no such row exists.
func UpdateProgress(db *gorm.DB, p *models.ResearchProgress) error {
	now := time.Now().UTC()
	res := db.Model(&models.ResearchProgress{}).
		Where("todo_id = ? AND service = ?", p.TodoID, p.Service).
		UpdateColumns(map[string]interface{}{
			"stage":               p.Stage,
			"progress_percentage": p.ProgressPercentage,
			"current_step":        p.CurrentStep,
			"estimated_remaining": p.EstimatedRemaining,
			"updated_at":          now,
		})
	if res.Error != nil {
		return fmt.Errorf("research: update progress for %s/%s: %w", p.TodoID, p.Service, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNoActiveRequest
	}
	p.UpdatedAt = now
	return nil
}

// Complete finalizes a research attempt in a single transaction: the
// result row is inserted, the parent todo moves to review when (and only
// when) the result is a success, and the progress row for the pair is
// removed. A failed transaction leaves all three untouched.
func Complete(db *gorm.DB, todoID string, opts CompleteOpts) (*models.ResearchResult, error) {
	if opts.Service == "" {
		return nil, models.Validation("service", "is required")
	}
	if opts.Content == "" {
		return nil, models.Validation("content", "is required")
	}

	status := opts.Status
	if status == "" {
		status = models.ResultCompleted
	}

	now := time.Now().UTC()
	completedAt := opts.CompletedAt
	if completedAt.IsZero() {
		completedAt = now
	}
	startedAt := opts.StartedAt
	if startedAt.IsZero() {
		startedAt = completedAt
	}

	id, err := GenerateID()
	if err != nil {
		return nil, err
	}

	result := models.ResearchResult{
		ID:      id,
		TodoID:  todoID,
		Service: opts.Service,
		Prompt:  opts.Prompt,
		Content: opts.Content,
		RawHTML: opts.RawHTML,
		// Whole seconds; negative when the caller reports a started_at
		// after completion. Not rejected, by contract.
		DurationSeconds: int(completedAt.Sub(startedAt) / time.Second),
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		Status:          status,
		CreatedAt:       now,
	}
	if err := result.SetMetadata(opts.Metadata); err != nil {
		return nil, err
	}

	err = db.Transaction(func(tx *gorm.DB) error {
		// Checked inside the transaction so a todo deleted concurrently
		// cannot gain an orphan result row.
		if err := requireTodo(tx, todoID); err != nil {
			return err
		}
		if err := tx.Create(&result).Error; err != nil {
			return err
		}
		// Only a successful result advances the todo to review. Failed
		// and timed-out attempts leave the todo status alone.
		if status == models.ResultCompleted {
			if err := tx.Model(&models.Todo{}).Where("id = ?", todoID).
				UpdateColumns(map[string]interface{}{
					"status":     models.StatusReview,
					"updated_at": completedAt,
				}).Error; err != nil {
				return err
			}
		}
		return tx.Where("todo_id = ? AND service = ?", todoID, opts.Service).
			Delete(&models.ResearchProgress{}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("research: complete for %s/%s: %w", todoID, opts.Service, err)
	}
	return &result, nil
}

// Results returns all results for a todo, most recently completed first.
func Results(db *gorm.DB, todoID string) ([]models.ResearchResult, error) {
	var results []models.ResearchResult
	if err := db.Where("todo_id = ?", todoID).
		Order("completed_at DESC, id DESC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("research: results for %s: %w", todoID, err)
	}
	return results, nil
}

// LatestResult returns the most recently completed result for a todo, or
// (nil, nil) when the todo has none.
func LatestResult(db *gorm.DB, todoID string) (*models.ResearchResult, error) {
	var result models.ResearchResult
	err := db.Where("todo_id = ?", todoID).
		Order("completed_at DESC, id DESC").
		First(&result).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("research: latest result for %s: %w", todoID, err)
	}
	return &result, nil
}

// Progress returns the progress row for (todo, service), or (nil, nil)
// when no attempt is in flight.
func Progress(db *gorm.DB, todoID, service string) (*models.ResearchProgress, error) {
	var p models.ResearchProgress
	err := db.Where("todo_id = ? AND service = ?", todoID, service).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("research: progress for %s/%s: %w", todoID, service, err)
	}
	return &p, nil
}

// Start marks a todo as researching and opens the progress row for the
// service in one call. Returns (nil, nil) when the todo does not exist.
func Start(db *gorm.DB, opts OpenOpts) (*models.ResearchProgress, error) {
	td, err := todo.Get(db, opts.TodoID)
	if err != nil {
		return nil, err
	}
	if td == nil {
		return nil, nil
	}

	status := models.StatusResearching
	if _, err := todo.Update(db, opts.TodoID, todo.UpdateOpts{Status: &status}); err != nil {
		return nil, err
	}
	return OpenRequest(db, opts)
}

// Cancel moves a researching todo back to pending and clears any
// in-flight progress rows. Returns (nil, nil) when the todo does not
// exist. Cancellation is a plain status change, never an interruption of
// a concurrent Complete.
func Cancel(db *gorm.DB, todoID string) (*models.Todo, error) {
	status := models.StatusPending
	td, err := todo.Update(db, todoID, todo.UpdateOpts{Status: &status})
	if err != nil || td == nil {
		return td, err
	}
	if err := db.Where("todo_id = ?", todoID).Delete(&models.ResearchProgress{}).Error; err != nil {
		return nil, fmt.Errorf("research: cancel %s: %w", todoID, err)
	}
	return td, nil
}

// requireTodo verifies the parent todo exists before writing rows that
// reference it. Enforced here so behavior does not depend on the storage
// engine's foreign-key mode.
func requireTodo(db *gorm.DB, todoID string) error {
	var count int64
	if err := db.Model(&models.Todo{}).Where("id = ?", todoID).Count(&count).Error; err != nil {
		return fmt.Errorf("research: check todo %s: %w", todoID, err)
	}
	if count == 0 {
		return models.Validation("todo_id", fmt.Sprintf("todo %s does not exist", todoID))
	}
	return nil
}
