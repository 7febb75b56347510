// Package todo owns the Todo entity: CRUD, filtered listing, and
// field-level partial update.
package todo

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/researchdesk/internal/models"
	"gorm.io/gorm"
)

// CreateOpts holds parameters for creating a new todo.
type CreateOpts struct {
	Title            string
	Description      string
	URL              string
	Priority         *models.TodoPriority // nil means medium
	PreferredService string
}

// UpdateOpts holds a partial update. A nil field leaves the stored value
// untouched; a pointer to the empty string clears it. Omission and empty
// are distinct on purpose.
type UpdateOpts struct {
	Title            *string
	Description      *string
	URL              *string
	Status           *models.TodoStatus
	Priority         *models.TodoPriority
	PreferredService *string
	CompletedAt      *time.Time
}

// Filter holds optional predicates for listing todos. The zero value
// lists everything except archived todos.
type Filter struct {
	Status   *models.TodoStatus
	Priority *models.TodoPriority
	Search   string // substring match across title, description, url
	Limit    int
	Offset   int
}

// StatusCounts reports the number of todos in each status. Statuses with
// no rows report zero.
type StatusCounts struct {
	Pending     int64 `json:"pending"`
	Researching int64 `json:"researching"`
	Review      int64 `json:"review"`
	Done        int64 `json:"done"`
	Archived    int64 `json:"archived"`
	Total       int64 `json:"total"`
}

// Detail is a todo together with its research history.
type Detail struct {
	Todo         models.Todo             `json:"todo"`
	Results      []models.ResearchResult `json:"results"`
	LatestResult *models.ResearchResult  `json:"latest_result,omitempty"`
}

// ValidTransitions maps each status to the statuses a collaborator is
// expected to move it to. Advisory only: Update accepts any assignment,
// deletion is possible from any status.
var ValidTransitions = map[models.TodoStatus][]models.TodoStatus{
	models.StatusPending:     {models.StatusResearching},
	models.StatusResearching: {models.StatusReview, models.StatusPending},
	models.StatusReview:      {models.StatusDone, models.StatusArchived},
	models.StatusDone:        {models.StatusArchived},
	models.StatusArchived:    {},
}

// CanTransition reports whether the advisory state machine allows moving
// from one status to another.
func CanTransition(from, to models.TodoStatus) bool {
	for _, v := range ValidTransitions[from] {
		if v == to {
			return true
		}
	}
	return false
}

// GenerateID creates a unique todo ID in td-xxxxxxxxxxxx format.
func GenerateID() (string, error) {
	b := make([]byte, 6)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("todo: generate ID: %w", err)
	}
	return "td-" + hex.EncodeToString(b), nil
}

// Create inserts a new todo with an auto-generated ID. New todos start
// pending with created_at == updated_at.
func Create(db *gorm.DB, opts CreateOpts) (*models.Todo, error) {
	if opts.Title == "" {
		return nil, models.Validation("title", "is required")
	}

	priority := models.PriorityMedium
	if opts.Priority != nil {
		priority = *opts.Priority
	}

	id, err := generateUniqueID(db)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	td := models.Todo{
		ID:               id,
		Title:            opts.Title,
		Description:      opts.Description,
		URL:              opts.URL,
		Status:           models.StatusPending,
		Priority:         priority,
		PreferredService: opts.PreferredService,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := db.Create(&td).Error; err != nil {
		return nil, fmt.Errorf("todo: create: %w", err)
	}
	return &td, nil
}

// Get retrieves a todo by ID. Returns (nil, nil) when the ID does not
// exist; absence is not an error.
func Get(db *gorm.DB, id string) (*models.Todo, error) {
	var td models.Todo
	err := db.Where("id = ?", id).First(&td).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("todo: get %s: %w", id, err)
	}
	return &td, nil
}

// List returns todos matching the filter, ordered by priority descending,
// then creation time descending, then ID for a deterministic tie-break.
// Without an explicit status filter, archived todos are excluded.
func List(db *gorm.DB, filter Filter) ([]models.Todo, error) {
	q := db.Model(&models.Todo{})

	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	} else {
		q = q.Where("status <> ?", models.StatusArchived)
	}
	if filter.Priority != nil {
		q = q.Where("priority = ?", *filter.Priority)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		q = q.Where("(title LIKE ? OR description LIKE ? OR url LIKE ?)", pattern, pattern, pattern)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var todos []models.Todo
	if err := q.Order("priority DESC, created_at DESC, id DESC").Find(&todos).Error; err != nil {
		return nil, fmt.Errorf("todo: list: %w", err)
	}
	return todos, nil
}

// Update applies a partial update. Returns (nil, nil) when the ID does
// not exist. Any successful update refreshes updated_at.
func Update(db *gorm.DB, id string, opts UpdateOpts) (*models.Todo, error) {
	existing, err := Get(db, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, nil
	}

	updates := map[string]interface{}{}
	if opts.Title != nil {
		if *opts.Title == "" {
			return nil, models.Validation("title", "must not be empty")
		}
		updates["title"] = *opts.Title
	}
	if opts.Description != nil {
		updates["description"] = *opts.Description
	}
	if opts.URL != nil {
		updates["url"] = *opts.URL
	}
	if opts.Status != nil {
		updates["status"] = *opts.Status
	}
	if opts.Priority != nil {
		updates["priority"] = *opts.Priority
	}
	if opts.PreferredService != nil {
		updates["preferred_service"] = *opts.PreferredService
	}
	if opts.CompletedAt != nil {
		updates["completed_at"] = *opts.CompletedAt
	}

	if len(updates) > 0 {
		updates["updated_at"] = time.Now().UTC()
		if err := db.Model(&models.Todo{}).Where("id = ?", id).UpdateColumns(updates).Error; err != nil {
			return nil, fmt.Errorf("todo: update %s: %w", id, err)
		}
	}

	return Get(db, id)
}

// Delete removes a todo and all research rows that reference it. Returns
// whether a todo row was actually removed.
func Delete(db *gorm.DB, id string) (bool, error) {
	deleted := false
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("todo_id = ?", id).Delete(&models.ResearchResult{}).Error; err != nil {
			return err
		}
		if err := tx.Where("todo_id = ?", id).Delete(&models.ResearchProgress{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Todo{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("todo: delete %s: %w", id, err)
	}
	return deleted, nil
}

// CountByStatus returns per-status todo counts plus the total.
func CountByStatus(db *gorm.DB) (*StatusCounts, error) {
	type row struct {
		Status models.TodoStatus
		Count  int64
	}
	var rows []row
	if err := db.Model(&models.Todo{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("todo: status counts: %w", err)
	}

	var counts StatusCounts
	for _, r := range rows {
		switch models.ParseTodoStatus(string(r.Status)) {
		case models.StatusPending:
			counts.Pending += r.Count
		case models.StatusResearching:
			counts.Researching += r.Count
		case models.StatusReview:
			counts.Review += r.Count
		case models.StatusDone:
			counts.Done += r.Count
		case models.StatusArchived:
			counts.Archived += r.Count
		}
		counts.Total += r.Count
	}
	return &counts, nil
}

// WithResearch returns a todo together with its full research history,
// most recent result first. Returns (nil, nil) when the ID does not exist.
func WithResearch(db *gorm.DB, id string) (*Detail, error) {
	td, err := Get(db, id)
	if err != nil || td == nil {
		return nil, err
	}

	var results []models.ResearchResult
	if err := db.Where("todo_id = ?", id).
		Order("completed_at DESC").
		Find(&results).Error; err != nil {
		return nil, fmt.Errorf("todo: research history %s: %w", id, err)
	}

	detail := &Detail{Todo: *td, Results: results}
	if len(results) > 0 {
		detail.LatestResult = &results[0]
	}
	return detail, nil
}

// generateUniqueID generates an ID and retries once on collision.
func generateUniqueID(db *gorm.DB) (string, error) {
	for i := 0; i < 2; i++ {
		id, err := GenerateID()
		if err != nil {
			return "", err
		}
		var count int64
		if err := db.Model(&models.Todo{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return "", fmt.Errorf("todo: check ID uniqueness: %w", err)
		}
		if count == 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("todo: failed to generate unique ID after retries")
}
