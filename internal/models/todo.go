// Package models defines the GORM entities persisted by researchdesk.
package models

import (
	"database/sql/driver"
	"strconv"
	"time"
)

// enumText normalizes a scanned column value to a string for the enum
// Scan implementations below.
func enumText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

// TodoStatus is the lifecycle state of a todo.
type TodoStatus string

const (
	StatusPending     TodoStatus = "pending"
	StatusResearching TodoStatus = "researching"
	StatusReview      TodoStatus = "review"
	StatusDone        TodoStatus = "done"
	StatusArchived    TodoStatus = "archived"
)

// AllStatuses lists every todo status in lifecycle order.
func AllStatuses() []TodoStatus {
	return []TodoStatus{StatusPending, StatusResearching, StatusReview, StatusDone, StatusArchived}
}

// ParseTodoStatus decodes a persisted status string. Unknown values decode
// to StatusPending; stored rows must stay readable when new statuses are
// added later.
func ParseTodoStatus(s string) TodoStatus {
	switch TodoStatus(s) {
	case StatusPending, StatusResearching, StatusReview, StatusDone, StatusArchived:
		return TodoStatus(s)
	default:
		return StatusPending
	}
}

// ParseTodoStatusStrict decodes caller-supplied status input. Unlike
// ParseTodoStatus it rejects unknown values instead of defaulting;
// default-on-unknown is a read-path policy for stored rows only.
func ParseTodoStatusStrict(s string) (TodoStatus, error) {
	switch TodoStatus(s) {
	case StatusPending, StatusResearching, StatusReview, StatusDone, StatusArchived:
		return TodoStatus(s), nil
	default:
		return "", Validation("status", "must be one of pending, researching, review, done, archived")
	}
}

// Scan decodes a stored status through the default-on-unknown policy so
// every read path returns a known variant.
func (s *TodoStatus) Scan(value any) error {
	*s = ParseTodoStatus(enumText(value))
	return nil
}

// Value implements driver.Valuer.
func (s TodoStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// TodoPriority is stored as an integer so that ORDER BY priority works.
type TodoPriority int

const (
	PriorityLow    TodoPriority = 0
	PriorityMedium TodoPriority = 1
	PriorityHigh   TodoPriority = 2
)

// ParsePriority decodes a persisted priority value. Unknown values decode
// to PriorityMedium.
func ParsePriority(i int) TodoPriority {
	switch TodoPriority(i) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return TodoPriority(i)
	default:
		return PriorityMedium
	}
}

// ParsePriorityStrict decodes caller-supplied priority input, rejecting
// values outside the known range.
func ParsePriorityStrict(i int) (TodoPriority, error) {
	switch TodoPriority(i) {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return TodoPriority(i), nil
	default:
		return 0, Validation("priority", "must be 0 (low), 1 (medium) or 2 (high)")
	}
}

// ParsePriorityName maps a priority name ("low", "medium", "high") to its
// value. Unknown names map to PriorityMedium.
func ParsePriorityName(s string) TodoPriority {
	switch s {
	case "low":
		return PriorityLow
	case "high":
		return PriorityHigh
	default:
		return PriorityMedium
	}
}

// ParsePriorityNameStrict maps a priority name to its value, rejecting
// unknown names.
func ParsePriorityNameStrict(s string) (TodoPriority, error) {
	switch s {
	case "low":
		return PriorityLow, nil
	case "medium":
		return PriorityMedium, nil
	case "high":
		return PriorityHigh, nil
	default:
		return 0, Validation("priority", "must be one of low, medium, high")
	}
}

// Scan decodes a stored priority through the default-on-unknown policy.
func (p *TodoPriority) Scan(value any) error {
	switch v := value.(type) {
	case int64:
		*p = ParsePriority(int(v))
	case string, []byte:
		i, err := strconv.Atoi(enumText(value))
		if err != nil {
			*p = PriorityMedium
		} else {
			*p = ParsePriority(i)
		}
	default:
		*p = PriorityMedium
	}
	return nil
}

// Value implements driver.Valuer.
func (p TodoPriority) Value() (driver.Value, error) {
	return int64(p), nil
}

// Name returns the lowercase display name of the priority.
func (p TodoPriority) Name() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	default:
		return "medium"
	}
}

// Todo is a user-tracked task that can be escalated into a research workflow.
type Todo struct {
	ID               string       `gorm:"primaryKey;size:32" json:"id"`
	Title            string       `gorm:"not null" json:"title"`
	Description      string       `gorm:"type:text" json:"description,omitempty"`
	URL              string       `gorm:"type:text" json:"url,omitempty"`
	Status           TodoStatus   `gorm:"size:16;default:pending;index" json:"status"`
	Priority         TodoPriority `gorm:"default:1" json:"priority"`
	PreferredService string       `gorm:"size:64" json:"preferred_service,omitempty"`
	CreatedAt        time.Time    `gorm:"index" json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
	CompletedAt      *time.Time   `json:"completed_at,omitempty"`

	Results  []ResearchResult   `gorm:"foreignKey:TodoID;constraint:OnDelete:CASCADE" json:"-"`
	Progress []ResearchProgress `gorm:"foreignKey:TodoID;constraint:OnDelete:CASCADE" json:"-"`
}
