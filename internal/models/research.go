package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// ResultStatus is the outcome of a single research attempt.
type ResultStatus string

const (
	ResultCompleted ResultStatus = "completed"
	ResultFailed    ResultStatus = "failed"
	ResultTimeout   ResultStatus = "timeout"
)

// ParseResultStatus decodes a persisted result status. Unknown values
// decode to ResultFailed: a row we cannot classify must not pass for a
// successful attempt.
func ParseResultStatus(s string) ResultStatus {
	switch ResultStatus(s) {
	case ResultCompleted, ResultFailed, ResultTimeout:
		return ResultStatus(s)
	default:
		return ResultFailed
	}
}

// ParseResultStatusStrict decodes caller-supplied result status input,
// rejecting unknown values.
func ParseResultStatusStrict(s string) (ResultStatus, error) {
	switch ResultStatus(s) {
	case ResultCompleted, ResultFailed, ResultTimeout:
		return ResultStatus(s), nil
	default:
		return "", Validation("status", "must be one of completed, failed, timeout")
	}
}

// Scan decodes a stored result status through the default-on-unknown policy.
func (s *ResultStatus) Scan(value any) error {
	*s = ParseResultStatus(enumText(value))
	return nil
}

// Value implements driver.Valuer.
func (s ResultStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// ResearchStage is the coarse phase of an in-flight research attempt.
type ResearchStage string

const (
	StageSearching    ResearchStage = "searching"
	StageAnalyzing    ResearchStage = "analyzing"
	StageSynthesizing ResearchStage = "synthesizing"
	StageCompleted    ResearchStage = "completed"
)

// ParseStage decodes a persisted stage string. Unknown values decode to
// StageSearching.
func ParseStage(s string) ResearchStage {
	switch ResearchStage(s) {
	case StageSearching, StageAnalyzing, StageSynthesizing, StageCompleted:
		return ResearchStage(s)
	default:
		return StageSearching
	}
}

// ParseStageStrict decodes caller-supplied stage input, rejecting unknown
// values.
func ParseStageStrict(s string) (ResearchStage, error) {
	switch ResearchStage(s) {
	case StageSearching, StageAnalyzing, StageSynthesizing, StageCompleted:
		return ResearchStage(s), nil
	default:
		return "", Validation("stage", "must be one of searching, analyzing, synthesizing, completed")
	}
}

// Scan decodes a stored stage through the default-on-unknown policy.
func (s *ResearchStage) Scan(value any) error {
	*s = ParseStage(enumText(value))
	return nil
}

// Value implements driver.Valuer.
func (s ResearchStage) Value() (driver.Value, error) {
	return string(s), nil
}

// ResearchMetadata is the structured payload attached to a result. It is
// stored serialized in the metadata column.
type ResearchMetadata struct {
	Sources        []string       `json:"sources,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Keywords       []string       `json:"keywords,omitempty"`
	AdditionalInfo map[string]any `json:"additional_info,omitempty"`
}

// ResearchResult is one finished research attempt for a todo. A todo owns
// zero or more results; the most recent completed_at is the current one.
type ResearchResult struct {
	ID              string       `gorm:"primaryKey;size:32" json:"id"`
	TodoID          string       `gorm:"size:32;not null;index" json:"todo_id"`
	Service         string       `gorm:"size:64;not null;index" json:"service"`
	Prompt          string       `gorm:"type:text" json:"prompt,omitempty"`
	Content         string       `gorm:"type:text;not null" json:"content"`
	RawHTML         string       `gorm:"type:text" json:"raw_html,omitempty"`
	Metadata        string       `gorm:"type:json" json:"metadata,omitempty"`
	StartedAt       time.Time    `json:"started_at"`
	CompletedAt     time.Time    `gorm:"index" json:"completed_at"`
	DurationSeconds int          `json:"duration_seconds"`
	Status          ResultStatus `gorm:"size:16;default:completed" json:"status"`
	CreatedAt       time.Time    `json:"created_at"`
}

// SetMetadata serializes md into the metadata column. A nil md clears it.
func (r *ResearchResult) SetMetadata(md *ResearchMetadata) error {
	if md == nil {
		r.Metadata = ""
		return nil
	}
	data, err := json.Marshal(md)
	if err != nil {
		return fmt.Errorf("models: marshal metadata: %w", err)
	}
	r.Metadata = string(data)
	return nil
}

// DecodeMetadata deserializes the metadata column. Returns nil when the
// column is empty.
func (r *ResearchResult) DecodeMetadata() (*ResearchMetadata, error) {
	if r.Metadata == "" {
		return nil, nil
	}
	var md ResearchMetadata
	if err := json.Unmarshal([]byte(r.Metadata), &md); err != nil {
		return nil, fmt.Errorf("models: decode metadata: %w", err)
	}
	return &md, nil
}

// ResearchProgress tracks one in-flight research attempt. At most one row
// exists per (todo, service) pair; the row is deleted when the attempt
// finalizes into a ResearchResult.
type ResearchProgress struct {
	TodoID             string        `gorm:"primaryKey;size:32" json:"todo_id"`
	Service            string        `gorm:"primaryKey;size:64" json:"service"`
	Stage              ResearchStage `gorm:"size:16;default:searching" json:"stage"`
	ProgressPercentage int           `gorm:"default:0" json:"progress_percentage"`
	CurrentStep        string        `gorm:"size:256" json:"current_step,omitempty"`
	EstimatedRemaining *int          `json:"estimated_remaining,omitempty"`
	UpdatedAt          time.Time     `json:"updated_at"`
}
