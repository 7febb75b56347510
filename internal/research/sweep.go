package research

import (
	"fmt"
	"time"

	"github.com/zulandar/researchdesk/internal/models"
	"gorm.io/gorm"
)

// SweepStale finalizes progress rows with no update since the cutoff as
// timeout results. The parent todo keeps its status; only a successful
// completion moves it forward. Returns the number of rows swept.
func SweepStale(db *gorm.DB, cutoff time.Time) (int, error) {
	var stale []models.ResearchProgress
	if err := db.Where("updated_at < ?", cutoff).Find(&stale).Error; err != nil {
		return 0, fmt.Errorf("research: find stale progress: %w", err)
	}

	swept := 0
	for _, p := range stale {
		_, err := Complete(db, p.TodoID, CompleteOpts{
			Service:   p.Service,
			Content:   fmt.Sprintf("Research timed out during %s with no result.", p.Stage),
			StartedAt: p.UpdatedAt,
			Status:    models.ResultTimeout,
		})
		if err != nil {
			return swept, fmt.Errorf("research: sweep %s/%s: %w", p.TodoID, p.Service, err)
		}
		swept++
	}
	return swept, nil
}
