package services

import (
	"time"

	"gorm.io/gorm"

	"github.com/stygian-io/styx/internal/models"
)

// DeadLetterService persists verdict events the pipeline could not ingest.
type DeadLetterService struct {
	db *gorm.DB
}

// NewDeadLetterService returns a DeadLetterService using the provided DB.
func NewDeadLetterService(db *gorm.DB) *DeadLetterService {
	return &DeadLetterService{db: db}
}

// Create stores one failed event with the reason it was parked.
func (s *DeadLetterService) Create(payload, reason string, attempts int) error {
	dl := models.DeadLetter{
		Payload:  payload,
		Reason:   reason,
		Attempts: attempts,
	}
	return s.db.Create(&dl).Error
}

// ListPending returns up to limit dead letters that have not been replayed.
func (s *DeadLetterService) ListPending(limit int) ([]models.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	var letters []models.DeadLetter
	err := s.db.
		Where("retried_at IS NULL").
		Order("created_at asc").
		Limit(limit).
		Find(&letters).Error
	return letters, err
}

// MarkRetried stamps a dead letter as replayed.
func (s *DeadLetterService) MarkRetried(id uint, ts time.Time) error {
	return s.db.Model(&models.DeadLetter{}).
		Where("id = ?", id).
		Update("retried_at", ts).Error
}
