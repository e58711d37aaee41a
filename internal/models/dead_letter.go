package models

import (
	"time"
)

// DeadLetter holds a verdict event that could not be ingested, either because
// it failed validation or because persistence kept failing after retries. The
// raw payload is kept so operators can inspect or replay it.
type DeadLetter struct {
	ID       uint   `json:"id" gorm:"primaryKey"`
	Payload  string `json:"payload" gorm:"type:text"`
	Reason   string `json:"reason"`
	Attempts int    `json:"attempts"`

	CreatedAt time.Time  `json:"created_at"`
	RetriedAt *time.Time `json:"retried_at"`
}
