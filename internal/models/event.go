package models

import (
	"time"
)

// Event is one immutable verdict record in a case's audit trail. Rows are
// append-only and never mutated after insert.
type Event struct {
	ID     uint      `json:"id" gorm:"primaryKey"`
	CaseID uint      `json:"case_id" gorm:"index:idx_events_case_ts,priority:1"`
	TS     time.Time `json:"ts" gorm:"index:idx_events_case_ts,priority:2"`

	Path      string  `json:"path"`
	Method    string  `json:"method"`
	UserAgent string  `json:"user_agent" gorm:"column:ua"`
	Action    string  `json:"action"`
	Score     float64 `json:"score"`
	Hits      int     `json:"hits"`
	Colo      string  `json:"colo"`

	CreatedAt time.Time `json:"created_at"`
}
