package services

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/stygian-io/styx/internal/models"
)

var (
	ErrCaseNotFound = errors.New("case not found")
)

// CaseSnapshot carries the metric fields and report artifacts written to a
// case in one atomic update.
type CaseSnapshot struct {
	AttackRPS         float64
	EstBandwidthMbps  float64
	SystemCapacityRPS float64
	AttackForce       float64
	DefenseForce      float64
	BalanceOfForce    float64
	EvidenceCount     int
	Mercy             float64
	Justice           float64

	AbuseReport     string
	Section504Draft string
}

// CaseService is the persistence layer for cases and their event trails. It
// carries no policy: callers decide what to write and when.
type CaseService struct {
	db *gorm.DB
}

// NewCaseService returns a CaseService using the provided DB.
func NewCaseService(db *gorm.DB) *CaseService {
	return &CaseService{db: db}
}

// UpsertCase returns the case owning the given key, creating it on first
// sight. The upsert is idempotent: an existing key never gains a second row,
// it only has its last_seen bumped forward.
func (s *CaseService) UpsertCase(zone, ip string, asn uint, country string, ts time.Time) (*models.Case, error) {
	key := models.CaseKey(zone, ip, asn)

	var c models.Case
	err := s.db.Where("key = ?", key).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c = models.Case{
			UUID:      uuid.New().String(),
			Key:       key,
			Zone:      zone,
			IP:        ip,
			ASN:       asn,
			Country:   country,
			FirstSeen: ts,
			LastSeen:  ts,
			Status:    models.CaseStatusOpen,
		}
		if createErr := s.db.Create(&c).Error; createErr != nil {
			// A concurrent upsert may have won the race on the unique key;
			// re-read before giving up.
			if readErr := s.db.Where("key = ?", key).First(&c).Error; readErr != nil {
				return nil, createErr
			}
		}
		return &c, nil
	}
	if err != nil {
		return nil, err
	}

	if ts.After(c.LastSeen) {
		c.LastSeen = ts
		if err := s.db.Model(&c).Update("last_seen", ts).Error; err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// AppendEvent inserts one immutable event into a case's trail.
func (s *CaseService) AppendEvent(caseID uint, ev *models.Event) error {
	ev.ID = 0
	ev.CaseID = caseID
	return s.db.Create(ev).Error
}

// EventsInWindow returns the case's events with ts >= from, ordered by ts
// ascending. Events that arrived out of order are returned in timestamp
// order regardless of insert order.
func (s *CaseService) EventsInWindow(caseID uint, from time.Time) ([]models.Event, error) {
	var events []models.Event
	err := s.db.
		Where("case_id = ? AND ts >= ?", caseID, from).
		Order("ts asc").
		Find(&events).Error
	return events, err
}

// UpdateSnapshot writes the metric fields, report artifacts, last_seen and
// status in a single transaction.
func (s *CaseService) UpdateSnapshot(caseID uint, ts time.Time, snap CaseSnapshot) error {
	updates := map[string]interface{}{
		"last_seen":           ts,
		"status":              models.CaseStatusOpen,
		"attack_rps":          snap.AttackRPS,
		"est_bandwidth_mbps":  snap.EstBandwidthMbps,
		"system_capacity_rps": snap.SystemCapacityRPS,
		"attack_force":        snap.AttackForce,
		"defense_force":       snap.DefenseForce,
		"balance_of_force":    snap.BalanceOfForce,
		"evidence_count":      snap.EvidenceCount,
		"mercy":               snap.Mercy,
		"justice":             snap.Justice,
		"abuse_report":        snap.AbuseReport,
		"section504_draft":    snap.Section504Draft,
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Case{}).Where("id = ?", caseID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCaseNotFound
		}
		return nil
	})
}

// GetCase returns one case by its public UUID.
func (s *CaseService) GetCase(caseUUID string) (*models.Case, error) {
	var c models.Case
	if err := s.db.Where("uuid = ?", caseUUID).First(&c).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	return &c, nil
}

// ListCases returns up to limit cases ordered by most recent activity.
func (s *CaseService) ListCases(limit int) ([]models.Case, error) {
	if limit <= 0 {
		limit = 50
	}
	var cases []models.Case
	err := s.db.Order("last_seen desc").Limit(limit).Find(&cases).Error
	return cases, err
}

// ListEvents returns up to limit of a case's most recent events.
func (s *CaseService) ListEvents(caseID uint, limit int) ([]models.Event, error) {
	if limit <= 0 {
		limit = 200
	}
	var events []models.Event
	err := s.db.
		Where("case_id = ?", caseID).
		Order("ts desc").
		Limit(limit).
		Find(&events).Error
	return events, err
}
