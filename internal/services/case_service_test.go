package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/stygian-io/styx/internal/models"
)

func setupCaseTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.Case{}, &models.Event{}, &models.DeadLetter{})
	require.NoError(t, err)

	return db
}

func TestUpsertCaseIdempotent(t *testing.T) {
	db := setupCaseTestDB(t)
	svc := NewCaseService(db)

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := svc.UpsertCase("zone-a", "198.51.100.4", 64512, "DE", t0)
	require.NoError(t, err)
	assert.Equal(t, "zone-a:198.51.100.4:64512", first.Key)
	assert.Equal(t, models.CaseStatusOpen, first.Status)
	assert.NotEmpty(t, first.UUID)

	second, err := svc.UpsertCase("zone-a", "198.51.100.4", 64512, "DE", t0.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, second.LastSeen.After(first.FirstSeen))

	var count int64
	require.NoError(t, db.Model(&models.Case{}).Count(&count).Error)
	assert.Equal(t, int64(1), count, "upsert must never duplicate a key")

	// An older timestamp must not move last_seen backwards.
	third, err := svc.UpsertCase("zone-a", "198.51.100.4", 64512, "DE", t0.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, second.LastSeen.UTC(), third.LastSeen.UTC())
}

func TestUpsertCaseDistinctKeys(t *testing.T) {
	db := setupCaseTestDB(t)
	svc := NewCaseService(db)

	now := time.Now()
	a, err := svc.UpsertCase("zone-a", "198.51.100.4", 64512, "DE", now)
	require.NoError(t, err)
	b, err := svc.UpsertCase("zone-b", "198.51.100.4", 64512, "DE", now)
	require.NoError(t, err)
	c, err := svc.UpsertCase("zone-a", "198.51.100.4", 13335, "DE", now)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)
}

func TestEventsInWindowOrderedAndCut(t *testing.T) {
	db := setupCaseTestDB(t)
	svc := NewCaseService(db)

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c, err := svc.UpsertCase("zone-a", "198.51.100.4", 64512, "DE", now)
	require.NoError(t, err)

	// Insert deliberately out of timestamp order.
	for _, offset := range []time.Duration{-10 * time.Second, -90 * time.Second, -2 * time.Second, -40 * time.Second} {
		require.NoError(t, svc.AppendEvent(c.ID, &models.Event{
			TS: now.Add(offset), Action: "allow",
		}))
	}

	events, err := svc.EventsInWindow(c.ID, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 3, "the 90s-old event is outside the window")

	for i := 1; i < len(events); i++ {
		assert.False(t, events[i].TS.Before(events[i-1].TS), "window scan must be ts-ordered")
	}
}

func TestEventsScopedToCase(t *testing.T) {
	db := setupCaseTestDB(t)
	svc := NewCaseService(db)

	now := time.Now()
	a, err := svc.UpsertCase("zone-a", "198.51.100.4", 64512, "DE", now)
	require.NoError(t, err)
	b, err := svc.UpsertCase("zone-a", "198.51.100.5", 64512, "DE", now)
	require.NoError(t, err)

	require.NoError(t, svc.AppendEvent(a.ID, &models.Event{TS: now, Action: "block"}))
	require.NoError(t, svc.AppendEvent(b.ID, &models.Event{TS: now, Action: "allow"}))

	events, err := svc.EventsInWindow(a.ID, now.Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "block", events[0].Action)
}

func TestUpdateSnapshot(t *testing.T) {
	db := setupCaseTestDB(t)
	svc := NewCaseService(db)

	now := time.Now()
	c, err := svc.UpsertCase("zone-a", "198.51.100.4", 64512, "DE", now)
	require.NoError(t, err)

	snap := CaseSnapshot{
		AttackRPS:         1.5,
		EstBandwidthMbps:  0.023,
		SystemCapacityRPS: 500,
		AttackForce:       0.003,
		DefenseForce:      0.9,
		BalanceOfForce:    300,
		EvidenceCount:     81,
		Mercy:             0.12,
		Justice:           1.0,
		AbuseReport:       "abuse text",
		Section504Draft:   "draft text",
	}
	later := now.Add(30 * time.Second)
	require.NoError(t, svc.UpdateSnapshot(c.ID, later, snap))

	got, err := svc.GetCase(c.UUID)
	require.NoError(t, err)
	assert.Equal(t, 81, got.EvidenceCount)
	assert.Equal(t, 1.5, got.AttackRPS)
	assert.Equal(t, 1.0, got.Justice)
	assert.Equal(t, models.CaseStatusOpen, got.Status)
	require.NotNil(t, got.AbuseReport)
	assert.Equal(t, "abuse text", *got.AbuseReport)
	require.NotNil(t, got.Section504Draft)
	assert.Equal(t, "draft text", *got.Section504Draft)

	// Unknown case id surfaces a sentinel, not a silent no-op.
	err = svc.UpdateSnapshot(99999, later, snap)
	assert.ErrorIs(t, err, ErrCaseNotFound)
}

func TestListCasesOrderedByActivity(t *testing.T) {
	db := setupCaseTestDB(t)
	svc := NewCaseService(db)

	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err := svc.UpsertCase("zone-a", "198.51.100.1", 1, "DE", t0)
	require.NoError(t, err)
	_, err = svc.UpsertCase("zone-a", "198.51.100.2", 2, "DE", t0.Add(time.Hour))
	require.NoError(t, err)

	cases, err := svc.ListCases(10)
	require.NoError(t, err)
	require.Len(t, cases, 2)
	assert.Equal(t, "198.51.100.2", cases[0].IP, "most recent first")
}

func TestDeadLetterLifecycle(t *testing.T) {
	db := setupCaseTestDB(t)
	svc := NewDeadLetterService(db)

	require.NoError(t, svc.Create(`{"ip":""}`, "malformed verdict event: missing ip", 0))
	require.NoError(t, svc.Create(`{"ip":"1.2.3.4"}`, "append event: disk I/O error", 5))

	pending, err := svc.ListPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 2)

	require.NoError(t, svc.MarkRetried(pending[0].ID, time.Now()))

	pending, err = svc.ListPending(10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 5, pending[0].Attempts)
}
