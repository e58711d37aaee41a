package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/stygian-io/styx/internal/models"
)

func mkEvents(n int, action string, score float64) []models.Event {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	events := make([]models.Event, n)
	for i := range events {
		events[i] = models.Event{
			TS:     base.Add(time.Duration(i) * time.Second),
			Action: action,
			Score:  score,
		}
	}
	return events
}

func TestComputeUniformAllowWindow(t *testing.T) {
	// 60 allows at score 0 across a 60s window.
	m := Compute(mkEvents(60, "allow", 0), 500, time.Minute)

	assert.Equal(t, 60, m.WindowEvents)
	assert.Equal(t, 1.0, m.AttackRPS)
	assert.Equal(t, 0.015625, m.EstBandwidthMbps) // 1 rps * 2KB * 8 / 1Mbit
	assert.Equal(t, 0.002, m.AttackForce)
	assert.Equal(t, 0.0, m.DefenseForce)
	// AF is tiny but nonzero, so BoF takes the ratio branch, not the guard.
	assert.Equal(t, 0.0, m.BalanceOfForce)
	assert.Equal(t, 60, m.EvidenceCount)
	assert.Equal(t, 0.0, m.Justice)
	assert.True(t, m.ShouldMaterialize(), "EF=60 crosses the trigger")
}

func TestComputeBlockedHeavyWindow(t *testing.T) {
	// 50 events at score 10: 30 blocked, 20 allowed.
	events := append(mkEvents(30, "block", 10), mkEvents(20, "allow", 10)...)
	m := Compute(events, 500, time.Minute)

	assert.Equal(t, 50, m.WindowEvents)
	assert.Equal(t, 10.0, m.AvgScore)
	assert.Equal(t, 30, m.Blocked)
	assert.Equal(t, 20, m.Allowed)

	assert.InDelta(t, 0.8333, m.AttackRPS, 0.0001)
	assert.Equal(t, 0.5, m.DefenseForce) // weighted 30*1.0 over 60s
	assert.InDelta(t, 0.001667, m.AttackForce, 0.000001)
	assert.InDelta(t, 300.0, m.BalanceOfForce, 0.1)
	assert.Equal(t, 80, m.EvidenceCount) // round(50 + 10*3)
	assert.True(t, m.ShouldMaterialize())
}

func TestComputeDefenseWeights(t *testing.T) {
	events := append(mkEvents(10, "challenge", 0), mkEvents(10, "tarpit", 0)...)
	events = append(events, mkEvents(10, "block", 0)...)
	m := Compute(events, 500, time.Minute)

	assert.Equal(t, 10, m.Challenged)
	assert.Equal(t, 10, m.Tarpitted)
	assert.Equal(t, 10, m.Blocked)
	// (10*0.6 + 10*0.9 + 10*1.0) / 60
	assert.InDelta(t, 25.0/60.0, m.DefenseForce, 1e-9)
}

func TestComputeEmptyWindow(t *testing.T) {
	m := Compute(nil, 500, time.Minute)

	assert.Equal(t, 0, m.WindowEvents)
	assert.Equal(t, 0.0, m.AvgScore)
	assert.Equal(t, 0.0, m.AttackRPS)
	assert.Equal(t, 0.0, m.AttackForce)
	assert.Equal(t, 1.0, m.BalanceOfForce, "AF=0 must fall back to BoF=1")
	assert.Equal(t, 0, m.EvidenceCount)
	assert.Equal(t, 0.0, m.Justice)
	assert.False(t, m.ShouldMaterialize())
}

func TestComputeZeroCapacity(t *testing.T) {
	m := Compute(mkEvents(30, "allow", 0), 0, time.Minute)

	assert.Equal(t, 0.0, m.AttackForce, "capacity 0 must not divide")
	assert.Equal(t, 1.0, m.BalanceOfForce)
}

func TestMercyMidpointAndMonotonicity(t *testing.T) {
	// Exactly 0.5 at avg score 6.
	m := Compute(mkEvents(10, "allow", 6), 500, time.Minute)
	assert.Equal(t, 0.5, m.Mercy)

	prev := 1.1
	for score := 0.0; score <= 12; score += 1.5 {
		m := Compute(mkEvents(10, "allow", score), 500, time.Minute)
		assert.Less(t, m.Mercy, prev, "mercy must decrease as avg score rises")
		prev = m.Mercy
	}
}

func TestJusticeClamped(t *testing.T) {
	// All blocked at a high score: nonAllowFraction + avg/12 far exceeds 1.
	m := Compute(mkEvents(40, "block", 11), 500, time.Minute)
	assert.Equal(t, 1.0, m.Justice)

	m = Compute(mkEvents(40, "allow", 0), 500, time.Minute)
	assert.Equal(t, 0.0, m.Justice)
}

func TestComputeDeterministic(t *testing.T) {
	events := append(mkEvents(25, "challenge", 3.7), mkEvents(13, "block", 9.2)...)

	first := Compute(events, 500, time.Minute)
	second := Compute(events, 500, time.Minute)
	assert.Equal(t, first, second, "recompute over an unchanged window must be bit-identical")
}

func TestEvidenceCountRounds(t *testing.T) {
	// n=10, avg=0.5 → EF = round(11.5) = 12 under round-half-away-from-zero.
	m := Compute(mkEvents(10, "allow", 0.5), 500, time.Minute)
	assert.Equal(t, 12, m.EvidenceCount)
}
