// Package aggregate turns a case's trailing event window into attack/defense
// force metrics and decides when to materialize report artifacts.
package aggregate

import (
	"math"
	"time"

	"github.com/stygian-io/styx/internal/admission"
	"github.com/stygian-io/styx/internal/models"
)

// Defense weights per mitigating action. An allow contributes nothing.
const (
	weightChallenge = 0.6
	weightTarpit    = 0.9
	weightBlock     = 1.0
)

// avgRequestBytes is the assumed mean request size used for the bandwidth
// estimate (~2KB per request).
const avgRequestBytes = 2048

// Metrics is one deterministic snapshot of a case's trailing window.
type Metrics struct {
	WindowEvents int
	AvgScore     float64

	Allowed    int
	Challenged int
	Tarpitted  int
	Blocked    int

	AttackRPS         float64
	EstBandwidthMbps  float64
	SystemCapacityRPS float64
	AttackForce       float64
	DefenseForce      float64
	BalanceOfForce    float64
	EvidenceCount     int
	Mercy             float64
	Justice           float64
}

// Compute derives the full metric set from the events of one window. It is a
// pure function: identical inputs produce bit-identical outputs.
func Compute(events []models.Event, capacityRPS float64, window time.Duration) Metrics {
	m := Metrics{SystemCapacityRPS: capacityRPS}

	windowSec := window.Seconds()
	if windowSec <= 0 {
		windowSec = 60
	}

	var scoreSum float64
	for _, ev := range events {
		scoreSum += ev.Score
		switch admission.Action(ev.Action) {
		case admission.ActionAllow:
			m.Allowed++
		case admission.ActionChallenge:
			m.Challenged++
		case admission.ActionTarpit:
			m.Tarpitted++
		case admission.ActionBlock:
			m.Blocked++
		}
	}

	n := len(events)
	m.WindowEvents = n
	if n > 0 {
		m.AvgScore = scoreSum / float64(n)
	}

	m.AttackRPS = float64(n) / windowSec
	// rps * 2KB * 8 bits, folded down to Mbit: (rps * 2 * 8) / 1024.
	m.EstBandwidthMbps = m.AttackRPS * avgRequestBytes * 8 / 1048576

	if capacityRPS > 0 {
		m.AttackForce = m.AttackRPS / capacityRPS
	}

	weighted := float64(m.Challenged)*weightChallenge +
		float64(m.Tarpitted)*weightTarpit +
		float64(m.Blocked)*weightBlock
	m.DefenseForce = weighted / windowSec

	if m.AttackForce > 0 {
		m.BalanceOfForce = m.DefenseForce / m.AttackForce
	} else {
		m.BalanceOfForce = 1
	}

	m.EvidenceCount = int(math.Round(float64(n) + m.AvgScore*3))

	m.Mercy = 1 / (1 + math.Exp(m.AvgScore-6))

	var nonAllowFraction float64
	if n > 0 {
		nonAllowFraction = float64(m.Challenged+m.Tarpitted+m.Blocked) / float64(n)
	}
	m.Justice = clamp01(nonAllowFraction + m.AvgScore/12)

	return m
}

// ShouldMaterialize reports whether this window's metrics warrant updating
// the case snapshot and generating report artifacts.
func (m Metrics) ShouldMaterialize() bool {
	return m.EvidenceCount >= 50 || m.AttackForce >= 1 || m.BalanceOfForce < 1
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
