package aggregate

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/stygian-io/styx/internal/logger"
	"github.com/stygian-io/styx/internal/metrics"
	"github.com/stygian-io/styx/internal/models"
	"github.com/stygian-io/styx/internal/services"
)

// Renderer produces the abuse report and section 504 draft texts for a case
// from its computed metrics.
type Renderer interface {
	Render(c *models.Case, m Metrics) (abuseReport, section504 string, err error)
}

// Notifier is told when a case materializes fresh artifacts. Implementations
// must not block for long; delivery failures are theirs to handle.
type Notifier interface {
	CaseMaterialized(caseUUID, key string, evidence int, af, bof float64)
}

// Engine recomputes a case's windowed metrics from the persisted event log
// and materializes the snapshot when the trigger policy fires.
//
// Recompute always reads the authoritative event rows rather than keeping a
// running total, so events that arrived out of timestamp order are folded in
// correctly. Callers must serialize Recompute per case; the ingestion
// pipeline does this by sharding events onto workers by case key.
type Engine struct {
	cases    *services.CaseService
	renderer Renderer
	notifier Notifier

	capacityRPS float64
	window      time.Duration

	log *logrus.Entry
	now func() time.Time
}

// NewEngine builds an Engine. notifier may be nil.
func NewEngine(cases *services.CaseService, renderer Renderer, notifier Notifier, capacityRPS float64, window time.Duration) *Engine {
	return &Engine{
		cases:       cases,
		renderer:    renderer,
		notifier:    notifier,
		capacityRPS: capacityRPS,
		window:      window,
		log:         logger.WithComponent("aggregate"),
		now:         time.Now,
	}
}

// Recompute rebuilds the trailing window metrics for one case and, when the
// trigger condition holds, writes the snapshot and report artifacts in one
// atomic update. It returns the computed metrics for observability.
func (e *Engine) Recompute(c *models.Case) (Metrics, error) {
	now := e.now()
	from := now.Add(-e.window)

	events, err := e.cases.EventsInWindow(c.ID, from)
	if err != nil {
		return Metrics{}, fmt.Errorf("load event window: %w", err)
	}

	m := Compute(events, e.capacityRPS, e.window)
	metrics.IncRecompute()

	if !m.ShouldMaterialize() {
		return m, nil
	}

	abuse, s504, err := e.renderer.Render(c, m)
	if err != nil {
		return m, fmt.Errorf("render artifacts: %w", err)
	}

	snap := services.CaseSnapshot{
		AttackRPS:         m.AttackRPS,
		EstBandwidthMbps:  m.EstBandwidthMbps,
		SystemCapacityRPS: m.SystemCapacityRPS,
		AttackForce:       m.AttackForce,
		DefenseForce:      m.DefenseForce,
		BalanceOfForce:    m.BalanceOfForce,
		EvidenceCount:     m.EvidenceCount,
		Mercy:             m.Mercy,
		Justice:           m.Justice,
		AbuseReport:       abuse,
		Section504Draft:   s504,
	}
	if err := e.cases.UpdateSnapshot(c.ID, now, snap); err != nil {
		return m, fmt.Errorf("update snapshot: %w", err)
	}

	metrics.IncMaterialization()
	e.log.WithFields(logrus.Fields{
		"case":     c.UUID,
		"key":      c.Key,
		"events":   m.WindowEvents,
		"evidence": m.EvidenceCount,
		"af":       m.AttackForce,
		"bof":      m.BalanceOfForce,
	}).Info("case materialized")

	if e.notifier != nil {
		e.notifier.CaseMaterialized(c.UUID, c.Key, m.EvidenceCount, m.AttackForce, m.BalanceOfForce)
	}

	return m, nil
}
