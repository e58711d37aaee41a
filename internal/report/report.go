// Package report renders textual evidence artifacts from computed case
// metrics. It is pure formatting: nothing here queries or mutates state.
package report

import (
	"bytes"
	"fmt"
	"text/template"
	"time"

	"github.com/stygian-io/styx/internal/aggregate"
	"github.com/stygian-io/styx/internal/models"
)

// templateData is the flattened view handed to both templates.
type templateData struct {
	GeneratedAt string
	Key         string
	Zone        string
	IP          string
	ASN         uint
	Country     string
	FirstSeen   string
	LastSeen    string

	WindowEvents     int
	Allowed          int
	Challenged       int
	Tarpitted        int
	Blocked          int
	AvgScore         string
	AttackRPS        string
	EstBandwidthMbps string
	AttackForce      string
	DefenseForce     string
	BalanceOfForce   string
	EvidenceCount    int
	Mercy            string
	Justice          string

	Tone string
}

const abuseReportTemplate = `ABUSE REPORT — {{.Key}}
Generated: {{.GeneratedAt}}

Source IP {{.IP}} (AS{{.ASN}}{{if .Country}}, {{.Country}}{{end}}) has directed
sustained hostile traffic at zone "{{.Zone}}". First observed {{.FirstSeen}},
most recently {{.LastSeen}}.

Observed over the trailing measurement window:
  Requests:            {{.WindowEvents}} ({{.AttackRPS}} req/s, est. {{.EstBandwidthMbps}} Mbit/s)
  Challenged:          {{.Challenged}}
  Tarpitted:           {{.Tarpitted}}
  Blocked:             {{.Blocked}}
  Mean threat score:   {{.AvgScore}}
  Attack force:        {{.AttackForce}}
  Defense force:       {{.DefenseForce}}
  Balance of force:    {{.BalanceOfForce}}
  Evidence factor:     {{.EvidenceCount}}

{{if eq .Tone "escalate"}}The traffic pattern is consistent with a deliberate
denial-of-service attempt. We request immediate investigation of the customer
operating this address and confirmation of remediation.{{else}}The traffic
pattern may indicate a misconfigured client or compromised host. We request
investigation and, where appropriate, notification of the operator.{{end}}
`

const section504Template = `DRAFT — NOTICE OF NETWORK ABUSE (ref. case {{.Key}})
Prepared: {{.GeneratedAt}}

To the network operator of AS{{.ASN}}:

Between {{.FirstSeen}} and {{.LastSeen}}, address {{.IP}} transmitted
{{.WindowEvents}} requests in the most recent measurement window against
infrastructure in zone "{{.Zone}}", of which {{.Blocked}} were blocked and
{{.Tarpitted}} rate-constrained. The measured attack force was {{.AttackForce}}
against a defense force of {{.DefenseForce}} (balance {{.BalanceOfForce}}).

This notice preserves our rights to pursue remedies available under
applicable computer misuse and telecommunications statutes. Evidence factor
{{.EvidenceCount}} event records are retained and available on request.

{{if eq .Tone "escalate"}}Absent a substantive response within 7 days we will
escalate to the relevant abuse clearinghouses.{{else}}We would welcome your
cooperation in resolving this matter informally.{{end}}
`

// Generator renders both artifact templates. The zero value is not usable;
// construct with NewGenerator.
type Generator struct {
	abuse  *template.Template
	s504   *template.Template
	nowUTC func() time.Time
}

// NewGenerator parses the built-in templates.
func NewGenerator() *Generator {
	return &Generator{
		abuse:  template.Must(template.New("abuse").Parse(abuseReportTemplate)),
		s504:   template.Must(template.New("s504").Parse(section504Template)),
		nowUTC: func() time.Time { return time.Now().UTC() },
	}
}

// Render produces both artifacts for a case from its computed metrics. It
// satisfies aggregate.Renderer.
func (g *Generator) Render(c *models.Case, m aggregate.Metrics) (string, string, error) {
	// Low mercy plus high justice biases the language toward escalation.
	tone := "lenient"
	if m.Mercy < 0.5 && m.Justice > 0.5 {
		tone = "escalate"
	}

	data := templateData{
		GeneratedAt: g.nowUTC().Format(time.RFC3339),
		Key:         c.Key,
		Zone:        c.Zone,
		IP:          c.IP,
		ASN:         c.ASN,
		Country:     c.Country,
		FirstSeen:   c.FirstSeen.UTC().Format(time.RFC3339),
		LastSeen:    c.LastSeen.UTC().Format(time.RFC3339),

		WindowEvents:     m.WindowEvents,
		Allowed:          m.Allowed,
		Challenged:       m.Challenged,
		Tarpitted:        m.Tarpitted,
		Blocked:          m.Blocked,
		AvgScore:         fmt.Sprintf("%.2f", m.AvgScore),
		AttackRPS:        fmt.Sprintf("%.3f", m.AttackRPS),
		EstBandwidthMbps: fmt.Sprintf("%.3f", m.EstBandwidthMbps),
		AttackForce:      fmt.Sprintf("%.4f", m.AttackForce),
		DefenseForce:     fmt.Sprintf("%.4f", m.DefenseForce),
		BalanceOfForce:   fmt.Sprintf("%.4f", m.BalanceOfForce),
		EvidenceCount:    m.EvidenceCount,
		Mercy:            fmt.Sprintf("%.3f", m.Mercy),
		Justice:          fmt.Sprintf("%.3f", m.Justice),

		Tone: tone,
	}

	var abuse bytes.Buffer
	if err := g.abuse.Execute(&abuse, data); err != nil {
		return "", "", fmt.Errorf("render abuse report: %w", err)
	}

	var s504 bytes.Buffer
	if err := g.s504.Execute(&s504, data); err != nil {
		return "", "", fmt.Errorf("render section 504 draft: %w", err)
	}

	return abuse.String(), s504.String(), nil
}
