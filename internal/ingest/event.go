package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/stygian-io/styx/internal/admission"
	"github.com/stygian-io/styx/internal/models"
)

// ErrMalformedEvent marks a verdict event that failed validation. Such
// events are dead-lettered, never partially inserted.
var ErrMalformedEvent = errors.New("malformed verdict event")

// VerdictEvent is the wire schema of one asynchronously emitted verdict.
type VerdictEvent struct {
	TS        time.Time `json:"ts"`
	IP        string    `json:"ip"`
	ASN       uint      `json:"asn"`
	Country   string    `json:"country"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	Action    string    `json:"action"`
	Score     float64   `json:"score"`
	Hits      int       `json:"hits"`
	Zone      string    `json:"zone"`
	Colo      string    `json:"colo"`
}

// CaseKey derives the owning case key.
func (v VerdictEvent) CaseKey() string {
	return models.CaseKey(v.Zone, v.IP, v.ASN)
}

// Validate rejects events that cannot become a well-formed row.
func (v VerdictEvent) Validate() error {
	switch {
	case v.IP == "":
		return fmt.Errorf("%w: missing ip", ErrMalformedEvent)
	case v.Zone == "":
		return fmt.Errorf("%w: missing zone", ErrMalformedEvent)
	case v.TS.IsZero():
		return fmt.Errorf("%w: missing ts", ErrMalformedEvent)
	case !admission.ValidAction(v.Action):
		return fmt.Errorf("%w: unknown action %q", ErrMalformedEvent, v.Action)
	case v.Score < 0:
		return fmt.Errorf("%w: negative score", ErrMalformedEvent)
	case v.Hits < 0:
		return fmt.Errorf("%w: negative hits", ErrMalformedEvent)
	}
	return nil
}

// Row converts the event into its persisted form. CaseID is set on append.
func (v VerdictEvent) Row() *models.Event {
	return &models.Event{
		TS:        v.TS,
		Path:      v.Path,
		Method:    v.Method,
		UserAgent: v.UserAgent,
		Action:    v.Action,
		Score:     v.Score,
		Hits:      v.Hits,
		Colo:      v.Colo,
	}
}
