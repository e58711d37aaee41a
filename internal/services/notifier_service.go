package services

import (
	"fmt"
	"strings"

	"github.com/containrrr/shoutrrr"

	"github.com/stygian-io/styx/internal/logger"
)

// NotifierService pushes case materialization notices to external channels
// via shoutrrr provider URLs. An empty URL list disables it.
type NotifierService struct {
	urls []string
}

// NewNotifierService parses a comma-separated list of shoutrrr URLs.
func NewNotifierService(rawURLs string) *NotifierService {
	var urls []string
	for _, u := range strings.Split(rawURLs, ",") {
		u = strings.TrimSpace(u)
		if u != "" {
			urls = append(urls, u)
		}
	}
	return &NotifierService{urls: urls}
}

// CaseMaterialized announces that a case crossed the evidence threshold and
// has fresh report artifacts. Delivery failures are logged, never fatal.
func (s *NotifierService) CaseMaterialized(caseUUID, key string, evidence int, af, bof float64) {
	if len(s.urls) == 0 {
		return
	}

	msg := fmt.Sprintf("Styx case %s (%s) materialized: evidence=%d AF=%.3f BoF=%.3f",
		caseUUID, key, evidence, af, bof)

	for _, u := range s.urls {
		if err := shoutrrr.Send(u, msg); err != nil {
			logger.WithFields(map[string]interface{}{
				"case": caseUUID,
			}).Warnf("notification send failed: %v", err)
		}
	}
}
