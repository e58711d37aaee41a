// Package gate is the inline enforcement facade: it runs every proxied
// request through the admission actor and applies the verdict on the spot,
// while emitting the verdict event to the ingestion pipeline.
package gate

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stygian-io/styx/internal/admission"
	"github.com/stygian-io/styx/internal/clearance"
	"github.com/stygian-io/styx/internal/config"
	"github.com/stygian-io/styx/internal/ingest"
	"github.com/stygian-io/styx/internal/logger"
	"github.com/stygian-io/styx/internal/metrics"
	"github.com/stygian-io/styx/internal/tarpit"
)

// ClearanceCookie carries the signed clearance token on returning clients.
const ClearanceCookie = "styx_clearance"

// VerdictContextKey exposes the applied action to later middleware (request
// logging picks it up).
const VerdictContextKey = "verdict"

// Gate wires the admission actor, clearance check, tarpit and event emission
// into one gin middleware.
type Gate struct {
	registry *admission.Registry
	pipeline *ingest.Pipeline
	issuer   *clearance.Issuer
	dripper  *tarpit.Dripper

	zone string
	colo string

	log *logrus.Entry
}

// New builds a Gate from the shared components.
func New(registry *admission.Registry, pipeline *ingest.Pipeline, issuer *clearance.Issuer, cfg config.Config) *Gate {
	return &Gate{
		registry: registry,
		pipeline: pipeline,
		issuer:   issuer,
		dripper:  tarpit.New(cfg.TarpitDuration, cfg.TarpitInterval),
		zone:     cfg.Zone,
		colo:     cfg.Colo,
		log:      logger.WithComponent("gate"),
	}
}

// Features extracts the admission request features from an inbound request.
// ASN and country come from edge-provided headers; feature extraction beyond
// that is the edge's job, not ours.
func (g *Gate) Features(c *gin.Context) (admission.Request, string) {
	asn := parseASN(c.GetHeader("X-Styx-ASN"))
	country := c.GetHeader("X-Styx-Country")

	req := admission.Request{
		IP:        c.ClientIP(),
		ASN:       asn,
		UserAgent: c.Request.UserAgent(),
		Path:      c.Request.URL.Path,
		Method:    c.Request.Method,
	}

	if token, err := c.Cookie(ClearanceCookie); err == nil {
		req.Trusted = g.issuer.Validate(token, req.IP, req.ASN) == nil
	}

	return req, country
}

// Middleware evaluates and enforces the verdict for every request it wraps.
func (g *Gate) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		req, country := g.Features(c)

		verdict := g.registry.Evaluate(req)
		metrics.IncVerdict(string(verdict.Action))
		c.Set(VerdictContextKey, string(verdict.Action))

		g.Emit(c, req, country, verdict)

		switch verdict.Action {
		case admission.ActionAllow:
			c.Next()

		case admission.ActionChallenge:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":     "challenge required",
				"challenge": true,
			})

		case admission.ActionTarpit:
			c.Status(http.StatusOK)
			if err := g.dripper.Serve(c.Request.Context(), c.Writer); err != nil {
				g.log.WithField("ip", req.IP).Debugf("tarpit ended early: %v", err)
			}
			c.Abort()

		case admission.ActionBlock:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "blocked"})
		}
	}
}

// Emit publishes the verdict event for asynchronous ingestion. A full queue
// or closed pipeline is logged and counted; the synchronous verdict already
// stands regardless.
func (g *Gate) Emit(c *gin.Context, req admission.Request, country string, verdict admission.Verdict) {
	evt := ingest.VerdictEvent{
		TS:        time.Now(),
		IP:        req.IP,
		ASN:       req.ASN,
		Country:   country,
		UserAgent: req.UserAgent,
		Path:      req.Path,
		Method:    req.Method,
		Action:    string(verdict.Action),
		Score:     verdict.Score,
		Hits:      verdict.Hits,
		Zone:      g.zone,
		Colo:      g.colo,
	}

	if err := g.pipeline.Publish(c.Request.Context(), evt); err != nil {
		g.log.WithField("ip", req.IP).Warnf("verdict event dropped: %v", err)
	}
}

func parseASN(raw string) uint {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0
	}
	return uint(n)
}
