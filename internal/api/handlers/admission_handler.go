package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stygian-io/styx/internal/admission"
	"github.com/stygian-io/styx/internal/api/middleware"
	"github.com/stygian-io/styx/internal/clearance"
	"github.com/stygian-io/styx/internal/gate"
	"github.com/stygian-io/styx/internal/metrics"
)

// AdmissionHandler exposes the evaluation boundary for edge callers that do
// their own enforcement: features in, verdict out.
type AdmissionHandler struct {
	registry *admission.Registry
	g        *gate.Gate
	issuer   *clearance.Issuer
}

// NewAdmissionHandler creates a new AdmissionHandler.
func NewAdmissionHandler(registry *admission.Registry, g *gate.Gate, issuer *clearance.Issuer) *AdmissionHandler {
	return &AdmissionHandler{registry: registry, g: g, issuer: issuer}
}

type evaluateRequest struct {
	IP             string `json:"ip" binding:"required"`
	ASN            uint   `json:"asn"`
	Country        string `json:"country"`
	UserAgent      string `json:"user_agent"`
	Path           string `json:"path" binding:"required"`
	Method         string `json:"method" binding:"required"`
	ClearanceToken string `json:"clearance_token"`
}

// Evaluate scores one request's features and returns the verdict. The
// verdict event is emitted asynchronously as a side effect.
func (h *AdmissionHandler) Evaluate(c *gin.Context) {
	var body evaluateRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid evaluate request: " + err.Error()})
		return
	}

	req := admission.Request{
		IP:        body.IP,
		ASN:       body.ASN,
		UserAgent: body.UserAgent,
		Path:      body.Path,
		Method:    body.Method,
		Trusted:   h.issuer.Validate(body.ClearanceToken, body.IP, body.ASN) == nil,
	}

	verdict := h.registry.Evaluate(req)
	metrics.IncVerdict(string(verdict.Action))

	entry := middleware.GetRequestLogger(c)
	entry.WithFields(map[string]interface{}{
		"ip":     req.IP,
		"asn":    req.ASN,
		"action": verdict.Action,
		"score":  verdict.Score,
		"hits":   verdict.Hits,
	}).Debug("evaluated request")

	h.g.Emit(c, req, body.Country, verdict)

	c.JSON(http.StatusOK, verdict)
}
