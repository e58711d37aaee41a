package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stygian-io/styx/internal/api/middleware"
	"github.com/stygian-io/styx/internal/challenge"
	"github.com/stygian-io/styx/internal/clearance"
	"github.com/stygian-io/styx/internal/gate"
	"github.com/stygian-io/styx/internal/metrics"
)

// ChallengeHandler verifies solved challenges and mints clearance tokens.
type ChallengeHandler struct {
	verifier challenge.Verifier
	issuer   *clearance.Issuer
	ttlSecs  int
}

// NewChallengeHandler creates a new ChallengeHandler. ttlSecs bounds the
// clearance cookie lifetime.
func NewChallengeHandler(verifier challenge.Verifier, issuer *clearance.Issuer, ttlSecs int) *ChallengeHandler {
	return &ChallengeHandler{verifier: verifier, issuer: issuer, ttlSecs: ttlSecs}
}

type solveRequest struct {
	Token string `json:"token" binding:"required"`
	ASN   uint   `json:"asn"`
}

// Solve validates a challenge response. Success mints a clearance token and
// sets it as a cookie. A verifier failure is inconclusive: the client is
// told to retry the challenge, never escalated.
func (h *ChallengeHandler) Solve(c *gin.Context) {
	var body solveRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid challenge response: " + err.Error()})
		return
	}

	ip := c.ClientIP()

	ok, err := h.verifier.Verify(c.Request.Context(), body.Token, ip)
	if err != nil {
		metrics.IncChallengeVerification("error")
		middleware.GetRequestLogger(c).Warnf("challenge verification failed: %v", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success":   false,
			"retry":     true,
			"challenge": true,
		})
		return
	}
	if !ok {
		metrics.IncChallengeVerification("rejected")
		c.JSON(http.StatusForbidden, gin.H{
			"success":   false,
			"challenge": true,
		})
		return
	}

	metrics.IncChallengeVerification("success")

	token, err := h.issuer.Issue(ip, body.ASN)
	if err != nil {
		middleware.GetRequestLogger(c).Errorf("clearance issue failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "clearance unavailable"})
		return
	}

	c.SetCookie(gate.ClearanceCookie, token, h.ttlSecs, "/", "", false, true)
	c.JSON(http.StatusOK, gin.H{"success": true, "clearance_token": token})
}
