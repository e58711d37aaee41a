package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stygian-io/styx/internal/services"
)

// CaseHandler serves the case and evidence read API.
type CaseHandler struct {
	cases *services.CaseService
}

// NewCaseHandler creates a new CaseHandler.
func NewCaseHandler(cases *services.CaseService) *CaseHandler {
	return &CaseHandler{cases: cases}
}

// List returns cases ordered by most recent activity.
func (h *CaseHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	cases, err := h.cases.ListCases(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list cases failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cases": cases})
}

// Get returns one case by UUID.
func (h *CaseHandler) Get(c *gin.Context) {
	kase, err := h.cases.GetCase(c.Param("uuid"))
	if err != nil {
		if errors.Is(err, services.ErrCaseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load case failed"})
		return
	}
	c.JSON(http.StatusOK, kase)
}

// Events returns a case's most recent event trail.
func (h *CaseHandler) Events(c *gin.Context) {
	kase, err := h.cases.GetCase(c.Param("uuid"))
	if err != nil {
		if errors.Is(err, services.ErrCaseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load case failed"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "200"))
	events, err := h.cases.ListEvents(kase.ID, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list events failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"case": kase.UUID, "events": events})
}

// Report returns the materialized artifacts, or 404 when the case has not
// crossed the materialization trigger yet.
func (h *CaseHandler) Report(c *gin.Context) {
	kase, err := h.cases.GetCase(c.Param("uuid"))
	if err != nil {
		if errors.Is(err, services.ErrCaseNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "case not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load case failed"})
		return
	}

	if kase.AbuseReport == nil && kase.Section504Draft == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no artifacts materialized for this case"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"case":             kase.UUID,
		"abuse_report":     kase.AbuseReport,
		"section504_draft": kase.Section504Draft,
	})
}
