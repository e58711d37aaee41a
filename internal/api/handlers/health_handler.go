package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stygian-io/styx/internal/version"
)

// HealthHandler reports process liveness.
type HealthHandler struct{}

// NewHealthHandler creates a new HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Get returns the service status and version.
func (h *HealthHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"name":    version.Name,
		"version": version.Full(),
	})
}
