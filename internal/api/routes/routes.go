package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stygian-io/styx/internal/admission"
	"github.com/stygian-io/styx/internal/api/handlers"
	"github.com/stygian-io/styx/internal/challenge"
	"github.com/stygian-io/styx/internal/clearance"
	"github.com/stygian-io/styx/internal/gate"
	"github.com/stygian-io/styx/internal/services"
)

// Deps bundles the shared components the route handlers need.
type Deps struct {
	Registry *admission.Registry
	Gate     *gate.Gate
	Issuer   *clearance.Issuer
	Verifier challenge.Verifier
	Cases    *services.CaseService

	ClearanceTTLSecs int
	PromRegistry     *prometheus.Registry

	// Upstream handles requests that pass the gate. Defaults to 204.
	Upstream gin.HandlerFunc
}

// Register wires up the API routes.
func Register(router *gin.Engine, d Deps) {
	admissionHandler := handlers.NewAdmissionHandler(d.Registry, d.Gate, d.Issuer)
	challengeHandler := handlers.NewChallengeHandler(d.Verifier, d.Issuer, d.ClearanceTTLSecs)
	caseHandler := handlers.NewCaseHandler(d.Cases)
	healthHandler := handlers.NewHealthHandler()

	router.GET("/healthz", healthHandler.Get)

	if d.PromRegistry != nil {
		router.GET("/metrics", gin.WrapH(
			promhttp.HandlerFor(d.PromRegistry, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	{
		v1.POST("/evaluate", admissionHandler.Evaluate)
		v1.POST("/challenge/verify", challengeHandler.Solve)

		v1.GET("/cases", caseHandler.List)
		v1.GET("/cases/:uuid", caseHandler.Get)
		v1.GET("/cases/:uuid/events", caseHandler.Events)
		v1.GET("/cases/:uuid/report", caseHandler.Report)
	}

	// Everything under /gate/ is enforced inline: the verdict is applied to
	// the request itself instead of being returned to a cooperating edge.
	upstream := d.Upstream
	if upstream == nil {
		upstream = func(c *gin.Context) { c.Status(http.StatusNoContent) }
	}
	enforced := router.Group("/gate")
	enforced.Use(d.Gate.Middleware())
	enforced.Any("/*path", upstream)
}
