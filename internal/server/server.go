package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/stygian-io/styx/internal/admission"
	"github.com/stygian-io/styx/internal/aggregate"
	"github.com/stygian-io/styx/internal/api/middleware"
	"github.com/stygian-io/styx/internal/api/routes"
	"github.com/stygian-io/styx/internal/challenge"
	"github.com/stygian-io/styx/internal/clearance"
	"github.com/stygian-io/styx/internal/config"
	"github.com/stygian-io/styx/internal/database"
	"github.com/stygian-io/styx/internal/gate"
	"github.com/stygian-io/styx/internal/ingest"
	"github.com/stygian-io/styx/internal/logger"
	"github.com/stygian-io/styx/internal/metrics"
	"github.com/stygian-io/styx/internal/report"
	"github.com/stygian-io/styx/internal/services"
)

// Server wraps the HTTP engine, the ingestion pipeline, and the background
// schedulers so they start and stop together.
type Server struct {
	Engine *gin.Engine

	cfg      config.Config
	registry *admission.Registry
	pipeline *ingest.Pipeline
	cron     *cron.Cron
}

// New wires every component together and registers routes.
func New(db *gorm.DB, cfg config.Config) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	if cfg.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}

	if err := database.Migrate(db); err != nil {
		return nil, err
	}

	promRegistry := prometheus.NewRegistry()
	metrics.Register(promRegistry)

	caseSvc := services.NewCaseService(db)
	deadLetterSvc := services.NewDeadLetterService(db)
	notifier := services.NewNotifierService(cfg.NotifyURLs)

	engine := aggregate.NewEngine(caseSvc, report.NewGenerator(), notifier, cfg.CapacityRPS, cfg.AggWindow)
	pipeline := ingest.NewPipeline(caseSvc, deadLetterSvc, engine,
		cfg.IngestWorkers, cfg.IngestQueueSize, cfg.IngestMaxAttempts)

	registry := admission.NewRegistry(cfg.HitWindow, cfg.ActorTTL)
	issuer := clearance.NewIssuer(cfg.ClearanceSecret, cfg.ClearanceTTL)

	var verifier challenge.Verifier
	if cfg.ChallengeVerifyURL != "" {
		verifier = challenge.NewHTTPVerifier(cfg.ChallengeVerifyURL, cfg.ChallengeSecret)
	} else {
		// No verifier configured: every solve attempt is inconclusive, so
		// clients keep seeing the challenge. Fail-safe, never fail-open.
		verifier = challenge.VerifierFunc(func(ctx context.Context, token, ip string) (bool, error) {
			return false, challenge.ErrVerifierUnavailable
		})
	}

	g := gate.New(registry, pipeline, issuer, cfg)

	router := gin.New()
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Recovery(cfg.Environment == "development"))

	routes.Register(router, routes.Deps{
		Registry:         registry,
		Gate:             g,
		Issuer:           issuer,
		Verifier:         verifier,
		Cases:            caseSvc,
		ClearanceTTLSecs: int(cfg.ClearanceTTL.Seconds()),
		PromRegistry:     promRegistry,
	})

	c := cron.New()
	if _, err := c.AddFunc("@every 1m", func() {
		removed := registry.Sweep()
		metrics.SetActorStates(registry.Len())
		if removed > 0 {
			logger.WithComponent("admission").Debugf("swept %d idle actor states", removed)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule actor sweep: %w", err)
	}
	if _, err := c.AddFunc("@every 5m", func() {
		if replayed, err := pipeline.DrainDeadLetters(100); err != nil {
			logger.WithComponent("ingest").Warnf("dead letter drain failed: %v", err)
		} else if replayed > 0 {
			logger.WithComponent("ingest").Infof("replayed %d dead letters", replayed)
		}
	}); err != nil {
		return nil, fmt.Errorf("schedule dead letter drain: %w", err)
	}

	return &Server{
		Engine:   router,
		cfg:      cfg,
		registry: registry,
		pipeline: pipeline,
		cron:     c,
	}, nil
}

// Run starts the pipeline, schedulers and HTTP server, and tears everything
// down in order when ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	s.pipeline.Start()
	s.cron.Start()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", s.cfg.HTTPPort),
		Handler: s.Engine,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)

		<-s.cron.Stop().Done()
		s.pipeline.Shutdown()

		if err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		s.cron.Stop()
		s.pipeline.Shutdown()

		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
