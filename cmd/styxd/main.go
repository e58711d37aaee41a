package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/stygian-io/styx/internal/config"
	"github.com/stygian-io/styx/internal/database"
	"github.com/stygian-io/styx/internal/logger"
	"github.com/stygian-io/styx/internal/server"
	"github.com/stygian-io/styx/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Logging with rotation, next to the database.
	logDir := filepath.Join(filepath.Dir(cfg.DatabasePath), "logs")
	_ = os.MkdirAll(logDir, 0o755)

	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "styxd.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotator)
	logger.Init(cfg.Environment == "development", mw)
	log.SetOutput(mw)

	logger.Log().Infof("starting %s %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}

	srv, err := server.New(db, cfg)
	if err != nil {
		log.Fatalf("build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Log().Infof("listening on :%s (zone %s)", cfg.HTTPPort, cfg.Zone)
	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}

	logger.Log().Info("shutdown complete")
}
