package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pulseboard/pulseboard/backend/internal/api/middleware"
	"github.com/pulseboard/pulseboard/backend/internal/api/routes"
	"github.com/pulseboard/pulseboard/backend/internal/cache"
	"github.com/pulseboard/pulseboard/backend/internal/config"
	"github.com/pulseboard/pulseboard/backend/internal/database"
	"github.com/pulseboard/pulseboard/backend/internal/events"
	"github.com/pulseboard/pulseboard/backend/internal/jobs"
	"github.com/pulseboard/pulseboard/backend/internal/logger"
	"github.com/pulseboard/pulseboard/backend/internal/server"
	"github.com/pulseboard/pulseboard/backend/internal/version"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Handle CLI commands
	if len(os.Args) > 1 && os.Args[1] == "issue-token" {
		issueToken(cfg, os.Args[2:])
		return
	}

	// Log to both stdout and a rotated file
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		log.Fatalf("create log directory: %v", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.LogDir, "pulseboard.log"),
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
		Compress:   true,
	}
	mw := io.MultiWriter(os.Stdout, rotator)
	log.SetOutput(mw)
	logger.Init(cfg.Debug, mw)

	logger.Log().Infof("starting %s backend on version %s", version.Name, version.Full())

	db, err := database.Open(cfg.DatabaseDSN)
	if err != nil {
		logger.Log().WithError(err).Fatal("connect database")
	}
	if err := database.Migrate(db); err != nil {
		logger.Log().WithError(err).Fatal("migrate database")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store cache.Store = cache.Noop{}
	if cfg.RedisAddr != "" {
		if rs, err := cache.NewRedisStore(ctx, cfg.RedisAddr, cfg.Uptime.HistoryCacheTTL); err != nil {
			logger.Log().WithError(err).Warn("redis unavailable, uptime history cache disabled")
		} else {
			store = rs
		}
	}
	defer store.Close()

	var publisher events.Publisher = events.Noop{}
	if cfg.NATSURL != "" {
		if np, err := events.NewNATSPublisher(cfg.NATSURL); err != nil {
			logger.Log().WithError(err).Warn("NATS unavailable, status events disabled")
		} else {
			publisher = np
		}
	}
	defer publisher.Close()

	svc := routes.NewServices(db, cfg, routes.Options{Store: store, Publisher: publisher})

	runner, err := jobs.New(svc.Recorder, svc.Maintenance, cfg.Uptime, cfg.Location())
	if err != nil {
		logger.Log().WithError(err).Fatal("configure background jobs")
	}

	srv, err := server.New(svc, cfg)
	if err != nil {
		logger.Log().WithError(err).Fatal("build server")
	}

	svc.Scheduler.Start(ctx)
	runner.Start(ctx)

	logger.Log().WithField("port", cfg.HTTPPort).Infof("starting %s backend", version.Name)
	if err := srv.Run(ctx); err != nil {
		logger.Log().WithError(err).Error("server error")
	}

	logger.Log().Info("shutting down")
	svc.Scheduler.Stop()
	<-runner.Stop().Done()
	svc.Notifications.Wait()
}

// issueToken prints an access token: issue-token <subject> <admin|viewer> [organization] [ttl].
func issueToken(cfg config.Config, args []string) {
	if len(args) < 2 {
		log.Fatalf("Usage: %s issue-token <subject> <admin|viewer> [organization] [ttl]", os.Args[0])
	}
	if cfg.JWTSecret == "" {
		log.Fatal("PULSE_JWT_SECRET must be set")
	}
	role := args[1]
	if role != middleware.RoleAdmin && role != middleware.RoleViewer {
		log.Fatalf("unknown role %q", role)
	}
	org := ""
	if len(args) > 2 {
		org = args[2]
	}
	ttl := 24 * time.Hour
	if len(args) > 3 {
		d, err := time.ParseDuration(args[3])
		if err != nil {
			log.Fatalf("invalid ttl: %v", err)
		}
		ttl = d
	}

	token, err := middleware.NewTokenVerifier(cfg.JWTSecret).Issue(args[0], role, org, ttl)
	if err != nil {
		log.Fatalf("issue token: %v", err)
	}
	fmt.Println(token)
}
