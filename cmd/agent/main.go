package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"whipcast/internal/core/domain"
	"whipcast/internal/core/services"
	httphandlers "whipcast/internal/handlers/http"
	backupsched "whipcast/internal/infrastructure/backup"
	"whipcast/internal/infrastructure/control"
	"whipcast/internal/infrastructure/distributed"
	"whipcast/internal/infrastructure/events"
	"whipcast/internal/infrastructure/media"
	"whipcast/internal/infrastructure/middleware"
	"whipcast/internal/infrastructure/monitoring"
	repositories "whipcast/internal/infrastructure/repositories"
	signalws "whipcast/internal/infrastructure/signal"
	"whipcast/internal/infrastructure/whip"
	"whipcast/pkg/backup"
	"whipcast/pkg/config"
	"whipcast/pkg/logger"
	"whipcast/pkg/tracing"
	"whipcast/pkg/utils"

	"github.com/gin-gonic/gin"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/whipcast/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	logSugar := zapLogger.Sugar()

	// Initialize tracing
	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "whipcast-agent",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logSugar.Fatalw("failed to initialize tracing", "error", err)
	}

	roomID := domain.RoomID(cfg.Agent.RoomID)

	// Initialize repository factory (Redis with memory fallback)
	repoFactory, err := repositories.NewRepositoryFactory(cfg, logSugar)
	if err != nil {
		logSugar.Fatalw("failed to create repository factory", "error", err)
	}
	sessionRepo := repoFactory.CreateSessionRepository()

	// Backend clients
	controlClient, err := control.NewClient(cfg.Control.BaseURL, cfg.Control.APIToken, cfg.Control.RequestTimeout, logger.Named(zapLogger, "control"))
	if err != nil {
		logSugar.Fatalw("failed to create control client", "error", err)
	}
	ingestClient, err := whip.NewClient(cfg.WHIP.BaseURL, cfg.Control.RequestTimeout, logger.Named(zapLogger, "whip"))
	if err != nil {
		logSugar.Fatalw("failed to create whip client", "error", err)
	}

	// Monitoring
	var collector *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector()
	}
	healthChecker := monitoring.NewHealthChecker()
	healthChecker.Register("store", func(ctx context.Context) error {
		return repoFactory.HealthCheck(ctx)
	})

	// Event bus and media source
	bus := events.NewBus(logger.Named(zapLogger, "events"))

	// Background workers (event relay, snapshot scheduler) stop on shutdown.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	// Mirror lifecycle events onto Redis pub/sub when Redis is available.
	if client := repoFactory.RedisClient(); client != nil {
		relay := distributed.NewEventRelay(client, bus, utils.GenerateInstanceID(), logger.Named(zapLogger, "relay"))
		go relay.Run(bgCtx)
	}

	mediaSource := media.NewRTPSource(
		cfg.Media.VideoListenAddress,
		cfg.Media.AudioListenAddress,
		cfg.Media.AudioEnabled,
		logger.Named(zapLogger, "media"),
		collector.RecordRTPPacket,
	)

	// Services
	publishService := services.NewPublishService(controlClient, ingestClient, sessionRepo, mediaSource, cfg, collector, logger.Named(zapLogger, "publish"))
	heartbeatService := services.NewHeartbeatService(controlClient, cfg.Heartbeat.Interval, collector, bus, logger.Named(zapLogger, "heartbeat"))
	manager := services.NewPublisherManager(publishService, heartbeatService, collector, bus, logger.Named(zapLogger, "manager"))
	resumeService := services.NewResumeService(
		sessionRepo, controlClient, ingestClient, manager,
		cfg.Resume.Enabled, cfg.Resume.SessionTTL,
		collector, bus, logger.Named(zapLogger, "resume"),
	)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Periodic session snapshots to local disk.
	var backupScheduler *backupsched.Scheduler
	if cfg.Backup.Enabled {
		storage, err := backup.NewFileStorage(cfg.Backup.Directory)
		if err != nil {
			logSugar.Fatalw("failed to create snapshot storage", "error", err)
		}
		snapshotService := backup.NewService(storage, "1.0.0")
		backupScheduler = backupsched.NewScheduler(
			snapshotService, sessionRepo, roomID,
			backupsched.Config{Interval: cfg.Backup.Interval, RetentionDays: cfg.Backup.RetentionDays},
			logger.Named(zapLogger, "backup"),
		)
		go backupScheduler.Start(bgCtx)
	}

	// Classify this start before claiming the room, then run auto-resume.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	startKind := resumeService.DetectStartKind(startupCtx, roomID)
	logSugar.Infow("agent starting", "room_id", roomID, "start_kind", startKind.String())

	if err := sessionRepo.SaveRunMarker(startupCtx, roomID); err != nil {
		logSugar.Warnw("failed to save run marker", "error", err)
	}
	if err := resumeService.MaybeResume(startupCtx, roomID, startKind); err != nil {
		logSugar.Errorw("auto-resume failed", "error", err)
	}
	startupCancel()

	// HTTP control surface
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logSugar))
	router.Use(middleware.ErrorHandlerMiddleware(logSugar))
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}

	handler := httphandlers.NewPublisherHandler(manager, resumeService, healthChecker, roomID)
	handler.SetupRoutes(router, middleware.AuthMiddleware(authService))

	eventFeed := signalws.NewEventFeedServer(bus, logger.Named(zapLogger, "eventfeed"))
	router.GET("/ws/events", middleware.AuthMiddleware(authService), gin.WrapF(eventFeed.HandleWebSocket))

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logSugar.Infof("Starting whipcast agent API on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		logSugar.Fatalw("server failed", "error", err)
	case sig := <-sigChan:
		logSugar.Infow("received shutdown signal", "signal", sig)
	}

	logSugar.Info("shutting down whipcast agent...")

	bgCancel()
	if backupScheduler != nil {
		backupScheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Agent.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logSugar.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			logSugar.Errorw("error force closing server", "error", closeErr)
		}
	}

	// Stop any active publish so the backend sees a clean exit.
	if err := manager.Stop(shutdownCtx); err != nil && err != domain.ErrNotPublishing {
		logSugar.Warnw("failed to stop publish during shutdown", "error", err)
	}

	// A cleared run marker is what makes the next start a fresh one.
	if err := sessionRepo.ClearRunMarker(shutdownCtx, roomID); err != nil {
		logSugar.Warnw("failed to clear run marker", "error", err)
	}

	if err := repoFactory.Close(); err != nil {
		logSugar.Errorw("error closing repositories", "error", err)
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		logSugar.Errorw("error shutting down tracing", "error", err)
	}

	logSugar.Info("whipcast agent stopped")
}
