package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/jwalitptl/carebook/internal/config"
	"github.com/jwalitptl/carebook/internal/email"
	"github.com/jwalitptl/carebook/internal/handler/health"
	"github.com/jwalitptl/carebook/internal/handler/prometheus"
	"github.com/jwalitptl/carebook/internal/middleware"
	"github.com/jwalitptl/carebook/internal/repository/postgres"
	appointmentService "github.com/jwalitptl/carebook/internal/service/appointment"
	auditService "github.com/jwalitptl/carebook/internal/service/audit"
	notificationService "github.com/jwalitptl/carebook/internal/service/notification"
	sweeper "github.com/jwalitptl/carebook/internal/worker"
	"github.com/jwalitptl/carebook/pkg/logger"
	"github.com/jwalitptl/carebook/pkg/messaging/redis"
	"github.com/jwalitptl/carebook/pkg/metrics"
	"github.com/jwalitptl/carebook/pkg/worker"
)

func main() {
	// Load config
	cfg, err := config.Load(os.Getenv("CAREBOOK_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatal().Str("driver", cfg.Database.Driver).Msg("Worker requires the postgres driver")
	}
	l := logger.Setup(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := postgres.NewDB(ctx, cfg.Database.Config)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	repos := postgres.NewRepositories(db)

	// Initialize Redis broker
	broker, err := redis.NewRedisBroker(ctx, cfg.Redis, *l.Zerolog())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Redis broker")
	}
	defer broker.Close()

	m := metrics.New("carebook_worker", nil)

	// Initialize and start outbox processor
	processor, err := worker.NewOutboxProcessor(repos.Outbox, broker, cfg.Outbox, l, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create outbox processor")
	}

	auditSvc := auditService.NewService(repos.Audit)
	notifier := notificationService.NewService(repos.Notifications, repos.Users, email.NewService(cfg.Email), m, cfg.Notifications)
	appointments, err := appointmentService.NewService(repos.Appointments, repos.Users, notifier, auditSvc, m, cfg.Scheduling)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create appointment service")
	}

	// Setup health check and metrics endpoints
	srv := setupMonitoring(cfg.Worker.MetricsPort, map[string]health.Pinger{
		"database": db,
		"redis":    health.PingFunc(broker.Ping),
	})

	var wg sync.WaitGroup
	run := func(start func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start(ctx)
		}()
	}
	run(processor.Start)
	run(sweeper.NewCompletionSweeper(appointments, cfg.Worker.SweepInterval, cfg.Worker.CompletionGrace, cfg.Worker.SweepBatch).Start)
	run(sweeper.NewOutboxCleanupWorker(processor, cfg.Worker.CleanupInterval).Start)

	<-ctx.Done()
	log.Info().Msg("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Monitoring server forced to shutdown")
	}
	wg.Wait()
	log.Info().Msg("Worker stopped")
}

func setupMonitoring(port int, checks map[string]health.Pinger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(middleware.Recovery())
	group := engine.Group("")
	health.NewHandler(checks).RegisterRoutes(group)
	prometheus.New(nil).RegisterRoutes(group)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: engine,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Health check server failed")
		}
	}()
	return srv
}
