package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/carebook/internal/config"
	"github.com/jwalitptl/carebook/internal/email"
	appointmentHandler "github.com/jwalitptl/carebook/internal/handler/appointment"
	auditHandler "github.com/jwalitptl/carebook/internal/handler/audit"
	authHandler "github.com/jwalitptl/carebook/internal/handler/auth"
	communityHandler "github.com/jwalitptl/carebook/internal/handler/community"
	documentHandler "github.com/jwalitptl/carebook/internal/handler/document"
	"github.com/jwalitptl/carebook/internal/handler/health"
	notificationHandler "github.com/jwalitptl/carebook/internal/handler/notification"
	"github.com/jwalitptl/carebook/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/carebook/internal/handler/user"
	"github.com/jwalitptl/carebook/internal/middleware"
	"github.com/jwalitptl/carebook/internal/repository"
	"github.com/jwalitptl/carebook/internal/repository/memory"
	"github.com/jwalitptl/carebook/internal/repository/postgres"
	"github.com/jwalitptl/carebook/internal/router"
	appointmentService "github.com/jwalitptl/carebook/internal/service/appointment"
	auditService "github.com/jwalitptl/carebook/internal/service/audit"
	authService "github.com/jwalitptl/carebook/internal/service/auth"
	communityService "github.com/jwalitptl/carebook/internal/service/community"
	documentService "github.com/jwalitptl/carebook/internal/service/document"
	notificationService "github.com/jwalitptl/carebook/internal/service/notification"
	userService "github.com/jwalitptl/carebook/internal/service/user"
	"github.com/jwalitptl/carebook/internal/storage"
	"github.com/jwalitptl/carebook/internal/worker"
	"github.com/jwalitptl/carebook/pkg/auth"
	"github.com/jwalitptl/carebook/pkg/logger"
	"github.com/jwalitptl/carebook/pkg/metrics"
	"github.com/jwalitptl/carebook/pkg/security"
	"github.com/jwalitptl/carebook/pkg/validator"
)

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CAREBOOK_CONFIG_FILE"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logger.Setup(cfg.Log)
	validator.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize repositories
	repos, checks, closeDB, err := openRepositories(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize repositories")
	}
	defer closeDB()

	blobs, err := storage.New(ctx, cfg.S3)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize file storage")
	}

	jwtSvc, err := auth.NewJWTService(cfg.JWT)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}

	m := metrics.New("carebook", nil)

	// Initialize services
	auditSvc := auditService.NewService(repos.Audit)
	notifier := notificationService.NewService(repos.Notifications, repos.Users, email.NewService(cfg.Email), m, cfg.Notifications)
	authSvc := authService.NewService(repos.Users, jwtSvc, security.NewBcryptHasher(bcrypt.DefaultCost))
	userSvc := userService.NewService(repos.Users, repos.Appointments, blobs, auditSvc)
	documentSvc := documentService.NewService(repos.Documents, repos.Users, repos.Appointments, blobs, notifier, auditSvc, m)
	communitySvc := communityService.NewService(repos.Comments, repos.Users, notifier, auditSvc, m)
	appointmentSvc, err := appointmentService.NewService(repos.Appointments, repos.Users, notifier, auditSvc, m, cfg.Scheduling)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize appointment service")
	}

	// The worker process cannot see an in-process store, so the sweep runs here.
	if cfg.Database.Driver == "memory" {
		sweeper := worker.NewCompletionSweeper(appointmentSvc, cfg.Worker.SweepInterval, cfg.Worker.CompletionGrace, cfg.Worker.SweepBatch)
		go sweeper.Start(ctx)
	}

	// Initialize handlers
	appointments := appointmentHandler.NewHandler(appointmentSvc)
	users := userHandler.NewHandler(userSvc)
	handlers := router.Handlers{
		Public: []router.Handler{
			authHandler.NewHandler(authSvc),
			health.NewHandler(checks),
			prometheus.New(nil),
		},
		Protected: []router.Handler{
			users,
			appointments,
			documentHandler.NewHandler(documentSvc),
			communityHandler.NewHandler(communitySvc),
			notificationHandler.NewHandler(notifier),
		},
		Admin: []router.AdminHandler{
			appointments,
			users,
			auditHandler.NewHandler(auditSvc),
		},
	}

	// Setup router
	authMiddleware := middleware.NewAuthMiddleware(authSvc, cfg.Server.IdentityCacheTTL)
	r := router.NewRouter(authMiddleware, handlers, m, router.RouterConfig{
		Mode:             cfg.Server.Mode,
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig: middleware.CORSConfig{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		},
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	})
	r.Setup()

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r.Engine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server
	go func() {
		log.Info().Int("port", cfg.Server.Port).Str("driver", cfg.Database.Driver).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server exited properly")
}

// openRepositories returns the repositories for the configured driver along
// with the readiness checks they need and a close function.
func openRepositories(ctx context.Context, cfg *config.Config) (*repository.Repositories, map[string]health.Pinger, func(), error) {
	if cfg.Database.Driver == "memory" {
		log.Warn().Msg("using the in-memory store; data is lost on restart")
		return memory.NewStore().Repositories(), map[string]health.Pinger{}, func() {}, nil
	}

	db, err := postgres.NewDB(ctx, cfg.Database.Config)
	if err != nil {
		return nil, nil, nil, err
	}
	if cfg.Database.Migrate {
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
	}
	return postgres.NewRepositories(db), map[string]health.Pinger{"database": db}, closer(db), nil
}

func closer(db *sqlx.DB) func() {
	return func() {
		if err := db.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}

func shutdownTimeout(cfg *config.Config) time.Duration {
	if cfg.Server.ShutdownTimeout > 0 {
		return cfg.Server.ShutdownTimeout
	}
	return 10 * time.Second
}
