package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"pollstream/internal/config"
	"pollstream/internal/handler"
	"pollstream/internal/middleware"
	"pollstream/internal/ratelimit"
	"pollstream/internal/repository"
	"pollstream/internal/service"
	"pollstream/internal/service/auth"
	"pollstream/internal/ws"
	"pollstream/pkg/database"
	"pollstream/pkg/logger"
	"pollstream/pkg/redis"
)

// Resources holds all resources that need cleanup
type Resources struct {
	db          *database.PostgresDB
	redisClient *redis.Client
	pollService *service.PollService
	server      *http.Server
	log         *logger.Logger
	mu          sync.Mutex
	closed      bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errs []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	// Stop the poll auto-archive sweep
	if r.pollService != nil {
		if err := r.pollService.Stop(ctx); err != nil {
			r.log.WithError(err).Error("Failed to stop poll sweep")
			errs = append(errs, fmt.Errorf("poll sweep shutdown: %w", err))
		}
	}

	// Close Redis connection
	if r.redisClient != nil {
		if err := r.redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		} else {
			r.log.Info("Redis connection closed")
		}
	}

	// Close database connection pool
	if r.db != nil {
		r.db.Close()
		r.log.Info("Database connection pool closed")
	}

	if len(errs) > 0 {
		r.log.WithField("error_count", len(errs)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errs), errs)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
	}).Info("Starting pollstream server")

	// Initialize database connection
	ctx := context.Background()
	db, err := database.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize Redis connection
	redisClient, err := redis.NewClient(cfg.RedisURL, cfg.Environment, log.Logger)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to Redis")
	}

	// Repositories
	pollRepo := repository.NewPollRepository(db)
	voteRepo := repository.NewVoteRepository(db)

	// Rate limiter: redis-backed windows shared across instances. Admin
	// exemption happens in the services, which hold the authenticated
	// identity.
	limiter := ratelimit.NewRedisLimiter(redisClient, log.Logger)

	// Connection registry + broadcast dispatcher
	hub := ws.NewHub(log)

	// Services
	authService := auth.NewService(cfg.JWTSecret, cfg.AdminVoterIDs, log)
	cacheService := service.NewCacheService(redisClient, log.Logger)
	pollService := service.NewPollService(pollRepo, voteRepo, cacheService, limiter, log, cfg.SweepInterval)
	voteService := service.NewVoteService(pollRepo, voteRepo, cacheService, limiter, hub, log)

	// Start the auto-archive sweep
	if err := pollService.Start(ctx); err != nil {
		log.WithError(err).Fatal("Failed to start poll sweep")
	}

	// Setup router
	router := setupRouter(cfg, log, authService, limiter, hub, pollService, voteService, db, redisClient)

	// Create HTTP server
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Create resources manager for cleanup
	resources := &Resources{
		db:          db,
		redisClient: redisClient,
		pollService: pollService,
		server:      server,
		log:         log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(
	cfg *config.Config,
	log *logger.Logger,
	authService service.AuthService,
	limiter ratelimit.Limiter,
	hub *ws.Hub,
	pollService *service.PollService,
	voteService *service.VoteService,
	db *database.PostgresDB,
	redisClient *redis.Client,
) *chi.Mux {
	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID(log))
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Compress(5))

	// Handlers
	healthHandler := handler.NewHealthHandler(db, redisClient, log)
	pollHandler := handler.NewPollHandler(pollService, log)
	voteHandler := handler.NewVoteHandler(voteService, log)
	wsHandler := handler.NewWSHandler(hub, authService, cfg.AllowedOrigins, log)

	// Health check (no auth required)
	r.Get("/health", healthHandler.Check)

	// WebSocket endpoint; handshake attempts are throttled per address.
	// No chi timeout here, the connection is long-lived.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimit(limiter, ratelimit.PolicyAuthAttempt, log))
		r.Get("/ws", wsHandler.Serve)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		// Read-only surface (no authentication required)
		r.Get("/ws/status", wsHandler.Status)
		r.Get("/polls/{pollID}", pollHandler.Get)
		r.Get("/polls/{pollID}/results", pollHandler.Results)

		// Protected routes (require authentication)
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(limiter, ratelimit.PolicyAuthAttempt, log))
			r.Use(middleware.Auth(authService, log))

			r.Post("/polls", pollHandler.Create)
			r.Patch("/polls/{pollID}", pollHandler.UpdateQuestion)
			r.Post("/polls/{pollID}/publish", pollHandler.Publish)
			r.Post("/polls/{pollID}/unpublish", pollHandler.Unpublish)
			r.Post("/polls/{pollID}/archive", pollHandler.Archive)
			r.Post("/polls/{pollID}/extend", pollHandler.Extend)

			r.Post("/polls/{pollID}/vote", voteHandler.SubmitVote)
			r.Get("/polls/{pollID}/vote", voteHandler.GetMyVote)
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"type":"not_found","message":"endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
