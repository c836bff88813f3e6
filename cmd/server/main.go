package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/honeynil/LibraryAuthService/internal/api"
	"github.com/honeynil/LibraryAuthService/internal/config"
	"github.com/honeynil/LibraryAuthService/internal/handler"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/kafka"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/ratelimit"
	"github.com/honeynil/LibraryAuthService/internal/infrastructure/redis"
	"github.com/honeynil/LibraryAuthService/internal/observability"
	"github.com/honeynil/LibraryAuthService/internal/repository"
	"github.com/honeynil/LibraryAuthService/internal/repository/memory"
	core "github.com/honeynil/LibraryAuthService/internal/repository/postgres"
	service "github.com/honeynil/LibraryAuthService/internal/services"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

const serviceName = "library-auth-service"

func main() {
	if err := run(); err != nil {
		slog.Error("service stopped with error", "error", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred cleanup always runs.
func run() error {
	dotenvErr := config.LoadDotEnv()
	observability.SetupLogger(os.Getenv("LOG_LEVEL"))
	if dotenvErr != nil {
		slog.Warn("failed to load .env file, using environment only", "error", dotenvErr)
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Логи, метрики, трейсы
	shutdownTracer, metricsHandler := observability.Setup(serviceName, cfg)
	defer shutdownTracer(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var userRepo repository.UserRepository
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		slog.Warn("using in-memory user storage, data is lost on restart")
		userRepo = memory.NewUserRepository()
	default:
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("failed to connect to Postgres: %w", err)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("failed to ping Postgres: %w", err)
		}
		userRepo = core.NewPostgresUserRepository(db)
	}

	store := service.NewCredentialStore(userRepo, bcrypt.DefaultCost)
	if err := store.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		return fmt.Errorf("failed to seed admin account: %w", err)
	}
	tokens, err := service.NewTokenService(store, service.TokenConfig{
		Secret:     []byte(cfg.JWTSecret),
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token service: %w", err)
	}

	var publisher service.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		producer := kafka.NewProducer(cfg.KafkaBrokers, cfg.AuthTopic)
		defer producer.Close()
		publisher = producer

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.AdminTopic, cfg.KafkaGroupID, userRepo)
		go consumer.Consume(ctx)
		defer consumer.Close()
	} else {
		slog.Info("KAFKA_BROKER not set, auth events are not published")
	}

	svc := service.NewAuthService(store, tokens, publisher)

	var limiter ratelimit.Limiter
	if cfg.RateLimitEnabled {
		limiter = ratelimit.NewMemoryLimiter()
		if cfg.RedisAddr != "" {
			redisClient, err := redis.NewClient(ctx, cfg.RedisAddr)
			if err != nil {
				slog.Warn("falling back to in-memory rate limiting", "error", err)
			} else {
				defer redisClient.Close()
				limiter = ratelimit.NewRedisLimiter(redisClient)
			}
		}
	}

	router := api.SetupRouter(api.RouterConfig{
		Handler:     handler.NewHandler(svc, tokens.RefreshTTL(), cfg.CookieSecure),
		Verifier:    tokens,
		Limiter:     limiter,
		GlobalLimit: cfg.GlobalRateLimit,
		AuthLimit:   cfg.AuthRateLimit,
		Metrics:     metricsHandler,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	select {
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	default:
	}
	slog.Info("server stopped")
	return nil
}
