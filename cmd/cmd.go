package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meal-match-backend/internal/config"
	"meal-match-backend/internal/handlers"
	"meal-match-backend/internal/repository"
	"meal-match-backend/internal/repository/dynamo"
	"meal-match-backend/internal/repository/memory"
	redisstore "meal-match-backend/internal/repository/redis"
	"meal-match-backend/internal/services"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Store is what every storage driver provides. Each driver additionally
// implements one of the claim capabilities the committer understands.
type Store interface {
	services.UserStore
	services.EligibleUserQuerier
	io.Closer
}

func Run() {
	configPath := pflag.String("config", "config.yaml", "path to the YAML config file")
	issueToken := pflag.String("issue-token", "", "print a bearer token for this caller and exit")
	tokenTTL := pflag.Duration("token-ttl", 0, "lifetime of an issued token, 0 never expires")
	pflag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log.Level)

	tokens := services.NewTokenService(cfg.JWT.Secret)
	if *issueToken != "" {
		token, err := tokens.GenerateJWT(*issueToken, *tokenTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to issue token")
		}
		fmt.Println(token)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open storage
	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Storage.Driver).Msg("Failed to open storage")
	}
	defer store.Close()

	// Initialize matching pipeline
	committer, err := services.NewMatchCommitter(store, cfg.Matcher.CommitConcurrency)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create match committer")
	}
	matcher := services.NewMatcher(services.NewIndexBuilder(store, cfg.Matcher.QueryTimeout), committer)
	dispatcher := services.NewDispatcher(matcher, cfg.Matcher.RunTimeout)
	userService := services.NewUserService(store, dispatcher)

	var sweeper *services.Sweeper
	if cfg.Sweep.Schedule != "" {
		sweeper, err = services.NewSweeper(dispatcher, cfg.Sweep.Schedule)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create sweeper")
		}
		sweeper.Start()
	}

	// Initialize handlers
	router := handlers.NewRouter(
		handlers.NewUserHandler(userService),
		handlers.NewTriggerHandler(dispatcher),
		tokens,
	)

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Matcher.RunTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("storage", cfg.Storage.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if sweeper != nil {
		sweeper.Stop(shutdownCtx)
	}

	// Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStore connects the configured storage driver and prepares its schema
func openStore(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if cfg.Migrations.Enabled {
			if err := repository.Migrate(cfg.Database.URL()); err != nil {
				return nil, err
			}
		}
		db, err := repository.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return repository.NewStore(db), nil

	case config.DriverDynamoDB:
		client, err := dynamo.NewClient(ctx, cfg.DynamoDB)
		if err != nil {
			return nil, err
		}
		store := dynamo.NewStore(client, cfg.DynamoDB)
		if cfg.Migrations.Enabled {
			if err := store.EnsureTables(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil

	case config.DriverRedis:
		client, err := redisstore.NewClient(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		return redisstore.NewStore(client, cfg.Redis.KeyPrefix), nil

	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage, data is lost on exit")
		return memory.NewStore(), nil

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
