package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/scythe504/turing-party-backend/internal"
	"github.com/scythe504/turing-party-backend/internal/ai"
	"github.com/scythe504/turing-party-backend/internal/config"
	"github.com/scythe504/turing-party-backend/internal/database"
	"github.com/scythe504/turing-party-backend/internal/database/migrations"
	"github.com/scythe504/turing-party-backend/internal/events"
	"github.com/scythe504/turing-party-backend/internal/game"
	"github.com/scythe504/turing-party-backend/internal/logger"
	"github.com/scythe504/turing-party-backend/internal/server"
	"github.com/scythe504/turing-party-backend/internal/store"
	"github.com/scythe504/turing-party-backend/internal/utils"
)

const shutdownTimeout = 10 * time.Second

// repository is everything the orchestrator persists through.
type repository interface {
	game.RoomRepository
	game.PlayerRepository
	game.RoundRepository
	game.VoteRepository
	game.SettingsProvider
}

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := logger.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeRepo()

	seed, err := utils.NewSeed()
	if err != nil {
		return err
	}

	questions := utils.DefaultQuestions()
	if cfg.FillerQuestionsCSV != "" {
		questions, err = utils.ReadQuestionsFile(cfg.FillerQuestionsCSV, internal.MaxQuestionLength)
		if err != nil {
			return err
		}
		log.Info().Int("count", len(questions)).Str("file", cfg.FillerQuestionsCSV).Msg("filler questions loaded")
	}

	bus := events.NewBus(cfg.EventQueueSize)
	defer bus.Close()

	deps := game.Deps{
		Rooms:     repo,
		Players:   repo,
		Rounds:    repo,
		Votes:     repo,
		Settings:  repo,
		Questions: utils.NewQuestionBank(seed, questions),
		Bus:       bus,
		Scheduler: game.NewScheduler(cfg.CountdownInterval),
		Selector:  game.NewRoleSelector(seed),
		Delay:     ai.NewDelayer(seed).DisplayDelay,
	}
	if cfg.AI.Enabled() {
		deps.Answers = ai.NewProvider(ai.Config{
			BaseURL:      cfg.AI.BaseURL,
			APIKey:       cfg.AI.APIKey,
			DefaultModel: cfg.AI.DefaultModel,
			Temperature:  cfg.AI.Temperature,
			MaxTokens:    cfg.AI.MaxTokens,
			Timeout:      cfg.AI.Timeout,
		})
	} else {
		log.Warn().Msg("no AI backend configured, AI answers will fail")
	}

	manager := game.NewManager(deps)
	defer manager.Close()

	go manager.RunCleanup(ctx, cfg.CleanupInterval, cfg.CleanupRetention)

	srv := server.NewServer(manager, bus, server.Config{
		AllowedOrigins:    cfg.AllowedOrigins,
		HeartbeatInterval: cfg.HeartbeatInterval,
		RateLimitRPS:      cfg.RateLimitRPS,
		RateLimitBurst:    cfg.RateLimitBurst,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.RegisterRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	// streams only end when their rooms close
	bus.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config) (repository, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, using the in-memory store")
		mem := store.NewMemory()
		mem.SetGameDefaults(cfg.GameDefaults())
		return mem, func() {}, nil
	}

	if err := migrations.Migrate(cfg.DatabaseURL); err != nil {
		return nil, nil, err
	}
	repo, err := database.NewPostgresRepo(ctx, cfg.DatabaseURL, cfg.GameDefaults())
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
