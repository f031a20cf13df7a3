package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/daily-missions/internal/api"
	"github.com/terra-clan/daily-missions/internal/catalog"
	"github.com/terra-clan/daily-missions/internal/config"
	"github.com/terra-clan/daily-missions/internal/missions"
	"github.com/terra-clan/daily-missions/internal/models"
	"github.com/terra-clan/daily-missions/internal/resetter"
	"github.com/terra-clan/daily-missions/internal/storage"
	"github.com/terra-clan/daily-missions/migrations"
)

func main() {
	// Setup structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if l, err := cfg.Log.SlogLevel(); err == nil {
		level.Set(l)
	}

	slog.Info("starting daily-missions",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"store", cfg.Store.Backend,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	repo, err := openRepository(initCtx, cfg)
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		os.Exit(1)
	}

	if cfg.Auth.BootstrapKey != "" {
		if err := bootstrapClient(initCtx, repo, cfg.Auth.BootstrapKey); err != nil {
			slog.Error("failed to bootstrap api client", "error", err)
			os.Exit(1)
		}
	}

	// Load mission catalog
	loader := catalog.NewLoader()
	if err := loader.LoadFromDir(cfg.Catalog.Dir); err != nil {
		slog.Warn("failed to load mission catalog", "dir", cfg.Catalog.Dir, "error", err)
	}
	for _, d := range models.Difficulties {
		if len(loader.ByDifficulty(d)) == 0 {
			slog.Warn("no mission definitions for difficulty", "difficulty", d)
		}
	}

	loc, _ := cfg.Reset.Location()
	schedule, err := missions.NewSchedule(cfg.Reset.Hour, loc)
	if err != nil {
		slog.Error("invalid reset schedule", "error", err)
		os.Exit(1)
	}

	broker := missions.NewBroker()
	service := missions.NewService(repo, loader, schedule, missions.WithBroker(broker))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start reset worker
	resetter.New(service, cfg.Reset.Interval).Start(ctx)

	// Setup HTTP server
	var authRepo storage.Repository
	if cfg.Auth.Enabled {
		authRepo = repo
	} else {
		slog.Warn("api authentication disabled")
	}

	server := api.NewServer(cfg.Server, service, loader, authRepo)
	httpServer := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	// Stop the reset worker and close event streams
	cancel()
	broker.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	if err := repo.Close(); err != nil {
		slog.Error("repository close error", "error", err)
	}

	slog.Info("daily-missions stopped")
}

// openRepository connects the configured store backend
func openRepository(ctx context.Context, cfg *config.Config) (storage.Repository, error) {
	switch cfg.Store.Backend {
	case config.StorePostgres:
		repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
			DSN:          cfg.Database.DSN,
			MaxOpenConns: int32(cfg.Database.MaxOpenConns),
			MaxIdleConns: int32(cfg.Database.MaxIdleConns),
		})
		if err != nil {
			return nil, err
		}
		slog.Info("database connected successfully")

		var fsys fs.FS = migrations.FS
		if cfg.Database.MigrationsDir != "" {
			fsys = os.DirFS(cfg.Database.MigrationsDir)
		}
		slog.Info("running database migrations", "dir", cfg.Database.MigrationsDir)
		if err := storage.RunMigrations(ctx, repo.Pool(), fsys); err != nil {
			repo.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return repo, nil

	case config.StoreRedis:
		repo, err := storage.NewRedisRepository(ctx, storage.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, err
		}
		slog.Info("redis connected successfully", "addr", cfg.Redis.Address)
		return repo, nil

	default:
		slog.Warn("using in-memory store, mission state is lost on restart")
		return storage.NewMemoryRepository(), nil
	}
}

// bootstrapClient makes sure an admin client exists for the configured key
func bootstrapClient(ctx context.Context, repo storage.Repository, apiKey string) error {
	existing, err := repo.GetClientByApiKey(ctx, apiKey)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	client := &models.ApiClient{
		ID:          uuid.New().String(),
		Name:        "bootstrap",
		ApiKey:      apiKey,
		IsActive:    true,
		CreatedAt:   time.Now().UTC(),
		Permissions: []string{"*"},
	}
	if err := repo.CreateClient(ctx, client); err != nil {
		return err
	}

	slog.Info("bootstrap api client created", "key_prefix", client.MaskedApiKey())
	return nil
}
