package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/terra-clan/screening-engine/internal/api"
	"github.com/terra-clan/screening-engine/internal/backend"
	"github.com/terra-clan/screening-engine/internal/cleanup"
	"github.com/terra-clan/screening-engine/internal/config"
	"github.com/terra-clan/screening-engine/internal/judge"
	"github.com/terra-clan/screening-engine/internal/languages"
	"github.com/terra-clan/screening-engine/internal/models"
	"github.com/terra-clan/screening-engine/internal/runner"
	"github.com/terra-clan/screening-engine/internal/session"
	"github.com/terra-clan/screening-engine/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting screening-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"judge", cfg.Judge.Driver,
	)

	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	checks := make(map[string]api.Pinger)

	repo, err := openRepository(initCtx, cfg.Database)
	if err != nil {
		slog.Error("failed to open repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	checks["database"] = repo

	if err := seedClients(initCtx, repo, cfg.Auth.APIKeys); err != nil {
		slog.Error("failed to seed api clients", "error", err)
		os.Exit(1)
	}

	catalog := languages.NewCatalog()
	if cfg.Languages.File != "" {
		if err := catalog.LoadFromFile(cfg.Languages.File); err != nil {
			slog.Error("failed to load languages", "file", cfg.Languages.File, "error", err)
			os.Exit(1)
		}
	}

	// Code execution
	var j judge.Judge
	sweepers := []cleanup.Sweeper{}
	scope := judgeScope(cfg.Judge.URL, cfg.Judge.RapidAPIKey, cfg.Judge.AuthToken)
	switch cfg.Judge.Driver {
	case "docker":
		d, err := judge.NewDocker(cfg.Docker, catalog)
		if err != nil {
			slog.Error("failed to create docker judge", "error", err)
			os.Exit(1)
		}
		defer d.Close()
		checks["docker"] = d
		sweepers = append(sweepers, d)
		scope = judgeScope(cfg.Docker.Host)
		j = d
	default:
		j = judge.NewJudge0(judge.Judge0Config{
			URL:           cfg.Judge.URL,
			RapidAPIKey:   cfg.Judge.RapidAPIKey,
			RapidAPIHost:  cfg.Judge.RapidAPIHost,
			AuthToken:     cfg.Judge.AuthToken,
			SubmitTimeout: cfg.Judge.SubmitTimeout,
			PollTimeout:   cfg.Judge.PollTimeout,
		})
	}

	// Judge slots, shared across replicas when Redis is configured
	var limiter runner.Limiter = runner.NewLocalLimiter(cfg.Judge.MaxConcurrent)
	if cfg.Redis.Address != "" {
		rl, err := storage.NewRedisLimiter(initCtx, cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB,
			scope, cfg.Judge.MaxConcurrent, cfg.Redis.LockTTL)
		if err != nil {
			slog.Error("failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer rl.Close()
		limiter = rl
		checks["redis"] = rl
		slog.Info("redis judge limiter enabled", "address", cfg.Redis.Address, "slots", cfg.Judge.MaxConcurrent)
	}

	poller := runner.NewPoller(j, runner.Config{
		Interval:     cfg.Judge.PollInterval,
		MaxAttempts:  cfg.Judge.MaxAttempts,
		QueueTimeout: cfg.Judge.QueueTimeout,
	}, runner.WithLimiter(limiter))

	backendClient := backend.NewClient(cfg.Backend.URL, backend.WithTimeout(cfg.Backend.Timeout))
	checks["backend"] = backendClient
	lookup := backend.NewCandidateLookup(cfg.Backend.CandidateLookupURL, cfg.Backend.CandidateLookupToken, cfg.Backend.Timeout)

	manager := session.NewManager(session.Config{
		TickInterval:    cfg.Session.TickInterval,
		DefaultDuration: cfg.Session.DefaultDuration,
		SubmitTimeout:   cfg.Session.SubmitTimeout,
		Retention:       cfg.Session.Retention,
	}, backendClient, poller, catalog, repo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cleaner := cleanup.NewCleaner(cfg.Cleanup.Interval, append(sweepers, manager)...)
	cleaner.Start(ctx)

	server := api.NewServer(cfg.Server, api.Deps{
		Sessions:   manager,
		Tests:      backendClient,
		Candidates: lookup,
		Languages:  catalog,
		Clients:    repo,
		Checks:     checks,
	})
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down gracefully...")

	cancel()
	<-cleaner.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Live sessions are closed, not submitted
	manager.Shutdown(shutdownCtx)

	slog.Info("screening-engine stopped")
}

// openRepository picks PostgreSQL when a DSN is configured and the
// in-memory repository otherwise
func openRepository(ctx context.Context, cfg config.DatabaseConfig) (storage.Repository, error) {
	if cfg.DSN == "" {
		slog.Warn("no database configured, sessions are kept in memory")
		return storage.NewMemoryRepository(), nil
	}

	repo, err := storage.NewPostgresRepository(ctx, storage.PostgresConfig{
		DSN:          cfg.DSN,
		MaxOpenConns: int32(cfg.MaxOpenConns),
		MaxIdleConns: int32(cfg.MaxIdleConns),
	})
	if err != nil {
		return nil, err
	}

	slog.Info("running database migrations", "dir", cfg.MigrationsDir)
	if err := storage.RunMigrations(ctx, repo.Pool(), storage.MigrationSource(cfg.MigrationsDir)); err != nil {
		repo.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	slog.Info("database connected successfully")
	return repo, nil
}

// seedClients registers bootstrap API keys with full permissions
func seedClients(ctx context.Context, repo storage.Repository, keys []string) error {
	for i, key := range keys {
		existing, err := repo.GetClientByApiKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		client := &models.ApiClient{
			Name:        fmt.Sprintf("bootstrap-%d", i+1),
			ApiKey:      key,
			IsActive:    true,
			Permissions: []string{"*"},
		}
		if err := repo.CreateClient(ctx, client); err != nil {
			return err
		}
		slog.Info("bootstrap api client registered", "client", client.Name, "key_prefix", client.MaskedApiKey())
	}
	return nil
}

// judgeScope names the shared slot pool of a judge credential without
// putting the credential in Redis
func judgeScope(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:8])
}
