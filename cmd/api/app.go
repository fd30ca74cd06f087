package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/fileforge/fileforge/internal/auth"
	"github.com/fileforge/fileforge/internal/cache"
	"github.com/fileforge/fileforge/internal/config"
	"github.com/fileforge/fileforge/internal/convert"
	"github.com/fileforge/fileforge/internal/events"
	"github.com/fileforge/fileforge/internal/metrics"
	"github.com/fileforge/fileforge/internal/oauth"
	"github.com/fileforge/fileforge/internal/repository"
	"github.com/fileforge/fileforge/internal/service"
	"github.com/fileforge/fileforge/internal/storage"
)

// app holds the connected stores and the services built on them.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	repo  *repository.Repository
	cache *cache.Cache
	blobs storage.Store

	registry *prometheus.Registry
	recorder metrics.Recorder
	events   *events.Publisher

	accounts    *service.AccountService
	auth        *service.AuthService
	merges      *service.MergeService
	uploads     *service.UploadService
	conversions *service.ConversionService
}

// newApp connects to Postgres, Redis and blob storage and builds the services.
// The caller must call close.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return nil, fmt.Errorf("connect to database: %s", sanitizeError(err, cfg.DatabaseURL))
	}
	a.repo = repo
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		logger.Error("failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		return nil, fmt.Errorf("connect to redis: %s", sanitizeError(err, cfg.RedisURL))
	}
	a.cache = cacheClient
	logger.Info("connected to Redis")

	blobs, err := newBlobStore(ctx, cfg)
	if err != nil {
		a.close()
		return nil, err
	}
	a.blobs = blobs
	logger.Info("blob storage ready", "driver", cfg.StorageDriver)

	if cfg.MetricsEnabled {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		a.recorder = metrics.NewPrometheus(a.registry)
	} else {
		a.recorder = metrics.NewNoop()
	}

	a.events = events.NewPublisher(cacheClient.Client(), logger, a.recorder)
	a.buildServices()
	return a, nil
}

func (a *app) buildServices() {
	cfg := a.cfg

	a.accounts = service.NewAccountService(a.repo, a.events, a.logger)
	a.uploads = service.NewUploadService(a.repo, a.blobs, cfg.MaxUploadSize, a.logger)
	a.conversions = service.NewConversionService(a.repo, a.blobs, convert.NewImageConverter(), a.recorder, a.logger)

	a.auth = service.NewAuthService(service.AuthDeps{
		Providers:  newProviderRegistry(cfg),
		Identities: a.repo,
		Sessions:   a.cache,
		States:     a.cache,
		Pending:    a.cache,
		Events:     a.events,
		Logger:     a.logger,
		SessionTTL: cfg.SessionTTL,
	})

	a.merges = service.NewMergeService(service.MergeDeps{
		Identities: a.repo,
		Resources:  a.repo,
		Tokens:     a.repo,
		Ledger:     a.repo,
		Blobs:      a.blobs,
		Locker:     a.cache,
		Sessions:   a.cache,
		Pending:    a.cache,
		Events:     a.events,
		Hasher:     auth.NewCodeHasher(cfg.MergeCodePepper),
		Metrics:    a.recorder,
		Logger:     a.logger,
		Timeout:    cfg.MergeTimeout,
		LockTTL:    cfg.MergeLockTTL,
	})
}

// close releases the store connections.
func (a *app) close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close Redis client", "error", err)
		}
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		return storage.NewMemoryStore(), nil
	}

	store, err := storage.NewS3Store(ctx, storage.S3Config{
		Bucket:         cfg.S3Bucket,
		Region:         cfg.S3Region,
		AccessKeyID:    cfg.S3AccessKeyID,
		SecretKey:      cfg.S3SecretAccessKey,
		Endpoint:       cfg.S3Endpoint,
		ForcePathStyle: cfg.S3ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 store: %w", err)
	}
	return store, nil
}

// newProviderRegistry registers every provider that has a client id.
func newProviderRegistry(cfg *config.Config) *oauth.Registry {
	var providers []oauth.Provider

	if cfg.GitHubClientID != "" {
		providers = append(providers, oauth.NewGitHub(oauth.Config{
			ClientID:     cfg.GitHubClientID,
			ClientSecret: cfg.GitHubClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL("github"),
		}))
	}
	if cfg.DiscordClientID != "" {
		providers = append(providers, oauth.NewDiscord(oauth.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.OAuthRedirectURL("discord"),
		}))
	}

	return oauth.NewRegistry(providers...)
}
