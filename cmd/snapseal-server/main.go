package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"snapseal/config"
	"snapseal/logging"
	"snapseal/observability"
	"snapseal/pkg/cache"
	"snapseal/pkg/integrity"
	"snapseal/pkg/repository/postgres"
	"snapseal/pkg/secrets"
	"snapseal/pkg/storage"
	"snapseal/services/snapshot"
)

var (
	// Command-line flags
	configFile = flag.String("config", "", "Path to configuration file")
	version    = flag.Bool("version", false, "Print version information")
)

const (
	ServiceName    = "snapseal-server"
	ServiceVersion = "1.0.0"
)

func main() {
	flag.Parse()

	// Initialize logger
	logger := logging.GetLogger()

	// Print version and exit if requested
	if *version {
		fmt.Printf("%s version %s\n", ServiceName, ServiceVersion)
		os.Exit(0)
	}

	// Load configuration
	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	// Override service name and version
	cfg.Service.Name = ServiceName
	cfg.Service.Version = ServiceVersion

	// Print build and feature flag information
	logger.PrintBuildInfo(ServiceName, ServiceVersion)

	// Log configuration (with sensitive data masked)
	logConfiguration(cfg, logger)

	ctx := context.Background()

	// Initialize observability (tracing and metrics) if enabled
	var obsProvider *observability.Provider
	if cfg.Observability.Tracing.Enabled || cfg.Observability.Metrics.Enabled {
		obsProvider, err = observability.Init(ctx, cfg, logger, ServiceName, ServiceVersion)
		if err != nil {
			logger.Error("Failed to initialize observability: %v", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := obsProvider.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Observability shutdown error: %v", err)
			}
		}()
	}

	// Create PostgreSQL repository
	logger.Startup("Connecting to database: %s@%s:%d/%s",
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	repo, err := postgres.NewRepository(cfg.GetDatabaseURL())
	if err != nil {
		logger.Error("Failed to create repository: %v", err)
		os.Exit(1)
	}
	defer repo.Close()

	// Verify database connection
	if err := repo.Ping(ctx); err != nil {
		logger.Error("Failed to ping database: %v", err)
		os.Exit(1)
	}
	logger.Startup("Database connection successful")

	// Create the evidence object store
	store, err := buildObjectStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to create object store: %v", err)
		os.Exit(1)
	}

	// Create the manifest cache
	manifestCache := buildManifestCache(cfg, logger)

	// Load the manifest signing key. The key itself is never logged.
	signingKey, err := secrets.NewLoader().LoadSigningKey(ctx, secrets.SigningKeySource{
		Source: cfg.Signing.Source,
		EnvVar: cfg.Signing.EnvVar,
		File:   cfg.Signing.File,
		AWS: secrets.AWSSecretSource{
			Region:         cfg.Signing.AWS.Region,
			Endpoint:       cfg.Signing.AWS.Endpoint,
			SecretID:       cfg.Signing.AWS.SecretID,
			SecretKeyField: cfg.Signing.AWS.SecretKeyField,
		},
	})
	if err != nil {
		logger.Error("Failed to load signing key: %v", err)
		os.Exit(1)
	}
	logger.Startup("Signing key loaded from source: %s", cfg.Signing.Source)

	signer, err := integrity.NewSigner(signingKey)
	if err != nil {
		logger.Error("Failed to create manifest signer: %v", err)
		os.Exit(1)
	}

	// Create snapshot service and API server
	service := snapshot.NewService(repo, store, manifestCache, signer)
	server := snapshot.NewServer(service, repo, cfg)

	// Determine server address
	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Start server in a goroutine
	go func() {
		logger.Startup("Starting %s version %s", ServiceName, ServiceVersion)
		logger.Startup("Environment: %s", cfg.Service.Environment)
		logger.Startup("Snapshot API server listening on %s", serverAddr)
		logger.Info("Configuration:")
		logger.Info("  - Database: %s", cfg.Database.Host)
		logger.Info("  - Storage: %s", cfg.Storage.Type)
		logger.Info("  - Cache: %s", cfg.Cache.Type)
		logger.Info("  - Signing key source: %s", cfg.Signing.Source)
		logger.Info("  - Rate Limiting: %v", cfg.Security.RateLimiting.Enabled)
		logger.Info("  - CORS: %v", cfg.Security.CORS.Enabled)
		logger.Info("  - Metrics: %v", cfg.Observability.Metrics.Enabled)
		logger.Info("  - Tracing: %v", cfg.Observability.Tracing.Enabled)

		if err := server.Start(serverAddr); err != nil {
			logger.Error("Failed to start server: %v", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Startup("Shutting down %s gracefully...", ServiceName)
}

// buildObjectStore creates the evidence object store from configuration
func buildObjectStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (storage.ObjectStore, error) {
	switch cfg.Storage.Type {
	case "s3":
		logger.Startup("Initializing S3 object store: bucket=%s region=%s", cfg.Storage.S3.Bucket, cfg.Storage.S3.Region)
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.Storage.S3.Bucket,
			Region:          cfg.Storage.S3.Region,
			Endpoint:        cfg.Storage.S3.Endpoint,
			AccessKeyID:     cfg.Storage.S3.AccessKeyID,
			SecretAccessKey: cfg.Storage.S3.SecretAccessKey,
			UsePathStyle:    cfg.Storage.S3.UsePathStyle,
		})
	case "memory":
		logger.Warn("Using in-memory object store; evidence does not survive restarts")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Storage.Type)
	}
}

// buildManifestCache creates the manifest cache from configuration. A Redis
// failure degrades to no caching rather than blocking startup.
func buildManifestCache(cfg *config.Config, logger *logging.Logger) cache.ManifestCache {
	switch cfg.Cache.Type {
	case "redis":
		logger.Startup("Initializing Redis manifest cache at %s", cfg.Cache.Redis.Address)
		redisCache, err := cache.NewRedisManifestCache(cache.RedisCacheConfig{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
			TTL:      cfg.Cache.TTL,
		})
		if err != nil {
			logger.Warn("Failed to initialize Redis manifest cache: %v", err)
			logger.Warn("Manifest caching will be disabled")
			return cache.NewNoOpManifestCache()
		}
		logger.Startup("Redis manifest cache initialized successfully")
		return redisCache
	case "memory":
		logger.Startup("Using in-memory manifest cache")
		return cache.NewInMemoryManifestCache()
	default:
		logger.Startup("Manifest caching disabled")
		return cache.NewNoOpManifestCache()
	}
}

// logConfiguration logs the configuration with sensitive data masked
func logConfiguration(cfg *config.Config, logger *logging.Logger) {
	logger.Startup("Configuration loaded successfully")
	logger.Info("Service: %s v%s (%s)", cfg.Service.Name, cfg.Service.Version, cfg.Service.Environment)
	logger.Info("Server: %s:%d (timeouts: read=%v write=%v idle=%v)",
		cfg.Server.Host, cfg.Server.Port,
		cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.IdleTimeout)
	logger.Info("Database: %s@%s:%d/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)
	logger.Info("Storage: %s", cfg.Storage.Type)
	if cfg.Storage.Type == "s3" {
		logger.Info("S3 bucket: %s (region: %s)", cfg.Storage.S3.Bucket, cfg.Storage.S3.Region)
	}
	logger.Info("Cache: %s", cfg.Cache.Type)
	if cfg.Cache.Type == "redis" {
		logger.Info("Redis: %s (DB: %d)", cfg.Cache.Redis.Address, cfg.Cache.Redis.DB)
	}
	logger.Info("Logging mode: %s", logging.LoggingMode())

	if cfg.IsDevelopment() {
		logger.Info("Running in DEVELOPMENT mode")
		logger.Info("  - TLS: disabled")
	} else if cfg.IsProduction() {
		logger.Info("Running in PRODUCTION mode")
		logger.Info("  - TLS: %v", cfg.Server.TLS.Enabled)
		logger.Info("  - Rate limiting: %v", cfg.Security.RateLimiting.Enabled)
		logger.Info("  - Metrics: %v", cfg.Observability.Metrics.Enabled)
		logger.Info("  - Tracing: %v", cfg.Observability.Tracing.Enabled)
	}
}
