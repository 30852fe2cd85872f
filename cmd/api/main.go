package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"marginalia/api/internal/annotation"
	"marginalia/api/internal/app"
	"marginalia/api/internal/blob"
	"marginalia/api/internal/cache"
	"marginalia/api/internal/cascade"
	"marginalia/api/internal/config"
	"marginalia/api/internal/export"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/moderation"
	"marginalia/api/internal/search"
	"marginalia/api/internal/store"
	"marginalia/api/internal/store/memstore"
)

func main() {
	cfg := config.Load()
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	ctx := context.Background()

	var (
		dataStore store.Store
		db        *sql.DB
		pinger    app.Pinger
	)
	switch strings.ToLower(cfg.StoreBackend) {
	case "memory":
		logger.Warn("using in-memory store, data is lost on restart")
		dataStore = memstore.New()
	default:
		var err error
		db, err = store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
			ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
		})
		if err != nil {
			fatal(logger, "database connection failed", err)
		}
		defer db.Close()
		if err := store.ApplyMigrations(ctx, db); err != nil {
			fatal(logger, "migrations failed", err)
		}
		dataStore = store.NewPostgresStore(db)
		pinger = db
	}

	blobs, closeBlobs := openBlobs(ctx, cfg, logger)
	defer closeBlobs()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	var pgfts search.Searcher
	if db != nil {
		pgfts = search.NewPgFTS(db, cfg.AutomatedAuthorTag)
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	go searchService.ReindexAllFromPG(ctx)

	policy := moderation.NewPolicy(cfg.AutomatedAuthorTag)
	moderationService := moderation.NewService(dataStore, policy, logger)
	annotations := annotation.NewService(dataStore, moderationService, logger)
	exports := export.NewService(annotations, blobs, export.Options{
		FontPaths:     cfg.ExportFontPaths,
		MaxInputBytes: cfg.ExportMaxInputBytes,
	}, logger)

	service := app.NewService(app.Deps{
		Store:       dataStore,
		Annotations: annotations,
		Moderation:  moderationService,
		Cascade:     cascade.NewEngine(dataStore, blobs, cfg.CascadeMaxIterations, logger),
		Exports:     exports,
		Search:      searchService,
		AuthSecret:  []byte(cfg.AuthSecret),
		DB:          pinger,
		Logger:      logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigins, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("marginalia api listening", "addr", cfg.Addr, "store", cfg.StoreBackend, "blob", cfg.BlobBackend)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(logger, "server failed", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}

// openBlobs builds the configured object store, wrapped in the Redis
// document cache when REDIS_URL is set.
func openBlobs(ctx context.Context, cfg config.Config, logger *slog.Logger) (blob.Store, func()) {
	var (
		inner blob.Store
		err   error
	)
	switch strings.ToLower(cfg.BlobBackend) {
	case "s3":
		inner, err = blob.NewS3Store(ctx, blob.S3Options{
			Region:    cfg.BlobRegion,
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
		})
	default:
		inner, err = blob.NewMinioStore(blob.MinioOptions{
			Endpoint:  cfg.BlobEndpoint,
			AccessKey: cfg.BlobAccessKey,
			SecretKey: cfg.BlobSecretKey,
			Bucket:    cfg.BlobBucket,
			Region:    cfg.BlobRegion,
			UseSSL:    cfg.BlobUseSSL,
		})
	}
	if err != nil {
		fatal(logger, "blob store init failed", err)
	}

	if strings.TrimSpace(cfg.RedisURL) == "" {
		return inner, func() {}
	}
	redisCache, err := cache.NewRedisCache(cfg.RedisURL, cfg.DocumentCacheTTL)
	if err != nil {
		fatal(logger, "redis connection failed", err)
	}
	logger.Info("document cache enabled", "ttl", cfg.DocumentCacheTTL)
	return blob.NewCached(inner, redisCache, logger), func() { _ = redisCache.Close() }
}

func fatal(logger *slog.Logger, msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}
