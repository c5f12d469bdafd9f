// Package main is the entrypoint for the spotshare API server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/spotshare/spotshare/internal/asset"
	"github.com/spotshare/spotshare/internal/auth"
	"github.com/spotshare/spotshare/internal/cache"
	"github.com/spotshare/spotshare/internal/config"
	"github.com/spotshare/spotshare/internal/geo"
	"github.com/spotshare/spotshare/internal/handler"
	"github.com/spotshare/spotshare/internal/memstore"
	"github.com/spotshare/spotshare/internal/metrics"
	"github.com/spotshare/spotshare/internal/middleware"
	"github.com/spotshare/spotshare/internal/reclaim"
	"github.com/spotshare/spotshare/internal/repository"
	"github.com/spotshare/spotshare/internal/server"
	"github.com/spotshare/spotshare/internal/service"
	"github.com/spotshare/spotshare/internal/store"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)
	recorder := metrics.NewInMemory()

	srv := server.New(nil, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	// Stores
	st, dbChecker, err := openStore(ctx, cfg, logger, srv)
	if err != nil {
		os.Exit(1)
	}

	images, uploads, err := openAssets(ctx, cfg)
	if err != nil {
		logger.Error("failed to initialize asset store", "driver", cfg.AssetDriver, "error", err)
		os.Exit(1)
	}

	// Redis is optional: without it there is no auth rate limiting, no
	// place cache and failed image cleanups are only logged.
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error(
				"failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
		logger.Info("connected to Redis")
	}

	var geocoder geo.Geocoder = geo.NewStatic()
	if cfg.GeocoderAPIKey != "" {
		geocoder = geo.NewGoogle(cfg.GeocoderAPIKey)
	}

	creds := auth.NewCredentials(cfg.JWTSecret, cfg.TokenTTL, nil)
	hasher := auth.NewHasher(auth.Params{
		Time:    cfg.Argon2Time,
		Memory:  cfg.Argon2Memory,
		Threads: cfg.Argon2Threads,
	})

	opts := []service.Option{
		service.WithMetrics(recorder),
		service.WithMaxAttempts(cfg.TxMaxAttempts),
		service.WithMaxImageSize(cfg.MaxImageSize),
	}
	var limiter middleware.IPLimiter
	var redisChecker handler.HealthChecker
	if cacheClient != nil {
		publisher := reclaim.NewPublisher(cacheClient.Client(), logger, recorder)
		opts = append(opts, service.WithCache(cacheClient), service.WithOrphanQueue(publisher))
		limiter = cacheClient
		redisChecker = cacheClient

		worker := reclaim.NewWorker(cacheClient.Client(), images, logger, reclaim.NewConsumerID(), recorder)
		worker.SetBlockTimeout(cfg.ReclaimPollInterval)
		worker.SetMaxDeliveries(cfg.ReclaimMaxRetries)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("reclaim worker stopped", "error", err)
			}
		}()
		// Registered after redis, so it stops before the client closes.
		srv.OnShutdown("reclaim-worker", worker.Shutdown)
	}

	placeService := service.NewPlaceService(st, images, geocoder, logger, opts...)
	userService := service.NewUserService(st, images, hasher, creds, logger, opts...)

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.GetCORSAllowedOrigins()

	srv.SetHandler(handler.NewRouter(handler.RouterConfig{
		Logger:   logger,
		Places:   handler.NewPlaceHandler(placeService, logger, cfg.MaxImageSize),
		Users:    handler.NewUserHandler(userService, logger, cfg.MaxImageSize),
		Metrics:  handler.NewMetricsHandler(recorder),
		Uploads:  uploads,
		Verifier: creds,
		Recorder: recorder,
		Health: handler.NewHealthHandler(
			logger,
			handler.Dependency{Name: cfg.StoreDriver, Checker: dbChecker},
			handler.Dependency{Name: "redis", Checker: redisChecker},
		),
		RateLimit: middleware.RateLimitConfig{
			Logger:  logger,
			Limiter: limiter,
			Enabled: cfg.RateLimitAuthEnabled,
			RPS:     cfg.RateLimitAuthRPS,
			Burst:   cfg.RateLimitAuthBurst,
		},
		CORS:        cors,
		Security:    middleware.SecurityConfig{IsDevelopment: cfg.IsDevelopment()},
		MaxBodySize: cfg.MaxRequestBodySize,
	}))

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"store", cfg.StoreDriver,
		"assets", cfg.AssetDriver,
		"redis", cacheClient != nil,
	)

	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStore connects the configured user/place store. The Postgres pool is
// closed after the HTTP server has drained.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *server.Server) (store.Store, handler.HealthChecker, error) {
	if cfg.StoreDriver == config.DriverMemory {
		logger.Warn("using in-memory store; data is lost on restart")
		st := memstore.New(memstore.WithTxTimeout(cfg.TxTimeout))
		return st, st, nil
	}

	repo, err := repository.New(ctx, cfg.DatabaseURL, repository.WithTxTimeout(cfg.TxTimeout))
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return nil, nil, err
	}
	srv.OnShutdown("postgres", func(context.Context) error {
		repo.Close()
		return nil
	})
	logger.Info("connected to database")
	return repo, repo, nil
}

// openAssets builds the image store. The memory driver also returns the
// handler that serves its objects under handler.UploadsPath.
func openAssets(ctx context.Context, cfg *config.Config) (asset.Store, http.Handler, error) {
	if cfg.AssetDriver == config.DriverMemory {
		m := asset.NewMemoryStore(handler.UploadsPath)
		return m, m, nil
	}

	s3cfg := asset.S3Config{
		Bucket:         cfg.S3Bucket,
		Region:         cfg.S3Region,
		Endpoint:       cfg.S3Endpoint,
		PublicBaseURL:  cfg.S3PublicBaseURL,
		ForcePathStyle: cfg.S3ForcePathStyle,
	}
	client, err := asset.NewS3Client(ctx, s3cfg)
	if err != nil {
		return nil, nil, err
	}
	return asset.NewS3Store(client, s3cfg), nil, nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
