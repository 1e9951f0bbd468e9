package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askwarehouse/askwarehouse/internal/analyst"
	"github.com/askwarehouse/askwarehouse/internal/api"
	"github.com/askwarehouse/askwarehouse/internal/archive"
	"github.com/askwarehouse/askwarehouse/internal/ask"
	"github.com/askwarehouse/askwarehouse/internal/auth"
	"github.com/askwarehouse/askwarehouse/internal/config"
	"github.com/askwarehouse/askwarehouse/internal/observability"
	s3store "github.com/askwarehouse/askwarehouse/internal/storage/s3"
	"github.com/askwarehouse/askwarehouse/internal/warehouse"
)

func main() {
	cfg, err := config.LoadFromEnv("askwarehouse-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	shutdownTracing, err := observability.SetupTracing(context.Background(), cfg.Observability.TracingExporter, os.Stdout)
	if err != nil {
		logger.Error("failed to set up tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := warehouse.Open(ctx, warehouse.DBConfig{
		Driver:          cfg.Warehouse.Driver,
		DSN:             cfg.Warehouse.DSN,
		Account:         cfg.Warehouse.Account,
		User:            cfg.Warehouse.User,
		Password:        cfg.Warehouse.Password,
		Database:        cfg.SemanticModel.Database,
		Schema:          cfg.SemanticModel.Schema,
		Warehouse:       cfg.Warehouse.Warehouse,
		Role:            cfg.Warehouse.Role,
		MaxOpenConns:    cfg.Warehouse.MaxOpenConns,
		MaxIdleConns:    cfg.Warehouse.MaxIdleConns,
		ConnMaxIdleTime: cfg.Warehouse.ConnMaxIdleTime,
		ConnMaxLifetime: cfg.Warehouse.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open warehouse", slog.Any("error", err))
		os.Exit(1)
	}
	pool := warehouse.NewPool(db, cfg.Warehouse.RowLimit).WithLogger(logger)
	defer func() { _ = pool.Close() }()

	var inlineModel string
	if cfg.SemanticModel.LocalPath != "" {
		inlineModel, err = analyst.LoadSemanticModel(cfg.SemanticModel.LocalPath)
		if err != nil {
			logger.Error("failed to load semantic model", slog.Any("error", err))
			os.Exit(1)
		}
	}
	analystClient, err := analyst.NewClient(analyst.Config{
		BaseURL:   cfg.Analyst.BaseURL,
		Token:     cfg.Analyst.Token,
		TokenType: cfg.Analyst.TokenType,
		Timeout:   cfg.Analyst.Timeout,
		SemanticModelFile: analyst.SemanticModelFile{
			Database: cfg.SemanticModel.Database,
			Schema:   cfg.SemanticModel.Schema,
			Stage:    cfg.SemanticModel.Stage,
			File:     cfg.SemanticModel.File,
		},
		SemanticModelYAML: inlineModel,
		Breaker: analyst.BreakerConfig{
			MaxFailures: uint32(cfg.Analyst.BreakerMaxFailures),
			Timeout:     cfg.Analyst.BreakerTimeout,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Error("failed to initialize analyst client", slog.Any("error", err))
		os.Exit(1)
	}

	service := &ask.Service{
		Conversation: analystClient,
		Warehouse:    pool,
		Logger:       logger,
		QueryTimeout: cfg.Warehouse.QueryTimeout,
	}
	readiness := []api.ReadinessCheck{api.CheckPing("warehouse", pool)}
	if cfg.Archive.Enabled {
		objectStore, err := s3store.New(ctx, s3store.Config{
			Endpoint:         cfg.Archive.Endpoint,
			Region:           cfg.Archive.Region,
			Bucket:           cfg.Archive.Bucket,
			AccessKeyID:      cfg.Archive.AccessKeyID,
			SecretAccessKey:  cfg.Archive.SecretAccessKey,
			UseSSL:           cfg.Archive.UseSSL,
			Prefix:           cfg.Archive.Prefix,
			AutoCreateBucket: cfg.Archive.AutoCreateBucket,
		})
		if err != nil {
			logger.Error("failed to initialize archive store", slog.Any("error", err))
			os.Exit(1)
		}
		archiver := archive.New(objectStore)
		service.Archiver = archiver
		readiness = append(readiness, api.CheckPing("archive", archiver))
	}

	deps := api.Dependencies{
		Logger:            logger,
		Readiness:         api.CombineReadinessChecks(readiness...),
		DependencyTimeout: 2 * time.Second,
		Asker:             service,
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}
	limiter := auth.NewRateLimiter(cfg.Auth.RateLimitPerMin, cfg.Auth.RateLimitBurst)
	if limiter.Enabled() {
		go limiter.Run(ctx)
		deps.RateLimit = limiter.Middleware
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("warehouse_driver", cfg.Warehouse.Driver),
			slog.Bool("archive_enabled", cfg.Archive.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
