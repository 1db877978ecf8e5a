package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vbonduro/pantrysync/internal/config"
	"github.com/vbonduro/pantrysync/internal/db"
	"github.com/vbonduro/pantrysync/internal/inference"
	"github.com/vbonduro/pantrysync/internal/inference/claude"
	"github.com/vbonduro/pantrysync/internal/inference/ollama"
	"github.com/vbonduro/pantrysync/internal/inference/openrouter"
	"github.com/vbonduro/pantrysync/internal/logging"
	"github.com/vbonduro/pantrysync/internal/metrics"
	"github.com/vbonduro/pantrysync/internal/photostore"
	"github.com/vbonduro/pantrysync/internal/photostore/local"
	"github.com/vbonduro/pantrysync/internal/photostore/s3store"
	"github.com/vbonduro/pantrysync/internal/reconcile"
	"github.com/vbonduro/pantrysync/internal/service"
	"github.com/vbonduro/pantrysync/internal/store"
	"github.com/vbonduro/pantrysync/internal/web"
)

// app holds every wired component. Commands build one and use the parts
// they need.
type app struct {
	cfg            *config.Config
	logger         *slog.Logger
	database       *sql.DB
	records        *store.RecordStore
	service        *service.RecordService
	engine         *reconcile.Engine
	scheduler      *reconcile.Scheduler
	inference      *inference.Orchestrator
	metricsHandler http.Handler
	cleanup        func()
}

func newApp(ctx context.Context, configPath, logFormat string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, logCleanup, err := logging.New(logging.Options{Level: cfg.LogLevel, File: cfg.LogFile, Format: logFormat})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	database, err := db.Open(cfg.DBPath)
	if err != nil {
		logCleanup()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		database: database,
		records:  store.NewRecordStore(database),
		cleanup: func() {
			if err := database.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
			logCleanup()
		},
	}

	localStore, err := local.NewLocalPhotoStore(cfg.PhotoPath)
	if err != nil {
		a.cleanup()
		return nil, fmt.Errorf("failed to initialize photo store: %w", err)
	}

	remote, err := newRemoteStore(ctx, cfg, logger)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNew(reg)
	a.metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	a.service = service.NewRecordService(a.records, localStore, remote, cfg.PhotoLocalOnly, logging.Component(logger, "records"))
	a.engine = reconcile.NewEngine(a.records, localStore, remote, m, logging.Component(logger, "reconcile"))
	a.scheduler = reconcile.NewScheduler(a.engine, a.records, cfg.SyncInterval, logging.Component(logger, "scheduler"))
	a.inference = inference.New(newProvider(cfg, logger), cfg.InferenceTimeout, m, logging.Component(logger, "inference")).
		WithLabelCache(cfg.InferenceCacheSize, cfg.InferenceCacheTTL)
	return a, nil
}

// newRemoteStore returns nil when no bucket is configured. Photos then stay
// local until one is.
func newRemoteStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (photostore.RemoteStore, error) {
	if !cfg.RemoteEnabled() {
		logger.Info("no object store configured, photos stay local")
		return nil, nil
	}
	s3, err := s3store.New(ctx, s3store.Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		Endpoint:      cfg.S3Endpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicURL,
	}, logging.Component(logger, "s3"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}
	logger.Info("using S3 object store", "bucket", cfg.S3Bucket, "endpoint", cfg.S3Endpoint)
	return photostore.NewRetryingRemote(s3, nil), nil
}

// newProvider routes "claude:" and "ollama:" model ids to their backends and
// everything else to OpenRouter.
func newProvider(cfg *config.Config, logger *slog.Logger) inference.Provider {
	router := inference.NewRouter(openrouter.New(cfg.OpenRouterAPIKey, cfg.OpenRouterURL)).
		Handle("ollama", ollama.New(cfg.OllamaHost))
	if cfg.ClaudeAPIKey != "" {
		router.Handle("claude", claude.New(cfg.ClaudeAPIKey, ""))
	} else {
		router.Handle("claude", nil)
	}
	if cfg.OpenRouterAPIKey == "" {
		logger.Warn("OPENROUTER_API_KEY is not set, OpenRouter candidates will fail")
	}
	return router
}

func (a *app) candidates() web.Candidates {
	return web.Candidates{
		Vision:      a.cfg.VisionCandidates,
		Text:        a.cfg.TextCandidates,
		MaxAttempts: a.cfg.InferenceMaxAttempts,
	}
}

func (a *app) server() *web.Server {
	return web.NewServer(a.service, a.engine, a.inference, a.candidates(), a.metricsHandler, logging.Component(a.logger, "web"))
}
