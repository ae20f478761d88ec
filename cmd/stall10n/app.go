package main

import (
	"context"
	"fmt"
	"time"

	"github.com/yourusername/stall10n/internal/backtest"
	"github.com/yourusername/stall10n/internal/database"
	"github.com/yourusername/stall10n/internal/health"
	"github.com/yourusername/stall10n/internal/logger"
	"github.com/yourusername/stall10n/internal/metrics"
	"github.com/yourusername/stall10n/internal/oddsfeed"
	"github.com/yourusername/stall10n/internal/probability"
	"github.com/yourusername/stall10n/internal/repository"
	"github.com/yourusername/stall10n/internal/scheduler"
	"github.com/yourusername/stall10n/internal/service"
)

// app holds the wired components shared by every command
type app struct {
	db       *database.DB
	repos    *repository.Repositories
	quota    *oddsfeed.QuotaTracker
	redis    *oddsfeed.RedisQuotaStore
	http     *oddsfeed.RateLimitedHTTPClient
	provider *oddsfeed.CachedProvider

	engine          *probability.Engine
	recommendations *service.RecommendationService
	capture         *service.CaptureService
	monitoring      *service.MonitoringService
	runner          *scheduler.Runner
	settler         *backtest.Settler
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	metrics.InitRegistry()

	if dryRun {
		a.repos = repository.NewMemoryStore().Repositories()
		appLog.Warn("Dry run: using in-memory store, nothing is persisted")
	} else {
		db, err := database.Initialize(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		a.db = db
		if a.repos, err = repository.NewRepositories(db); err != nil {
			return nil, fmt.Errorf("failed to initialize repositories: %w", err)
		}
		appLog.Info("Database connection established")
	}

	var store oddsfeed.QuotaStore
	if cfg.Quota.Backend == "redis" {
		rs, err := oddsfeed.NewRedisQuotaStore(ctx, cfg.Quota.RedisURL, cfg.Quota.KeyPrefix)
		if err != nil {
			return nil, err
		}
		a.redis = rs
		store = rs
	} else {
		store = oddsfeed.NewMemoryQuotaStore()
	}
	quotaLoc := cfg.Scheduler.Location()
	if loc, err := time.LoadLocation(cfg.Quota.ResetTimezone); err == nil {
		quotaLoc = loc
	}
	a.quota = oddsfeed.NewQuotaTracker(store, cfg.Quota.DailyLimit, quotaLoc, appLog.WithField("component", "quota"))

	a.http = oddsfeed.NewRateLimitedHTTPClient(oddsfeed.HTTPClientConfigFrom(&cfg.Provider), appLog.WithField("component", "http"))
	statpal := oddsfeed.NewStatPalClient(a.http, a.quota, cfg.Provider.BaseURL, cfg.Provider.AccessKey, appLog.WithField("provider", cfg.Provider.Name))
	a.provider = oddsfeed.NewCachedProvider(statpal, cfg.Provider.CacheTTL())

	engine, err := probability.NewEngine(probability.OptionsFromConfig(&cfg.Engine))
	if err != nil {
		return nil, fmt.Errorf("invalid engine configuration: %w", err)
	}
	a.engine = engine

	audit := logger.NewAuditLogger(appLog)
	w := cfg.Engine.Weights
	audit.LogWeightsLoaded(map[string]float64{
		"form":        w.Form,
		"class":       w.Class,
		"connections": w.Connections,
		"speed":       w.Speed,
		"conditions":  w.Conditions,
		"fitness":     w.Fitness,
	})

	captureLog := logger.NewCaptureLogger(appLog)
	a.recommendations = service.NewRecommendationService(engine, a.repos.Entry, a.repos.Snapshot, a.repos.Probability, logger.NewRecommendationLogger(appLog))
	a.capture = service.NewCaptureService(a.provider, a.repos.Entry, a.repos.Snapshot, a.recommendations, captureLog)
	a.monitoring = service.NewMonitoringService(a.repos.Race, a.repos.Snapshot, a.recommendations, a.quota, a.capture, audit, service.MonitoringOptions{
		Location:  cfg.Scheduler.Location(),
		LookAhead: cfg.Scheduler.LookAhead(),
		LiveOdds:  a.provider,
	})

	runnerCfg, err := scheduler.RunnerConfigFromConfig(&cfg.Scheduler)
	if err != nil {
		return nil, err
	}
	a.runner, err = scheduler.NewRunner(a.repos.Race, a.repos.Snapshot, a.capture, a.quota, runnerCfg, captureLog)
	if err != nil {
		return nil, err
	}

	a.settler = backtest.NewSettler(a.repos.Race, a.repos.Entry, a.repos.Probability, cfg.Engine.Bankroll, appLog)

	ok = true
	return a, nil
}

// healthChecks returns readiness checks for the optional backends
func (a *app) healthChecks() health.Config {
	hc := health.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Logger:      appLog.WithField("component", "health"),
		Checks: map[string]health.Check{
			"provider_circuit": func(context.Context) error {
				if a.http.IsOpen() {
					return oddsfeed.ErrCircuitOpen
				}
				return nil
			},
		},
	}
	if a.db != nil {
		hc.DB = a.db
	}
	if a.redis != nil {
		hc.Checks["quota_store"] = a.redis.Ping
	}
	return hc
}

func (a *app) Close() {
	if a.http != nil {
		if err := a.http.Close(); err != nil {
			appLog.WithError(err).Warn("Failed to close provider client")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			appLog.WithError(err).Warn("Failed to close redis connection")
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}
