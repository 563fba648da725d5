// Package bootstrap opens the stores and builds the services shared by the
// radiant server and the radiantctl operator tool.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/radiant-ai/radiant/internal/archive"
	"github.com/radiant-ai/radiant/internal/clock"
	"github.com/radiant-ai/radiant/internal/config"
	"github.com/radiant-ai/radiant/internal/kv"
	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/notify"
	"github.com/radiant-ai/radiant/internal/ratelimit"
	"github.com/radiant-ai/radiant/internal/scheduler"
	"github.com/radiant-ai/radiant/internal/service/checkpoint"
	"github.com/radiant-ai/radiant/internal/service/governance"
	"github.com/radiant-ai/radiant/internal/service/oversight"
	"github.com/radiant-ai/radiant/internal/service/tiering"
	"github.com/radiant-ai/radiant/internal/storage"
	"github.com/radiant-ai/radiant/internal/telemetry"
	"github.com/radiant-ai/radiant/internal/vectorindex"
	"github.com/radiant-ai/radiant/migrations"
)

// App holds the opened stores and the services built on them.
type App struct {
	DB    *storage.DB
	Hot   kv.Store
	Redis *kv.Redis // nil unless the hot tier is Redis
	Cold  archive.Archive
	// Vectors is nil when no vector index is configured.
	Vectors *vectorindex.Qdrant

	Governance  *governance.Service
	Oversight   *oversight.Queue
	Checkpoints *checkpoint.Engine
	Tiering     *tiering.Coordinator
	Scheduler   *scheduler.Scheduler

	closers []func(ctx context.Context) error
	logger  *slog.Logger
}

// Open connects every store named in cfg, runs migrations and builds the
// services. On error everything already opened is closed.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (_ *App, err error) {
	a := &App{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.DB, err = storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: storage: %w", err)
	}
	a.onClose(func(ctx context.Context) error { a.DB.Close(ctx); return nil })

	// Pool gauges need the meter provider installed by telemetry.Init.
	reg, err := telemetry.RegisterPoolMetrics(telemetry.Meter("radiant/storage"), a.poolStat)
	if err != nil {
		logger.Warn("bootstrap: pool metrics not registered", "error", err)
	} else {
		a.onClose(func(context.Context) error { return reg.Unregister() })
	}

	// RunMigrations records applied files and skips them on restart, so an
	// error here is a real failure.
	if err = a.DB.RunMigrations(ctx, migrations.FS); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations: %w", err)
	}

	if err = a.openHot(ctx, cfg); err != nil {
		return nil, err
	}
	if err = a.openCold(ctx, cfg); err != nil {
		return nil, err
	}
	if cfg.QdrantURL != "" {
		a.Vectors, err = vectorindex.NewQdrant(vectorindex.Config{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("bootstrap: qdrant: %w", err)
		}
		a.onClose(func(context.Context) error { return a.Vectors.Close() })
		logger.Info("qdrant: enabled", "collection", cfg.QdrantCollection)
	} else {
		logger.Info("qdrant: disabled (no QDRANT_URL)")
	}

	events := notify.Fanout{
		notify.NewPGSink(a.DB, func(k notify.Kind) string { return storage.EventChannel(string(k)) }),
		notify.LogSink{Logger: logger},
	}
	clk := clock.System{}

	a.Governance, err = governance.New(a.DB, clk, governance.Options{
		DefaultPreset: model.Preset(cfg.DefaultPreset),
		CacheTTL:      30 * time.Second,
		Notify:        events,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: governance: %w", err)
	}
	a.onClose(func(context.Context) error { a.Governance.Close(); return nil })

	a.Oversight, err = oversight.New(a.DB, clk, oversight.Options{
		TimeoutDays:    cfg.OversightTimeoutDays,
		EscalationDays: cfg.OversightEscalationDays,
		Notify:         events,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: oversight: %w", err)
	}

	a.Checkpoints = checkpoint.New(a.DB, a.Governance, clk, checkpoint.Options{
		MaxEscalationLevel: cfg.MaxEscalationLevel,
		Notify:             events,
	}, logger)

	tierOpts := tiering.Options{
		PromoteBatch: cfg.PromoteBatch,
		ArchiveBatch: cfg.ArchiveBatch,
		HotGrace:     cfg.HotGrace,
		Notify:       events,
	}
	// A nil *Qdrant must not become a non-nil interface.
	if a.Vectors != nil {
		tierOpts.Vectors = a.Vectors
	}
	a.Tiering = tiering.New(a.DB, a.Hot, a.Cold, clk, tierOpts, logger)

	a.Scheduler, err = scheduler.New(scheduler.Config{
		Schedules: scheduler.Schedules{
			Promote:            cfg.CronPromote,
			Archive:            cfg.CronArchive,
			Dedup:              cfg.CronDedup,
			Health:             cfg.CronHealth,
			CheckpointTimeouts: cfg.CronCheckpointTimeouts,
			OversightTimeouts:  cfg.CronOversightTimeouts,
			Erasure:            cfg.CronErasure,
			ColdCompaction:     cfg.CronColdCompaction,
		},
		TenantConcurrency: cfg.TenantConcurrency,
		ErasureBatch:      cfg.ErasureBatch,
		CompactBatch:      cfg.CompactBatch,
		JobTimeout:        cfg.JobTimeout,
	}, scheduler.Deps{
		Tenants:     a.DB,
		Tiering:     a.Tiering,
		Checkpoints: a.Checkpoints,
		Oversight:   a.Oversight,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	return a, nil
}

func (a *App) openHot(ctx context.Context, cfg config.Config) error {
	switch cfg.KVBackend {
	case config.KVBadger:
		b, err := kv.OpenBadger(kv.BadgerConfig{
			Path:           cfg.BadgerPath,
			InMemory:       cfg.BadgerPath == "",
			MaxMemoryBytes: cfg.BadgerMemoryBytes,
			GCInterval:     10 * time.Minute,
			Logger:         a.logger,
		})
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		a.Hot = b
		a.logger.Info("hot tier: badger", "path", cfg.BadgerPath, "in_memory", cfg.BadgerPath == "")
	default:
		r, err := kv.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		a.Hot, a.Redis = r, r
		a.logger.Info("hot tier: redis")
	}
	a.onClose(func(context.Context) error { return a.Hot.Close() })
	return nil
}

func (a *App) openCold(ctx context.Context, cfg config.Config) error {
	switch cfg.ArchiveBackend {
	case config.ArchiveGCS:
		g, err := archive.NewGCS(ctx, cfg.GCSBucket, cfg.GCSCredentialsFile)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		a.Cold = g
		a.onClose(func(context.Context) error { return g.Close() })
		a.logger.Info("cold tier: gcs", "bucket", cfg.GCSBucket)
	default:
		a.Cold = archive.NewMemory()
		a.logger.Warn("cold tier: in-memory archive, archived nodes do not survive a restart")
	}
	return nil
}

// Limiter builds the write-path rate limiter. A Redis hot tier gives a
// fixed window shared by every replica; otherwise each process keeps its
// own token buckets.
func (a *App) Limiter(cfg config.Config) ratelimit.Limiter {
	if !cfg.RateLimitEnabled {
		a.logger.Info("rate limiting: disabled")
		return ratelimit.NoopLimiter{}
	}
	if a.Redis != nil {
		a.logger.Info("rate limiting: redis (fixed window)", "per_minute", cfg.RateLimitPerMinute)
		return ratelimit.NewRedisLimiter(a.Redis.Client(), "radiant", cfg.RateLimitPerMinute, time.Minute)
	}
	a.logger.Info("rate limiting: memory (in-process token bucket)",
		"per_minute", cfg.RateLimitPerMinute, "burst", cfg.RateLimitBurst)
	return ratelimit.NewMemoryLimiter(float64(cfg.RateLimitPerMinute)/60, cfg.RateLimitBurst, nil)
}

func (a *App) poolStat() telemetry.PoolStat {
	s := a.DB.Pool().Stat()
	return telemetry.PoolStat{
		Acquired: s.AcquiredConns(),
		Idle:     s.IdleConns(),
		Total:    s.TotalConns(),
		Max:      s.MaxConns(),
	}
}

func (a *App) onClose(f func(ctx context.Context) error) {
	a.closers = append(a.closers, f)
}

// Close releases everything Open acquired, newest first.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
