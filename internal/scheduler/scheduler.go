// Package scheduler runs the periodic tiering and governance sweeps on
// cron schedules. Per-tenant jobs fan out over every known tenant with a
// bounded number running at once; a failure for one tenant is logged and
// does not stop the others.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	cronlib "github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/radiant-ai/radiant/internal/model"
	"github.com/radiant-ai/radiant/internal/service/checkpoint"
	"github.com/radiant-ai/radiant/internal/service/tiering"
)

// Job names, as accepted by RunJob.
const (
	JobPromote            = "promote"
	JobArchive            = "archive"
	JobDedup              = "dedup"
	JobHealth             = "health"
	JobCheckpointTimeouts = "checkpoint-timeouts"
	JobOversightTimeouts  = "oversight-timeouts"
	JobErasure            = "erasure"
	JobColdCompaction     = "cold-compaction"
)

// Tiering is the slice of *tiering.Coordinator the scheduler drives.
type Tiering interface {
	PromoteHotToWarm(ctx context.Context, tenantID string) (tiering.PromoteResult, error)
	ArchiveWarmToCold(ctx context.Context, tenantID string) (tiering.ArchiveResult, error)
	RunDeduplication(ctx context.Context, tenantID string) (tiering.DedupResult, error)
	CheckTierHealth(ctx context.Context, tenantID string) ([]model.TierAlert, error)
	ProcessOpenErasures(ctx context.Context, limit int) (completed, failed int, err error)
	CompactColdErasures(ctx context.Context, limit int) (tiering.CompactResult, error)
}

// Checkpoints is the slice of *checkpoint.Engine the scheduler drives.
type Checkpoints interface {
	ProcessTimeouts(ctx context.Context) (checkpoint.TimeoutResult, error)
}

// Oversight is the slice of *oversight.Queue the scheduler drives.
type Oversight interface {
	ProcessTimeouts(ctx context.Context) (model.OversightSweep, error)
}

// Tenants lists the tenants per-tenant jobs run for.
type Tenants interface {
	ListTenants(ctx context.Context) ([]string, error)
}

// Schedules holds one cron expression per job. An empty expression
// disables the job's schedule; RunJob still works.
type Schedules struct {
	Promote            string
	Archive            string
	Dedup              string
	Health             string
	CheckpointTimeouts string
	OversightTimeouts  string
	Erasure            string
	ColdCompaction     string
}

// DefaultSchedules returns the production schedules.
func DefaultSchedules() Schedules {
	return Schedules{
		Promote:            "*/15 * * * *",
		Archive:            "0 3 * * *",
		Dedup:              "30 3 * * 0",
		Health:             "*/5 * * * *",
		CheckpointTimeouts: "* * * * *",
		OversightTimeouts:  "*/10 * * * *",
		Erasure:            "*/5 * * * *",
		ColdCompaction:     "0 * * * *",
	}
}

// Config configures a Scheduler. Zero values pick defaults.
type Config struct {
	Schedules Schedules
	// TenantConcurrency bounds how many tenants a per-tenant job processes at once.
	TenantConcurrency int
	ErasureBatch      int
	CompactBatch      int
	// JobTimeout bounds a single run of any job.
	JobTimeout time.Duration
}

// Deps are the services the jobs call.
type Deps struct {
	Tenants     Tenants
	Tiering     Tiering
	Checkpoints Checkpoints
	Oversight   Oversight
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cfg    Config
	deps   Deps
	cron   *cronlib.Cron
	jobs   map[string]job
	logger *slog.Logger
}

// New creates a Scheduler and registers every job with a non-empty schedule.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Scheduler, error) {
	if cfg.TenantConcurrency <= 0 {
		cfg.TenantConcurrency = 4
	}
	if cfg.ErasureBatch <= 0 {
		cfg.ErasureBatch = 50
	}
	if cfg.CompactBatch <= 0 {
		cfg.CompactBatch = 500
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Minute
	}

	cl := cronLogger{logger: logger}
	s := &Scheduler{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		cron: cronlib.New(cronlib.WithChain(
			cronlib.Recover(cl),
			cronlib.SkipIfStillRunning(cl),
		)),
	}
	s.jobs = map[string]job{
		JobPromote:            {spec: cfg.Schedules.Promote, run: s.perTenant(JobPromote, s.promote)},
		JobArchive:            {spec: cfg.Schedules.Archive, run: s.perTenant(JobArchive, s.archive)},
		JobDedup:              {spec: cfg.Schedules.Dedup, run: s.perTenant(JobDedup, s.dedup)},
		JobHealth:             {spec: cfg.Schedules.Health, run: s.perTenant(JobHealth, s.health)},
		JobCheckpointTimeouts: {spec: cfg.Schedules.CheckpointTimeouts, run: s.checkpointTimeouts},
		JobOversightTimeouts:  {spec: cfg.Schedules.OversightTimeouts, run: s.oversightTimeouts},
		JobErasure:            {spec: cfg.Schedules.Erasure, run: s.erasures},
		JobColdCompaction:     {spec: cfg.Schedules.ColdCompaction, run: s.coldCompaction},
	}
	for name, j := range s.jobs {
		j.name = name
		s.jobs[name] = j
		if j.spec == "" {
			continue
		}
		if _, err := s.cron.AddFunc(j.spec, s.wrap(j)); err != nil {
			return nil, fmt.Errorf("scheduler: job %s: invalid schedule %q: %w", name, j.spec, err)
		}
	}
	return s, nil
}

// Start begins running scheduled jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler: started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling and waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler: stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}

// Jobs lists the job names in sorted order.
func (s *Scheduler) Jobs() []string {
	names := make([]string, 0, len(s.jobs))
	for n := range s.jobs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// RunJob runs one job immediately and returns its error.
func (s *Scheduler) RunJob(ctx context.Context, name string) error {
	j, ok := s.jobs[name]
	if !ok {
		return fmt.Errorf("scheduler: unknown job %q", name)
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()
	return j.run(ctx)
}

func (s *Scheduler) wrap(j job) func() {
	return func() {
		start := time.Now()
		if err := s.RunJob(context.Background(), j.name); err != nil {
			s.logger.Error("scheduler: job failed", "job", j.name, "duration", time.Since(start), "error", err)
			return
		}
		s.logger.Debug("scheduler: job finished", "job", j.name, "duration", time.Since(start))
	}
}

// perTenant fans fn out over every tenant. The returned error counts the
// tenants that failed; each failure has already been logged.
func (s *Scheduler) perTenant(name string, fn func(ctx context.Context, tenantID string) error) func(context.Context) error {
	return func(ctx context.Context) error {
		tenants, err := s.deps.Tenants.ListTenants(ctx)
		if err != nil {
			return fmt.Errorf("scheduler: %s: list tenants: %w", name, err)
		}
		var failed atomic.Int32
		var g errgroup.Group
		g.SetLimit(s.cfg.TenantConcurrency)
		for _, t := range tenants {
			g.Go(func() error {
				if err := fn(ctx, t); err != nil {
					failed.Add(1)
					s.logger.Error("scheduler: tenant job failed", "job", name, "tenant_id", t, "error", err)
				}
				return nil
			})
		}
		_ = g.Wait()
		if n := failed.Load(); n > 0 {
			return fmt.Errorf("scheduler: %s: %d of %d tenants failed", name, n, len(tenants))
		}
		return nil
	}
}

func (s *Scheduler) promote(ctx context.Context, tenantID string) error {
	res, err := s.deps.Tiering.PromoteHotToWarm(ctx, tenantID)
	if res.Errors > 0 {
		s.logger.Warn("scheduler: promotion had item errors", "tenant_id", tenantID, "errors", res.Errors)
	}
	return err
}

func (s *Scheduler) archive(ctx context.Context, tenantID string) error {
	res, err := s.deps.Tiering.ArchiveWarmToCold(ctx, tenantID)
	if res.Errors > 0 {
		s.logger.Warn("scheduler: archival had item errors", "tenant_id", tenantID, "errors", res.Errors)
	}
	return err
}

func (s *Scheduler) dedup(ctx context.Context, tenantID string) error {
	res, err := s.deps.Tiering.RunDeduplication(ctx, tenantID)
	if res.Errors > 0 {
		s.logger.Warn("scheduler: deduplication had group errors", "tenant_id", tenantID, "errors", res.Errors)
	}
	return err
}

func (s *Scheduler) health(ctx context.Context, tenantID string) error {
	_, err := s.deps.Tiering.CheckTierHealth(ctx, tenantID)
	return err
}

func (s *Scheduler) checkpointTimeouts(ctx context.Context) error {
	_, err := s.deps.Checkpoints.ProcessTimeouts(ctx)
	return err
}

func (s *Scheduler) oversightTimeouts(ctx context.Context) error {
	_, err := s.deps.Oversight.ProcessTimeouts(ctx)
	return err
}

func (s *Scheduler) erasures(ctx context.Context) error {
	_, failed, err := s.deps.Tiering.ProcessOpenErasures(ctx, s.cfg.ErasureBatch)
	if err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("scheduler: %d erasure requests failed", failed)
	}
	return nil
}

func (s *Scheduler) coldCompaction(ctx context.Context) error {
	_, err := s.deps.Tiering.CompactColdErasures(ctx, s.cfg.CompactBatch)
	return err
}

// cronLogger adapts slog to the cron library's logger.
type cronLogger struct{ logger *slog.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("scheduler: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("scheduler: "+msg, append(keysAndValues, "error", err)...)
}
