package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	billingdomain "github.com/smallbiznis/allotment/internal/billing/domain"
	"github.com/smallbiznis/allotment/internal/catalog"
	"github.com/smallbiznis/allotment/internal/clock"
	"github.com/smallbiznis/allotment/internal/identity"
	obscontext "github.com/smallbiznis/allotment/internal/observability/context"
	obslogger "github.com/smallbiznis/allotment/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/allotment/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	JobRenewal = "renewal"
	JobCatalog = "catalog_refresh"
)

var ErrInvalidConfig = errors.New("invalid_scheduler_config")

type Params struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	GenID   *snowflake.Node
	Billing billingdomain.Service
	Catalog *catalog.Catalog
	Locker  *Locker                `optional:"true"`
	Metrics *obsmetrics.JobMetrics `optional:"true"`
	Config  Config                 `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	clock   clock.Clock
	genID   *snowflake.Node
	billing billingdomain.Service
	catalog *catalog.Catalog
	locker  *Locker
	metrics *obsmetrics.JobMetrics
	cron    *cron.Cron
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.GenID == nil || p.Billing == nil || p.Catalog == nil {
		return nil, ErrInvalidConfig
	}
	cfg := p.Config.withDefaults()
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     cfg,
		clock:   p.Clock,
		genID:   p.GenID,
		billing: p.Billing,
		catalog: p.Catalog,
		locker:  p.Locker,
		metrics: p.Metrics,
		cron:    cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
	}, nil
}

// Start registers the jobs on the cron and starts it. Jobs run with ctx
// until Stop.
func (s *Scheduler) Start(ctx context.Context) error {
	jobs := []struct {
		name string
		spec string
		fn   func(context.Context) error
	}{
		{JobRenewal, s.cfg.RenewalSpec, s.RenewalJob},
		{JobCatalog, s.cfg.CatalogSpec, s.CatalogJob},
	}
	for _, job := range jobs {
		if _, err := s.cron.AddFunc(job.spec, func() {
			if err := s.runJob(ctx, job.name, job.fn); err != nil {
				s.log.Error("scheduler.job.failed", zap.String("job", job.name), zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("schedule %s %q: %w", job.name, job.spec, err)
		}
		s.log.Info("scheduler.job.registered", zap.String("job", job.name), zap.String("spec", job.spec))
	}
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// RunOnce runs every job immediately.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	return errors.Join(
		s.runJob(ctx, JobCatalog, s.CatalogJob),
		s.runJob(ctx, JobRenewal, s.RenewalJob),
	)
}

// RenewalJob charges every subscription due for the current period.
func (s *Scheduler) RenewalJob(ctx context.Context) error {
	if err := s.catalog.WaitReady(ctx); err != nil {
		return err
	}
	result, err := s.billing.RenewDue(ctx, s.clock.Now())
	if err != nil {
		return err
	}
	s.logger(ctx).Info("scheduler.renewal.done",
		zap.Int("renewed", result.Renewed),
		zap.Int("suspended", result.Suspended),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	if result.Failed > 0 {
		return fmt.Errorf("%d subscriptions failed to renew", result.Failed)
	}
	return nil
}

func (s *Scheduler) CatalogJob(ctx context.Context) error {
	services, err := s.catalog.Refresh(ctx)
	if err != nil {
		return err
	}
	s.logger(ctx).Debug("scheduler.catalog.refreshed", zap.Int("services", len(services)))
	return nil
}

func (s *Scheduler) runJob(parent context.Context, name string, fn func(ctx context.Context) error) error {
	start := time.Now()
	runID := s.genID.Generate().String()

	ctx := obscontext.WithActor(parent, string(identity.ActorWorker), "scheduler")
	ctx = identity.WithActor(ctx, identity.Worker())
	log := s.logger(ctx).With(zap.String("job", name), zap.String("run_id", runID))

	if s.locker != nil {
		lease, err := s.locker.Acquire(ctx, name)
		if err != nil {
			s.metrics.IncError(name, err)
			return fmt.Errorf("%s: lock: %w", name, err)
		}
		if lease == nil {
			s.metrics.IncSkipped(name)
			log.Info("scheduler.job.skipped", zap.String("reason", obsmetrics.JobReasonLocked))
			return nil
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				log.Warn("scheduler.lock.release_failed", zap.Error(err))
			}
		}()
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.JobTimeout)
	defer cancel()

	log.Info("scheduler.job.start")
	s.metrics.IncRun(name)
	err := fn(ctx)
	s.metrics.ObserveDuration(name, time.Since(start))

	fields := []zap.Field{zap.Int64("duration_ms", time.Since(start).Milliseconds())}
	if err != nil {
		s.metrics.IncError(name, err)
		log.Warn("scheduler.job.finish", append(fields, zap.Error(err))...)
		return fmt.Errorf("%s: %w", name, err)
	}
	log.Info("scheduler.job.finish", fields...)
	return nil
}

func (s *Scheduler) logger(ctx context.Context) *zap.Logger {
	return obslogger.WithContext(ctx, s.log)
}
