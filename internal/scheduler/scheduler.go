// Package scheduler runs the periodic invoice sweep inside the service.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/portal/internal/clock"
	obsmetrics "github.com/smallbiznis/portal/internal/observability/metrics"
	"github.com/smallbiznis/portal/internal/ratelimit"
	"github.com/smallbiznis/portal/internal/recurring"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const JobInvoiceSweep = "invoice_sweep"

var ErrInvalidConfig = errors.New("scheduler: invalid config")

// Sweeper runs one invoice generation pass over every tenant.
type Sweeper interface {
	RunAllTenants(ctx context.Context) (*recurring.SweepResult, error)
}

type leaser interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (*ratelimit.Lease, error)
	Release(ctx context.Context, lease *ratelimit.Lease) error
}

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Sweeper *recurring.Generator
	Locker  *ratelimit.Locker `optional:"true"`
	Config  Config            `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	sweeper Sweeper
	leases  leaser
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Sweeper == nil {
		return nil, ErrInvalidConfig
	}
	s := &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		sweeper: p.Sweeper,
	}
	if p.Locker != nil {
		s.leases = p.Locker
	}
	return s, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run, owner := s.ensureJobRun(ctx, name)
	if owner {
		s.logJobStart(ctx, run)
	}
	log := s.logger(ctx).With(
		zap.String("job", name),
		zap.String("run_id", run.runID),
	)
	schedMetrics := obsmetrics.Scheduler()
	schedMetrics.IncJobRun(name)

	err := fn(ctx)
	schedMetrics.ObserveJobDuration(name, time.Since(start))
	if owner {
		if err != nil && run != nil && run.errorCount == 0 {
			run.IncError()
		}
		s.logJobFinish(ctx, run)
	}
	if err == nil {
		return nil
	}

	// a deadline is a soft timeout; the next tick resumes the work
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	if isTimeout {
		schedMetrics.IncJobTimeout(name)
	}
	schedMetrics.IncJobError(name, err)
	if isTimeout {
		log.Warn("job timed out",
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name    string
		Enabled bool
		Run     func(context.Context) error
	}{
		{JobInvoiceSweep, s.isJobEnabled(JobInvoiceSweep), func(ctx context.Context) error {
			return s.runJob(ctx, JobInvoiceSweep, s.cfg.JobTimeout, s.InvoiceSweepJob)
		}},
	}

	for _, job := range jobs {
		if job.Enabled {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	schedMetrics := obsmetrics.Scheduler()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			schedMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) isJobEnabled(jobName string) bool {
	if len(s.cfg.EnabledJobs) == 0 {
		return true
	}
	for _, enabled := range s.cfg.EnabledJobs {
		if strings.EqualFold(enabled, jobName) {
			return true
		}
	}
	return false
}

// InvoiceSweepJob generates invoices for every tenant. With a lock backend
// configured only the replica holding the sweep lease runs it.
func (s *Scheduler) InvoiceSweepJob(ctx context.Context) error {
	run := jobRunFromContext(ctx)

	if s.leases != nil {
		lease, err := s.leases.Acquire(ctx, "scheduler:"+JobInvoiceSweep, s.cfg.LeaseTTL)
		if err != nil {
			return fmt.Errorf("acquire sweep lease: %w", err)
		}
		if lease == nil {
			obsmetrics.Scheduler().IncJobSkipped(JobInvoiceSweep, obsmetrics.SchedulerSkipReasonLeaseHeld)
			s.logger(ctx).Info("scheduler.job.skipped",
				zap.String("job", JobInvoiceSweep),
				zap.String("reason", obsmetrics.SchedulerSkipReasonLeaseHeld),
			)
			return nil
		}
		defer func() {
			if err := s.leases.Release(context.WithoutCancel(ctx), lease); err != nil {
				s.logSchedulerError(ctx, nil, "scheduler.lease.release_failed", JobInvoiceSweep, err)
			}
		}()
	}

	sweep, err := s.sweeper.RunAllTenants(recurring.WithTrigger(ctx, obsmetrics.TriggerScheduler))
	if err != nil {
		return err
	}

	run.AddProcessed(sweep.TenantCount)
	run.AddErrors(sweep.Totals.Errors)
	s.logTenantFailures(ctx, JobInvoiceSweep, sweep)
	s.logger(ctx).Info("scheduler.sweep.completed",
		zap.Int("tenants", sweep.TenantCount),
		zap.Int("generated", sweep.Totals.Generated),
		zap.Int("skipped", sweep.Totals.Skipped),
		zap.Int("errors", sweep.Totals.Errors),
	)
	return nil
}
