package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fjordmetrics/revrec/internal/clock"
	obsmetrics "github.com/fjordmetrics/revrec/internal/observability/metrics"
	productdomain "github.com/fjordmetrics/revrec/internal/product/domain"
	revenuedomain "github.com/fjordmetrics/revrec/internal/revenue/domain"
	snapshotdomain "github.com/fjordmetrics/revrec/internal/snapshot/domain"
)

var ErrInvalidConfig = errors.New("scheduler: missing dependency")

type Params struct {
	fx.In

	Log         *zap.Logger
	Clock       clock.Clock
	SnapshotSvc snapshotdomain.Service
	ProductSvc  productdomain.Service
	Config      Config `optional:"true"`
}

// Scheduler keeps derived state fresh: it re-seeds the periodization table
// and re-derives the trailing window of monthly snapshots on every tick.
type Scheduler struct {
	log         *zap.Logger
	cfg         Config
	clock       clock.Clock
	snapshotSvc snapshotdomain.Service
	productSvc  productdomain.Service
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.SnapshotSvc == nil || p.ProductSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:         p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:         p.Config.withDefaults(),
		clock:       p.Clock,
		snapshotSvc: p.SnapshotSvc,
		productSvc:  p.ProductSvc,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	err := fn(ctx)
	obsmetrics.Scheduler().ObserveJob(name, time.Since(start), err)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{"reload_periodization", s.ReloadPeriodizationJob},
		{"refresh_snapshots", s.RefreshSnapshotsJob},
	}

	for _, job := range jobs {
		if s.isJobEnabled(job.Name) {
			err = errors.Join(err, s.runJob(parent, job.Name, job.Run))
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

// ReloadPeriodizationJob re-applies the periodization file so edits land
// without a restart. Manual table entries survive the reseed.
func (s *Scheduler) ReloadPeriodizationJob(ctx context.Context) error {
	return s.productSvc.Reload(ctx)
}

// RefreshSnapshotsJob re-derives both streams' snapshots for the trailing
// window. Months keep changing after the fact: a late credit note or a
// subscription cancellation rewrites history inside the window.
func (s *Scheduler) RefreshSnapshotsJob(ctx context.Context) error {
	current := revenuedomain.MonthOf(s.clock.Now())
	var jobErr error
	refreshed := 0

	for i := s.cfg.LookBackMonths - 1; i >= 0; i-- {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}
		month := current.AddMonths(-i)
		for _, stream := range []revenuedomain.Stream{revenuedomain.StreamSubscription, revenuedomain.StreamInvoice} {
			if _, err := s.snapshotSvc.Compute(ctx, stream, month); err != nil {
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("snapshot refresh failed",
					zap.String("month", month.String()),
					zap.String("stream", string(stream)),
					zap.Error(err),
				)
				continue
			}
			refreshed++
		}
	}

	s.log.Info("snapshots refreshed",
		zap.String("through", current.String()),
		zap.Int("months", s.cfg.LookBackMonths),
		zap.Int("snapshots", refreshed),
	)
	return jobErr
}
