package scheduler

import (
	"context"

	billingdomain "github.com/lessonworks/billing/internal/billing/domain"
	"github.com/lessonworks/billing/internal/clock"
	"github.com/lessonworks/billing/internal/config"
	"github.com/lessonworks/billing/internal/period"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Config  config.Config
	Log     *zap.Logger
	Clock   clock.Clock
	Billing billingdomain.Service
}

// Scheduler runs the monthly billing batch on a cron spec. Each firing
// bills the previous calendar month, so the default "0 3 1 * *" closes
// a month a few hours after it ends.
type Scheduler struct {
	log     *zap.Logger
	cron    *cron.Cron
	clock   clock.Clock
	billing billingdomain.Service
	spec    string
}

func New(p Params) *Scheduler {
	return &Scheduler{
		log:     p.Log.Named("scheduler"),
		cron:    cron.New(),
		clock:   p.Clock,
		billing: p.Billing,
		spec:    p.Config.SchedulerCronSpec,
	}
}

// RunOnce bills the month preceding the clock's current month.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	target := period.FromTime(s.clock.Now()).Prev()
	summary, err := s.billing.RunPeriod(ctx, target)
	if err != nil {
		s.log.Error("scheduled billing run failed",
			zap.String("period", string(target)),
			zap.Error(err),
		)
		return err
	}
	s.log.Info("scheduled billing run finished",
		zap.String("run_id", summary.RunID),
		zap.String("period", string(summary.Period)),
		zap.Int("succeeded", len(summary.Succeeded)),
		zap.Int("skipped", len(summary.Skipped)),
		zap.Int("errored", len(summary.Errored)),
	)
	return nil
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, func() {
		_ = s.RunOnce(context.Background())
	}); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Info("scheduler started", zap.String("cron", s.spec))
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
