// Package scheduler re-runs acquisitions for configured jurisdictions on a
// cron cadence so cached permit data stays fresh.
package scheduler

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Target names one jurisdiction website to refresh.
type Target struct {
	Name    string
	Website string
}

// RunFunc executes one acquisition refresh. Errors are logged per target;
// one failing target never stops the cycle.
type RunFunc func(ctx context.Context, target Target) error

// Config controls the refresh loop.
type Config struct {
	// Spec is a cron expression, e.g. "0 3 * * *" or "@every 6h".
	Spec string
	// Targets lists the jurisdictions to refresh each cycle.
	Targets []Target
	// RunOnStart fires one cycle immediately instead of waiting for the
	// first tick.
	RunOnStart bool
}

// Scheduler wraps robfig/cron and owns the refresh loop.
type Scheduler struct {
	cron   *cron.Cron
	cfg    Config
	run    RunFunc
	logger *zap.Logger
}

// New builds a Scheduler. Call Start to begin ticking.
func New(cfg Config, run RunFunc, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:   cron.New(),
		cfg:    cfg,
		run:    run,
		logger: logger,
	}
}

// Start registers the refresh job and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.run == nil {
		return fmt.Errorf("scheduler: run function is required")
	}
	if _, err := s.cron.AddFunc(s.cfg.Spec, func() { s.refresh(ctx) }); err != nil {
		return fmt.Errorf("register cron spec %q: %w", s.cfg.Spec, err)
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("spec", s.cfg.Spec),
		zap.Int("targets", len(s.cfg.Targets)))

	if s.cfg.RunOnStart {
		go s.refresh(ctx)
	}
	return nil
}

// Stop halts the cron loop and waits for any running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) refresh(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if len(s.cfg.Targets) == 0 {
		s.logger.Warn("refresh cycle skipped, no targets configured")
		return
	}

	s.logger.Info("refresh cycle started", zap.Int("targets", len(s.cfg.Targets)))
	for _, target := range s.cfg.Targets {
		if ctx.Err() != nil {
			s.logger.Info("refresh cycle interrupted", zap.String("jurisdiction", target.Name))
			return
		}
		if err := s.run(ctx, target); err != nil {
			s.logger.Warn("refresh failed",
				zap.String("jurisdiction", target.Name),
				zap.String("website", target.Website),
				zap.Error(err))
		}
	}
	s.logger.Info("refresh cycle complete")
}
