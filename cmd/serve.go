package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/api"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/pipeline"
	"github.com/mrmoe28/permitscout/internal/scheduler"
)

// shutdownGrace bounds how long in-flight requests may run after a shutdown
// signal before the listener is torn down.
const shutdownGrace = 30 * time.Second

// newServeCmd creates the 'serve' subcommand: run the HTTP API and, when
// configured, the background refresh scheduler.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Long: `Serves the acquisition API: POST /v1/acquisitions runs the pipeline,
GET /v1/acquisitions lists stored results, and /metrics exposes Prometheus
collectors. When the scheduler is enabled, configured jurisdictions are
re-acquired on the cron cadence in the background.`,
		RunE: runServeCommand,
	}
}

func runServeCommand(cmd *cobra.Command, _ []string) error {
	runner, err := resolveApp(cmd.Context())
	if err != nil {
		return err
	}
	cfg := runner.Config()
	logger := runner.Logger()

	server := api.NewServer(runner, runner.Store(), cfg, logger)
	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sched, err := buildScheduler(runner)
	if err != nil {
		return err
	}
	if sched != nil {
		if err := sched.Start(cmd.Context()); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-cmd.Context().Done():
	}

	logger.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

// buildScheduler assembles the refresh loop from configuration. Targets are
// website URLs; the host doubles as the jurisdiction name for logging.
func buildScheduler(runner Runner) (*scheduler.Scheduler, error) {
	cfg := runner.Config()
	if !cfg.Scheduler.Enabled {
		return nil, nil
	}
	targets := make([]scheduler.Target, 0, len(cfg.Scheduler.Targets))
	for _, website := range cfg.Scheduler.Targets {
		u, err := url.Parse(website)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid scheduler target %q", website)
		}
		targets = append(targets, scheduler.Target{Name: u.Host, Website: website})
	}
	run := func(ctx context.Context, target scheduler.Target) error {
		j := &permits.Jurisdiction{Name: target.Name, Website: target.Website}
		_, err := runner.Acquire(ctx, j, nil, pipeline.Options{})
		return err
	}
	return scheduler.New(scheduler.Config{
		Spec:    cfg.Scheduler.Cron,
		Targets: targets,
	}, run, runner.Logger()), nil
}
