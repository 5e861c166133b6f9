// Package cmd defines the CLI commands for the permitscout executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrmoe28/permitscout/internal/app"
	"github.com/mrmoe28/permitscout/internal/config"
	"github.com/mrmoe28/permitscout/internal/logging"
	"github.com/mrmoe28/permitscout/internal/permits"
	"github.com/mrmoe28/permitscout/internal/pipeline"
	"github.com/mrmoe28/permitscout/internal/store"
)

var cfgFile string

// appKeyType keys the Runner stored in the command context.
type appKeyType struct{}

var appKey appKeyType

// Runner is the application surface the commands depend on. *app.App
// satisfies it; tests inject a mock through newRunner.
type Runner interface {
	Acquire(ctx context.Context, j *permits.Jurisdiction, addr *permits.Address, opts pipeline.Options) (*permits.AcquisitionResult, error)
	Crawl(ctx context.Context, startURL string) (*permits.CrawlResult, error)
	Logger() *zap.Logger
	Config() config.Config
	Store() store.AcquisitionStore
	Close()
}

// newRunner is the application factory, a variable so tests can swap in a
// mock without touching real backends.
var newRunner = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Runner, error) {
	return app.New(ctx, cfg, logger)
}

// newRootCmd creates and configures the root command. Configuration loading
// and service construction happen in PersistentPreRunE so every subcommand
// receives a fully built application through its context.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permitscout",
		Short: "Acquire structured permit data from government websites",
		Long: `permitscout resolves a jurisdiction's web presence, crawls its permit
pages politely, extracts fees, forms, contacts and application workflows,
and produces a confidence-scored result.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("build logger: %w", err)
			}
			runner, err := newRunner(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, runner))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if runner, ok := cmd.Context().Value(appKey).(Runner); ok && runner != nil {
				runner.Close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (YAML; environment overrides via PERMITSCOUT_*)")

	cmd.AddCommand(newAcquireCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// resolveApp pulls the Runner the root command stored in the context.
func resolveApp(ctx context.Context) (Runner, error) {
	runner, ok := ctx.Value(appKey).(Runner)
	if !ok || runner == nil {
		return nil, errors.New("application not initialized")
	}
	return runner, nil
}

// Execute is the CLI entry point. SIGINT/SIGTERM cancel the command context
// so in-flight crawls stop at their next suspension point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
