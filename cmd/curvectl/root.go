package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/vcurve/internal/config"
	"github.com/rovshanmuradov/vcurve/internal/deploy"
	"github.com/rovshanmuradov/vcurve/internal/events"
	"github.com/rovshanmuradov/vcurve/internal/logger"
	"github.com/rovshanmuradov/vcurve/internal/metrics"
	"github.com/rovshanmuradov/vcurve/internal/storage"
	"github.com/rovshanmuradov/vcurve/internal/storage/sqlite"
)

// app carries what every subcommand shares.
type app struct {
	configPath string
	verbose    bool
	pretty     bool
	noLogFile  bool

	cfg *config.Config
	log *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "curvectl",
		Short:         "Deploy and exercise a virtual bonding curve",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.log != nil {
				_ = a.log.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to a YAML config file (defaults only when empty)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&a.pretty, "pretty", false, "short colored log lines")
	flags.BoolVar(&a.noLogFile, "no-log-file", false, "log to the console only")

	root.AddCommand(
		newDeployCmd(a),
		newQuoteCmd(a),
		newSimulateCmd(a),
		newGraduateCmd(a),
		newTradesCmd(a),
	)
	return root
}

func (a *app) setup() error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logCfg := logger.DefaultConfig()
	logCfg.LogFile = cfg.Logging.File
	if a.noLogFile {
		logCfg.LogFile = ""
	}
	logCfg.Development = cfg.Logging.Development || a.verbose
	logCfg.Pretty = a.pretty

	a.log, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	return nil
}

// serviceOptions selects the optional collaborators of a command run.
type serviceOptions struct {
	journal      bool
	metrics      bool
	handlers     map[string]events.Handler
	poolFailures map[string]int
}

// openService assembles the curve and deploys it with the configured
// initial liquidity.
func (a *app) openService(ctx context.Context, opts serviceOptions) (*deploy.Service, error) {
	var store storage.Storage
	if opts.journal && a.cfg.Storage.Path != "" {
		s, err := sqlite.Open(a.cfg.Storage.Path, a.log.Logger)
		if err != nil {
			return nil, err
		}
		store = s
	}

	var collector *metrics.Collector
	if opts.metrics {
		collector = metrics.NewCollector(a.cfg.Curve.TokenDecimals, a.cfg.Curve.AssetDecimals)
	}

	svc, err := deploy.New(ctx, deploy.Options{
		Config:       a.cfg,
		Logger:       a.log.Logger,
		Store:        store,
		Metrics:      collector,
		Handlers:     opts.handlers,
		PoolFailures: opts.poolFailures,
	})
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	if _, err := svc.Deploy(ctx); err != nil {
		_ = svc.Close(context.Background())
		return nil, err
	}
	return svc, nil
}

func closeService(svc *deploy.Service, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := svc.Close(ctx); err != nil {
		log.Warn("Shutdown finished with errors", zap.Error(err))
	}
}
