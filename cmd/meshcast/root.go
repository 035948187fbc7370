package main

import (
	"context"
	"io"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/objectfs/meshcast/internal/config"
	"github.com/objectfs/meshcast/internal/engine"
	"github.com/objectfs/meshcast/internal/logging"
	"github.com/objectfs/meshcast/internal/metrics"
	"github.com/objectfs/meshcast/internal/transport"
	"github.com/objectfs/meshcast/pkg/errors"
)

const longDescription = `Run a meshcast node.

The node joins a Maelstrom broadcast cluster: it waits for init on stdin,
then gossips every value it learns to its peers until stdin is closed.

Settings come from the defaults, then the --config file, then MESHCAST_*
environment variables, then flags.`

type options struct {
	configFile  string
	logLevel    string
	logFormat   string
	metricsPort int
}

func bindFlags(flags *pflag.FlagSet, opts *options) {
	flags.StringVarP(&opts.configFile, "config", "c", "", "path to a YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: DEBUG, INFO, WARN or ERROR")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	flags.IntVar(&opts.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (0 disables)")
}

func newRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "meshcast",
		Short:         "Topology-aware gossip broadcast node for Maelstrom",
		Long:          longDescription,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cfg, stdin, stdout, stderr)
		},
	}
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	bindFlags(cmd.PersistentFlags(), opts)

	cmd.AddCommand(configCommand(opts))
	return cmd
}

func configCommand(opts *options) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Write the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Flags(), opts)
			if err != nil {
				return err
			}
			return cfg.SaveToFile(output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "meshcast.yaml", "file to write")
	return cmd
}

// loadConfig layers defaults, file, environment and explicitly set flags.
func loadConfig(flags *pflag.FlagSet, opts *options) (*config.Configuration, error) {
	cfg := config.NewDefault()

	if opts.configFile != "" {
		if err := cfg.LoadFromFile(opts.configFile); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}

	if flags.Changed("log-level") {
		cfg.Global.LogLevel = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Global.LogFormat = opts.logFormat
	}
	if flags.Changed("metrics-port") {
		cfg.Monitoring.Metrics.Port = opts.metricsPort
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func runNode(parent context.Context, cfg *config.Configuration, stdin io.Reader, stdout, stderr io.Writer) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, err := logging.New(logging.Config{
		Level:  cfg.Global.LogLevel,
		Format: cfg.Global.LogFormat,
		Output: stderr,
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidConfig, "failed to create logger")
	}
	defer func() { _ = logger.Sync() }()

	reader := transport.NewReader(stdin, cfg.Dissemination.InboundQueue, logger)
	writer := transport.NewWriter(stdout, logger)
	reader.Start(ctx)

	initBody, err := transport.Handshake(ctx, reader, writer)
	if err != nil {
		logger.Error("handshake failed", zap.Error(err))
		return err
	}

	collector, err := metrics.NewCollector(
		metrics.ConfigFrom(cfg.Monitoring.Metrics, map[string]string{"node": initBody.NodeID}),
		logger,
	)
	if err != nil {
		return err
	}
	if err := collector.Start(ctx); err != nil {
		logger.Warn("metrics unavailable", zap.Error(err))
	}
	defer func() { _ = collector.Stop(context.Background()) }()

	node, err := engine.New(engine.Options{
		NodeID:  initBody.NodeID,
		NodeIDs: initBody.NodeIDs,
		Config:  cfg,
		Clock:   clockwork.NewRealClock(),
		Sender:  writer,
		Logger:  logger,
		Metrics: collector,
	})
	if err != nil {
		return err
	}

	err = node.Run(ctx, reader.Inbound(), reader.Errors())
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil && parent.Err() == nil:
		logger.Info("shutting down on signal")
		return nil
	default:
		logger.Error("node stopped", zap.Error(err), zap.Bool("fatal", errors.IsFatal(err)))
		return err
	}
}
