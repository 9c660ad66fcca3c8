package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/omaskery/qnxtally/internal/config"
	"github.com/omaskery/qnxtally/pkg/metrics"
	"github.com/omaskery/qnxtally/pkg/util/batch"
)

var errInputsFailed = errors.New("one or more inputs failed")

var opts struct {
	configPath     string
	output         string
	format         string
	cleanDatabase  bool
	metricsFile    string
	logLevel       string
	logFormat      string
	generateConfig string
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "qnxtally [flags] trace1.txt [trace2.txt ...]",
		Short: "Tally scheduling and kernel call activity in QNX kernel traces",
		Long: `qnxtally reads textual QNX kernel event traces and reports, per input:
synchronization events per thread, kernel calls per CPU and per running thread,
and the running time and CPU usage of every thread.

Examples:
  qnxtally trace.txt                          # text report on stdout
  qnxtally -f json -o out.json a.txt b.txt    # one JSON object per input
  qnxtally -f sqlite -o traces.db a.txt       # SQLite export
  qnxtally --generate-config qnxtally.toml    # write an example configuration`,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.generateConfig != "" {
				return nil
			}
			return cobra.MinimumNArgs(1)(cmd, args)
		},
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.generateConfig != "" {
				return config.GenerateExampleConfig(opts.generateConfig)
			}

			cfg, err := config.LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			applyFlags(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, err := newLogger(cfg.Logging, os.Stderr)
			if err != nil {
				return err
			}
			return run(cfg, args, os.Stdout, logger)
		},
	}

	f := rootCmd.Flags()
	f.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file")
	f.StringVarP(&opts.output, "output", "o", "-", "output path, - for stdout")
	f.StringVarP(&opts.format, "format", "f", config.FormatText, "output format: json, text or sqlite")
	f.BoolVar(&opts.cleanDatabase, "clean-db", true, "remove an existing sqlite database before writing")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write run metrics to this Prometheus textfile")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level: error, info, debug or trace")
	f.StringVar(&opts.logFormat, "log-format", "console", "log format: console or json")
	f.StringVar(&opts.generateConfig, "generate-config", "", "write an example configuration to this path and exit")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// applyFlags overrides file configuration with the flags given on the command line
func applyFlags(cmd *cobra.Command, cfg *config.AppConfig) {
	flags := cmd.Flags()
	if flags.Changed("output") {
		cfg.Output.Path = opts.output
	}
	if flags.Changed("format") {
		cfg.Output.Format = opts.format
	}
	if flags.Changed("clean-db") {
		cfg.Output.CleanDatabase = opts.cleanDatabase
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Enabled = true
		cfg.Metrics.TextfilePath = opts.metricsFile
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = opts.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = opts.logFormat
	}
}

func newLogger(cfg config.LoggingConfig, w io.Writer) (logr.Logger, error) {
	verbosity, ok := config.LogVerbosity(cfg.Level)
	if !ok {
		return logr.Discard(), fmt.Errorf("unknown log level '%s': %w", cfg.Level, config.ErrInvalidConfig)
	}
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return logr.Discard(), fmt.Errorf("unknown log level '%s': %w", cfg.Level, config.ErrInvalidConfig)
	}

	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w}
	}
	zl := zerolog.New(w).Level(level).With().Timestamp().Logger()

	if verbosity > 0 {
		zerologr.SetMaxV(verbosity)
	}
	return zerologr.New(&zl), nil
}

// run parses every input, writes the results of those that succeeded, and reports whether any failed
func run(cfg *config.AppConfig, inputs []string, stdout io.Writer, logger logr.Logger) error {
	recorder := metrics.NewRecorder()
	runner := batch.NewRunner(
		batch.WithLogger(logger.WithName("batch")),
		batch.WithObserver(recorder),
	)
	result := runner.Run(inputs)

	if err := writeOutput(cfg.Output, result.Bundles, stdout, logger.WithName("output")); err != nil {
		return err
	}

	if cfg.Metrics.Enabled {
		if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
			return err
		}
		logger.V(1).Info("wrote metrics", "path", cfg.Metrics.TextfilePath)
	}

	if result.Failed() {
		return fmt.Errorf("%d of %d inputs: %w", len(result.Failures), len(inputs), errInputsFailed)
	}
	return nil
}
