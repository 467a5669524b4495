// Package main provides the CLI entry point for logbench, a throughput
// benchmark for Go logging backends under a concurrent synthetic workload.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weiihann/logbench/backend"
	"github.com/weiihann/logbench/config"
	"github.com/weiihann/logbench/harness"
	"github.com/weiihann/logbench/metrics"
	"github.com/weiihann/logbench/report"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := newRootCmd(logger, level)
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		logger.Error("logbench failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "logbench",
		Short: "Throughput benchmark for Go logging backends",
		Long: `Logbench drives each logging backend with a large pool of concurrent
workers, each emitting one record and then performing a fixed amount of
synthetic CPU and IO work, and reports completed operations per second.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("parse log level: %w", err)
			}

			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Harness log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(logger))
	root.AddCommand(newListCmd())

	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available logging backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range backend.Known() {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}

			return nil
		},
	}
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var configFile string

	v := viper.New()

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Benchmark the selected logging backends",
		Long: `Run a warmup and a measurement phase against each backend in order,
shutting every backend down before the next one starts, and print one
result record per backend per trial.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}

			return runBenchmark(cmd.Context(), logger, cmd.OutOrStdout(), cfg)
		},
	}

	flags := cmd.Flags()
	config.RegisterFlags(flags)
	cobra.CheckErr(v.BindPFlags(flags))

	flags.StringVar(&configFile, "config", "",
		"Config file (YAML, TOML or JSON); flags and LOGBENCH_* env override it")

	return cmd
}

func runBenchmark(
	ctx context.Context,
	logger *slog.Logger,
	out io.Writer,
	cfg config.Config,
) error {
	trial := cfg.Trial()

	logger.InfoContext(ctx, "starting benchmark",
		slog.Any("backends", cfg.Backends),
		slog.Int("threads", trial.Threads),
		slog.String("mode", string(trial.Mode)),
		slog.Int64("cpu_tokens", trial.Workload.CPUTokens),
		slog.Int64("io_block_micros", trial.Workload.IOBlockMicros),
		slog.Int("trials", cfg.Trials),
	)

	opts := cfg.BackendOptions()
	opts.Logger = logger

	candidates := make([]harness.Candidate, 0, len(cfg.Backends))
	for _, name := range cfg.Backends {
		name := name
		candidates = append(candidates, harness.Candidate{
			New: func() (backend.Adapter, error) {
				return backend.New(name, opts)
			},
			Config: trial,
			Trials: cfg.Trials,
		})
	}

	coord := harness.NewCoordinator(logger, cfg.ShutdownTimeout)

	var recorder *metrics.Recorder
	if cfg.MetricsFile != "" {
		recorder = metrics.NewRecorder()
		coord.Observer = recorder
	}

	results, runErr := coord.RunAll(ctx, candidates)

	if len(results) > 0 {
		if err := report.Write(out, cfg.Format, results); err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	if recorder != nil {
		if err := recorder.WriteTextfile(cfg.MetricsFile); err != nil {
			logger.WarnContext(ctx, "failed to write metrics",
				slog.String("error", err.Error()),
			)
		}
	}

	if runErr != nil {
		return fmt.Errorf("benchmark aborted: %w", runErr)
	}

	logger.InfoContext(ctx, "benchmark complete")

	return nil
}
