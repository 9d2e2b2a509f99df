package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	diagrun "github.com/TimelyDataflow/diagnostics/internal/cmd/diag"
	cfgpkg "github.com/TimelyDataflow/diagnostics/internal/config"
	logpkg "github.com/TimelyDataflow/diagnostics/pkg/log"
)

func main() {
	var (
		configPath string
		iface      string
		port       int
		deltaPort  int
		peers      int
		interval   string
		filter     string
		seriesPath string
		outPath    string
		logLevel   string
		logFormat  string
	)

	loadConfig := func() (cfgpkg.Config, error) {
		cfg, err := cfgpkg.Load(configPath)
		if err != nil {
			return cfgpkg.Config{}, err
		}
		cfgpkg.FromEnv(&cfg)
		if iface != "" {
			cfg.Interface = iface
		}
		if port != 0 {
			cfg.Port = port
		}
		if deltaPort != 0 {
			cfg.ArrangementsPort = deltaPort
		}
		if peers != 0 {
			cfg.SourcePeers = peers
		}
		if interval != "" {
			d, err := time.ParseDuration(interval)
			if err != nil {
				return cfgpkg.Config{}, fmt.Errorf("bad --interval: %w", err)
			}
			cfg.SnapshotInterval = cfgpkg.Duration(d)
		}
		if filter != "" {
			cfg.Filter = filter
		}
		if seriesPath != "" {
			cfg.SeriesPath = seriesPath
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if logFormat != "" {
			cfg.Log.Format = logFormat
		}
		return cfg, cfg.Validate()
	}

	rootCmd := &cobra.Command{
		Use:   "tdiag",
		Short: "Diagnostic tools for timely dataflow computations",
		Long: "tdiag listens for the diagnostic event streams of a running timely dataflow\n" +
			"computation and reconstructs its dataflow graph, profiles its operators, or\n" +
			"tracks the sizes of its arrangements.",
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "configuration file (JSON or YAML)")
	pf.StringVarP(&iface, "interface", "i", "", "interface to listen on (default 127.0.0.1)")
	pf.IntVarP(&port, "port", "p", 0, "port to listen on (default 51317)")
	pf.IntVar(&peers, "source-peers", 0, "number of workers in the source computation (default 1)")
	pf.StringVar(&logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.StringVar(&logFormat, "log-format", "", "log format: text|json")

	run := func(runner func(context.Context, diagrun.Options) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runner(ctx, diagrun.Options{Config: cfg, Out: outPath})
		}
	}

	graphCmd := &cobra.Command{
		Use:   "graph",
		Short: "Reconstruct the computation's dataflow graph",
		RunE:  run(diagrun.RunGraph),
	}
	graphCmd.Flags().StringVarP(&outPath, "out", "o", "", "write the JSON graph to this file instead of stdout")
	rootCmd.AddCommand(graphCmd)

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Profile cumulative operator scheduling time",
		RunE:  run(diagrun.RunProfile),
	}
	rootCmd.AddCommand(profileCmd)

	arrangementsCmd := &cobra.Command{
		Use:     "arrangements",
		Short:   "Track the number of tuples held by each arrangement",
		Aliases: []string{"arrange"},
		RunE:    run(diagrun.RunArrangements),
	}
	af := arrangementsCmd.Flags()
	af.IntVar(&deltaPort, "differential-port", 0, "dedicated port for arrangement delta streams")
	af.StringVar(&interval, "interval", "", "snapshot cadence, e.g. 1s or 500ms (default 1s)")
	af.StringVar(&filter, "filter", "", "CEL expression selecting rows, e.g. 'count > 1000'")
	af.StringVar(&seriesPath, "series-path", "", "persist the size series to this directory")
	rootCmd.AddCommand(arrangementsCmd)

	if err := rootCmd.Execute(); err != nil {
		logger := logpkg.NewLogger(
			logpkg.WithLevel(logpkg.InfoLevel),
			logpkg.WithFormatter(&logpkg.TextFormatter{}),
			logpkg.WithOutput(logpkg.NewConsoleOutput()),
		)
		logger.Error("tdiag failed", logpkg.Err(err))
		os.Exit(1)
	}
}
