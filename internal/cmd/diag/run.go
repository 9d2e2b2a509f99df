package diagrun

import (
	"bufio"
	"io"
	"os"

	"github.com/TimelyDataflow/diagnostics/internal/config"
	"github.com/TimelyDataflow/diagnostics/internal/metrics"
	"github.com/TimelyDataflow/diagnostics/internal/session"
	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

// Options configures a runner. Stdin/Stdout default to the process streams;
// tests substitute them.
type Options struct {
	Config config.Config
	// Out is where the graph runner writes its JSON rendering. Empty writes
	// to Stdout.
	Out    string
	Stdin  io.Reader
	Stdout io.Writer
	Logger log.Logger
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Stdin == nil {
		out.Stdin = os.Stdin
	}
	if out.Stdout == nil {
		out.Stdout = os.Stdout
	}
	if out.Logger == nil {
		out.Logger = buildLogger(out.Config.Log)
	}
	return out
}

func buildLogger(cfg log.Config) log.Logger {
	logger, err := log.ApplyConfig(&cfg)
	if err != nil {
		logger = log.NewLogger(log.WithLevel(log.InfoLevel), log.WithFormatter(&log.TextFormatter{}))
		logger.Warn("bad log configuration, using defaults", log.Err(err))
	}
	log.RedirectStdLog(logger)
	return logger
}

func sessionOptions(opts Options) session.Options {
	cfg := opts.Config
	return session.Options{
		Peers:            cfg.SourcePeers,
		Addr:             cfg.ListenAddr(),
		ArrangementsAddr: cfg.ArrangementsAddr(),
		Interval:         cfg.SnapshotInterval.Std(),
		Filter:           cfg.Filter,
		MaxFrameBytes:    cfg.MaxFrameBytes,
		SeriesPath:       cfg.SeriesPath,
		Logger:           opts.Logger,
		Metrics:          metrics.New(nil),
	}
}

// awaitLine reads one line from r in the background. The returned channel
// closes when a line (or EOF) arrives.
func awaitLine(r io.Reader) <-chan struct{} {
	ch := make(chan struct{})
	go func() {
		defer close(ch)
		br := bufio.NewReader(r)
		_, _ = br.ReadString('\n')
	}()
	return ch
}
