package diagrun

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/TimelyDataflow/diagnostics/internal/profile"
	"github.com/TimelyDataflow/diagnostics/internal/session"
	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

func writeProfile(w io.Writer, entries []profile.Entry) error {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ELAPSED\tADDRESS\tNAME")
	for _, e := range entries {
		name := e.Name
		if e.IsScope {
			name += " [scope]"
		}
		fmt.Fprintf(tw, "%v\t%s\t%s\n", e.Elapsed, e.Addr, name)
	}
	return tw.Flush()
}

// RunProfile connects to the computation, accumulates per-operator busy time,
// and prints the aggregated profile in descending elapsed order once the user
// presses enter or every peer disconnects. Scope rows include the time of
// everything nested beneath them.
func RunProfile(ctx context.Context, opts Options) error {
	opts = opts.withDefaults()
	if err := opts.Config.Validate(); err != nil {
		return err
	}

	s, err := session.StartProfile(ctx, sessionOptions(opts))
	if err != nil {
		return err
	}
	fmt.Fprintln(opts.Stdout, "Trace the computation, then press enter to render its profile.")

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()

	select {
	case <-awaitLine(opts.Stdin):
	case err = <-done:
	case <-ctx.Done():
	}
	entries, violations, stopErr := s.StopAndAggregate()
	if err == nil {
		err = stopErr
	}
	if err != nil {
		opts.Logger.Warn("session ended with an error", log.Err(err))
	}
	for _, v := range violations {
		opts.Logger.Warn("protocol violation",
			log.Str("kind", v.Kind.String()),
			log.Int("worker", v.Worker),
			log.Str("operator", v.Addr.String()),
			log.Dur("ts", v.TS),
		)
	}
	if werr := writeProfile(opts.Stdout, entries); werr != nil {
		return werr
	}
	return err
}
