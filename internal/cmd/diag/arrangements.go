package diagrun

import (
	"context"
	"fmt"
	"io"

	"github.com/TimelyDataflow/diagnostics/internal/arrange"
	"github.com/TimelyDataflow/diagnostics/internal/session"
	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

func writeRow(w io.Writer, row arrange.Row) {
	fmt.Fprintf(w, "%v\tworker=%d\t%s\t%s\t%d\n",
		row.Elapsed, row.Worker, row.Addr, row.Name, row.Count)
}

// RunArrangements connects to the computation and streams arrangement size
// snapshots until the context is cancelled or every peer disconnects.
func RunArrangements(ctx context.Context, opts Options) error {
	opts = opts.withDefaults()
	if err := opts.Config.Validate(); err != nil {
		return err
	}

	s, err := session.StartArrangements(ctx, sessionOptions(opts))
	if err != nil {
		return err
	}
	defer s.Close()

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()

	for {
		select {
		case row, ok := <-s.Rows():
			if !ok {
				err := <-done
				if err != nil {
					opts.Logger.Warn("session ended with an error", log.Err(err))
				}
				return err
			}
			writeRow(opts.Stdout, row)
		case <-ctx.Done():
			if serr := s.Stop(); serr != nil {
				opts.Logger.Warn("session ended with an error", log.Err(serr))
			}
			// drain whatever the final snapshot still produced
			for row := range s.Rows() {
				writeRow(opts.Stdout, row)
			}
			return nil
		}
	}
}
