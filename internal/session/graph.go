package session

import (
	"context"

	"github.com/TimelyDataflow/diagnostics/internal/graph"
	"github.com/TimelyDataflow/diagnostics/internal/rendezvous"
	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

// GraphSession reconstructs the computation's dataflow graph from operator
// and channel construction events.
type GraphSession struct {
	p       *pipeline
	builder *graph.Builder
}

// StartGraph rendezvouses with the source peers and starts consuming events.
// The returned session accumulates graph structure until stopped or until all
// peers close.
func StartGraph(ctx context.Context, opts Options) (*GraphSession, error) {
	opts = opts.withDefaults()
	ln, err := rendezvous.Listen(opts.Addr, opts.Logger)
	if err != nil {
		return nil, err
	}
	opts.notifyListen(ln.Addr())
	s := &GraphSession{builder: graph.NewBuilder()}
	p, err := startPipeline(ctx, "graph", opts, ln, func(ev wire.Event) {
		s.builder.Apply(ev)
	})
	if err != nil {
		return nil, err
	}
	s.p = p
	return s, nil
}

// Snapshot returns the graph reconstructed so far. Safe to call while the
// session is still running.
func (s *GraphSession) Snapshot() *graph.Graph { return s.builder.Snapshot() }

// Wait blocks until every peer has closed and all events have been applied.
func (s *GraphSession) Wait() error { return s.p.wait() }

// Err returns the recorded session error, if any, without blocking.
func (s *GraphSession) Err() error { return s.p.err() }

// Stop aborts the session, drains buffered events, and returns the final
// graph together with the first connection error, if any.
func (s *GraphSession) Stop() (*graph.Graph, error) {
	s.p.stop()
	return s.builder.Snapshot(), s.p.err()
}
