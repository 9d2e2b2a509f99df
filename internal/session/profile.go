package session

import (
	"context"

	"github.com/TimelyDataflow/diagnostics/internal/graph"
	"github.com/TimelyDataflow/diagnostics/internal/profile"
	"github.com/TimelyDataflow/diagnostics/internal/rendezvous"
	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

// ProfileSession accumulates per-operator busy time alongside the dataflow
// graph, so that the final aggregation can attribute child time to scopes.
type ProfileSession struct {
	p       *pipeline
	builder *graph.Builder
	agg     *profile.Aggregator
}

// StartProfile rendezvouses with the source peers and starts accumulating
// scheduling intervals.
func StartProfile(ctx context.Context, opts Options) (*ProfileSession, error) {
	opts = opts.withDefaults()
	ln, err := rendezvous.Listen(opts.Addr, opts.Logger)
	if err != nil {
		return nil, err
	}
	opts.notifyListen(ln.Addr())
	s := &ProfileSession{
		builder: graph.NewBuilder(),
		agg:     profile.NewAggregator(opts.Logger),
	}
	p, err := startPipeline(ctx, "profile", opts, ln, func(ev wire.Event) {
		s.builder.Apply(ev)
		s.agg.Apply(ev)
	})
	if err != nil {
		return nil, err
	}
	s.p = p
	return s, nil
}

// Wait blocks until every peer has closed and all events have been applied.
func (s *ProfileSession) Wait() error { return s.p.wait() }

// Err returns the recorded session error, if any, without blocking.
func (s *ProfileSession) Err() error { return s.p.err() }

// Snapshot aggregates the profile accumulated so far against the current
// graph. Still-open scheduling intervals contribute nothing until their stop
// event arrives.
func (s *ProfileSession) Snapshot() []profile.Entry {
	return s.agg.Aggregate(s.builder.Snapshot())
}

// StopAndAggregate ends the session and returns the inclusive per-operator
// profile sorted by descending elapsed time, the protocol violations observed
// along the way, and the first connection error, if any.
func (s *ProfileSession) StopAndAggregate() ([]profile.Entry, []profile.Violation, error) {
	s.p.stop()
	g := s.builder.Snapshot()
	vs := s.agg.Violations()
	s.p.metrics.ProtocolViolations.WithLabelValues(s.p.name).Add(float64(len(vs)))
	return s.agg.Aggregate(g), vs, s.p.err()
}
