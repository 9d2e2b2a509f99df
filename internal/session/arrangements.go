package session

import (
	"context"
	"sync"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/arrange"
	"github.com/TimelyDataflow/diagnostics/internal/graph"
	"github.com/TimelyDataflow/diagnostics/internal/rendezvous"
	"github.com/TimelyDataflow/diagnostics/internal/series"
	pebblestore "github.com/TimelyDataflow/diagnostics/internal/storage/pebble"
	"github.com/TimelyDataflow/diagnostics/internal/wire"
	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

// ArrangementSession tracks arrangement tuple counts and emits one snapshot
// row per touched (worker, operator) at a fixed cadence. Rows are streamed on
// Rows and appended to a time-keyed series store.
type ArrangementSession struct {
	p       *pipeline
	aux     *pipeline
	builder *graph.Builder
	tracker *arrange.Tracker
	filter  celFilter
	db      *pebblestore.DB
	store   *series.Store
	logger  log.Logger

	rows     chan arrange.Row
	started  time.Time
	stopCh   chan struct{}
	loopDone chan struct{}
	finish   sync.Once
}

// StartArrangements rendezvouses with the source peers and starts the
// snapshot loop. When Options.ArrangementsAddr is set, arrangement deltas are
// accepted on a dedicated second listener; otherwise they arrive interleaved
// with the lifecycle events on Options.Addr.
func StartArrangements(ctx context.Context, opts Options) (*ArrangementSession, error) {
	opts = opts.withDefaults()

	ln, err := rendezvous.Listen(opts.Addr, opts.Logger)
	if err != nil {
		return nil, err
	}
	var auxLn *rendezvous.Listener
	if opts.ArrangementsAddr != "" {
		auxLn, err = rendezvous.Listen(opts.ArrangementsAddr, opts.Logger)
		if err != nil {
			_ = ln.Close()
			return nil, err
		}
	}
	opts.notifyListen(ln.Addr())
	if auxLn != nil {
		opts.notifyListen(auxLn.Addr())
	}

	filter, err := newCELFilter(opts.Filter)
	if err != nil {
		_ = ln.Close()
		if auxLn != nil {
			_ = auxLn.Close()
		}
		return nil, err
	}
	db, err := pebblestore.Open(pebblestore.Options{
		Path:    opts.SeriesPath,
		Metrics: opts.Metrics.StorageHook(),
	})
	if err != nil {
		_ = ln.Close()
		if auxLn != nil {
			_ = auxLn.Close()
		}
		return nil, err
	}

	s := &ArrangementSession{
		builder:  graph.NewBuilder(),
		tracker:  arrange.NewTracker(),
		filter:   filter,
		db:       db,
		store:    series.Open(db),
		logger:   opts.Logger.With(log.Component("arrangements")),
		rows:     make(chan arrange.Row, 64),
		stopCh:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}

	p, err := startPipeline(ctx, "arrangements", opts, ln, func(ev wire.Event) {
		s.builder.Apply(ev)
		s.tracker.Apply(ev)
	})
	if err != nil {
		if auxLn != nil {
			_ = auxLn.Close()
		}
		_ = db.Close()
		return nil, err
	}
	s.p = p
	if auxLn != nil {
		aux, err := startPipeline(ctx, "arrangements.deltas", opts, auxLn, s.tracker.Apply)
		if err != nil {
			p.stop()
			_ = db.Close()
			return nil, err
		}
		s.aux = aux
	}

	s.started = time.Now()
	go s.snapshotLoop(opts.Interval)
	return s, nil
}

// Rows streams snapshot rows as they are emitted. The channel closes when the
// session ends.
func (s *ArrangementSession) Rows() <-chan arrange.Row { return s.rows }

// Store exposes the series store holding every emitted row, for range scans
// after (or during) the session.
func (s *ArrangementSession) Store() *series.Store { return s.store }

// Err returns the recorded session error, if any, without blocking.
func (s *ArrangementSession) Err() error {
	if err := s.p.err(); err != nil {
		return err
	}
	if s.aux != nil {
		return s.aux.err()
	}
	return nil
}

func (s *ArrangementSession) snapshotLoop(interval time.Duration) {
	defer close(s.loopDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.emit(time.Since(s.started), false)
		}
	}
}

// emit flushes the touched counters into rows, filters them, persists them,
// and streams them. The final emission must not block on a consumer that has
// already moved on, so it sends best-effort.
func (s *ArrangementSession) emit(elapsed time.Duration, final bool) {
	flushed := s.tracker.Flush(elapsed, s.builder.Name)
	if len(flushed) == 0 {
		return
	}
	kept := flushed[:0]
	for _, row := range flushed {
		if s.filter.Eval(row) {
			kept = append(kept, row)
		}
	}
	if len(kept) == 0 {
		return
	}
	if err := s.store.Append(context.Background(), kept); err != nil {
		s.logger.Error("series append failed", log.Err(err))
	}
	s.p.metrics.RowsEmitted.Add(float64(len(kept)))
	for _, row := range kept {
		if final {
			select {
			case s.rows <- row:
			default:
			}
			continue
		}
		select {
		case s.rows <- row:
		case <-s.stopCh:
			return
		}
	}
}

// end runs the shared teardown: stop the snapshot loop, take one last
// snapshot of whatever drained out of the merger, and release the store.
func (s *ArrangementSession) end() {
	s.finish.Do(func() {
		close(s.stopCh)
		<-s.loopDone
		s.emit(time.Since(s.started), true)
		close(s.rows)
	})
}

// Wait blocks until every peer has closed and all events have been applied,
// then emits a final snapshot and closes Rows.
func (s *ArrangementSession) Wait() error {
	err := s.p.wait()
	if s.aux != nil {
		if aerr := s.aux.wait(); err == nil {
			err = aerr
		}
	}
	s.end()
	return err
}

// Stop aborts the session, drains buffered events, emits a final snapshot,
// and closes Rows.
func (s *ArrangementSession) Stop() error {
	s.p.stop()
	if s.aux != nil {
		s.aux.stop()
	}
	s.end()
	err := s.p.err()
	if err == nil && s.aux != nil {
		err = s.aux.err()
	}
	return err
}

// Close releases the underlying series store. Call after the last Scan.
func (s *ArrangementSession) Close() error {
	s.end()
	return s.db.Close()
}
