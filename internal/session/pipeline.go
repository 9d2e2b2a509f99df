package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/TimelyDataflow/diagnostics/internal/merge"
	"github.com/TimelyDataflow/diagnostics/internal/metrics"
	"github.com/TimelyDataflow/diagnostics/internal/rendezvous"
	"github.com/TimelyDataflow/diagnostics/internal/wire"
	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

// Options configures a session.
type Options struct {
	// Peers is the number of workers in the source computation; the session
	// accepts exactly this many connections per listen address.
	Peers int
	// Addr is the listen address for dataflow lifecycle events.
	Addr string
	// ArrangementsAddr optionally separates arrangement delta events onto a
	// second listener. Empty accepts deltas interleaved on Addr.
	ArrangementsAddr string
	// Interval is the arrangement snapshot cadence. Zero selects one second.
	Interval time.Duration
	// Filter is an optional CEL expression over emitted arrangement rows.
	Filter string
	// MaxFrameBytes bounds a frame body; zero selects the wire default.
	MaxFrameBytes int
	// SeriesPath persists emitted arrangement rows on disk instead of the
	// default in-memory store.
	SeriesPath string
	// OnListen, when set, is invoked with each bound listen address before
	// the rendezvous wait begins. Listening on port 0 is otherwise opaque.
	OnListen func(net.Addr)
	Logger   log.Logger
	Metrics  *metrics.Metrics
}

func (o *Options) notifyListen(addr net.Addr) {
	if o.OnListen != nil {
		o.OnListen(addr)
	}
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.Interval <= 0 {
		out.Interval = time.Second
	}
	if out.Logger == nil {
		out.Logger = log.NewNop()
	}
	if out.Metrics == nil {
		out.Metrics = metrics.New(nil)
	}
	return out
}

// pipeline is one listener's ingestion path: N connection readers feeding a
// merger whose single consumer applies events to the derived models.
type pipeline struct {
	name    string
	logger  log.Logger
	metrics *metrics.Metrics

	merger *merge.Merger
	conns  []net.Conn
	cancel context.CancelFunc

	readersDone chan struct{}
	applyDone   chan struct{}

	mu       sync.Mutex
	claimed  []bool
	firstErr error
	stopping bool
}

// startPipeline waits on an already-bound listener for exactly peers
// connections, then starts the readers and the apply loop. The listener is
// closed once the session is assembled. The context governs both the
// rendezvous wait and the running session.
func startPipeline(ctx context.Context, name string, opts Options, ln *rendezvous.Listener, apply func(wire.Event)) (*pipeline, error) {
	opts.Logger.Info("listening for source peers",
		log.Component(name),
		log.Str("addr", ln.Addr().String()),
		log.Int("peers", opts.Peers),
	)
	conns, err := ln.AcceptAll(ctx, opts.Peers)
	_ = ln.Close()
	if err != nil {
		return nil, err
	}
	opts.Metrics.ConnectionsAccepted.WithLabelValues(name).Add(float64(len(conns)))

	pctx, cancel := context.WithCancel(ctx)
	p := &pipeline{
		name:        name,
		logger:      opts.Logger.With(log.Component(name)),
		metrics:     opts.Metrics,
		merger:      merge.NewMerger(opts.Peers),
		conns:       conns,
		cancel:      cancel,
		readersDone: make(chan struct{}),
		applyDone:   make(chan struct{}),
		claimed:     make([]bool, opts.Peers),
	}

	// Closing the sockets is the only way to abort a blocked read.
	go func() {
		<-pctx.Done()
		for _, c := range p.conns {
			_ = c.Close()
		}
	}()

	g := new(errgroup.Group)
	for _, conn := range conns {
		conn := conn
		g.Go(func() error {
			p.readConn(pctx, conn, opts.MaxFrameBytes)
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		// Connections that died before declaring an identity would pin the
		// frontier at zero forever; with every reader finished, whatever
		// was never claimed is final.
		p.mu.Lock()
		for w, c := range p.claimed {
			if !c {
				p.merger.CloseWorker(w)
			}
		}
		p.mu.Unlock()
		close(p.readersDone)
		// releases the socket-closing goroutine when peers ended the
		// session on their own
		cancel()
	}()

	// Single consumer: all model mutation happens here, in merged order.
	// Deliberately not bound to pctx so that stopping drains the buffered
	// remainder before the loop exits on io.EOF.
	go func() {
		defer close(p.applyDone)
		for {
			ev, err := p.merger.Next(context.Background())
			if err != nil {
				return
			}
			apply(ev)
			p.metrics.EventsMerged.WithLabelValues(p.name).Inc()
		}
	}()

	return p, nil
}

// readConn decodes one connection until it closes or fails. The first frame
// binds the connection to its self-declared worker id.
func (p *pipeline) readConn(ctx context.Context, conn net.Conn, maxBody int) {
	r := wire.NewReader(conn, maxBody)
	worker := -1
	defer func() {
		_ = conn.Close()
		if worker >= 0 {
			p.merger.CloseWorker(worker)
		}
	}()

	for {
		batch, err := r.Next()
		if err != nil {
			switch {
			case err == io.EOF:
				p.logger.Info("peer closed", log.Int("worker", worker))
			case ctx.Err() != nil:
				// shutdown closed the socket under the reader
			default:
				var de *wire.DecodeError
				if errors.As(err, &de) {
					p.metrics.DecodeErrors.WithLabelValues(p.name).Inc()
				}
				p.fail(fmt.Errorf("worker %d: %w", worker, err))
				p.logger.Error("connection lost", log.Int("worker", worker), log.Err(err))
			}
			return
		}
		if worker == -1 {
			if err := p.claim(batch.Worker); err != nil {
				p.fail(err)
				p.logger.Error("rejecting connection", log.Err(err))
				return
			}
			worker = batch.Worker
			p.logger.Debug("peer identified", log.Int("worker", worker))
		} else if batch.Worker != worker {
			p.fail(&wire.DecodeError{
				Reason: fmt.Sprintf("connection bound to worker %d declared worker %d", worker, batch.Worker),
			})
			return
		}
		if err := p.merger.Push(worker, batch.Events); err != nil {
			p.fail(err)
			return
		}
		p.metrics.FramesDecoded.WithLabelValues(p.name).Inc()
	}
}

// claim binds a self-declared worker id to this connection.
func (p *pipeline) claim(worker int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if worker < 0 || worker >= len(p.claimed) {
		return &wire.DecodeError{Reason: fmt.Sprintf("declared worker %d outside configured 0..%d", worker, len(p.claimed)-1)}
	}
	if p.claimed[worker] {
		return fmt.Errorf("session: two connections declared worker %d", worker)
	}
	p.claimed[worker] = true
	return nil
}

// fail records the first connection-scoped error as the session error.
// Processing of the remaining workers continues.
func (p *pipeline) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.firstErr == nil && !p.stopping {
		p.firstErr = err
	}
}

// stop aborts outstanding reads, closes the sockets, and waits for the
// merger to drain every event the frontier had determined.
func (p *pipeline) stop() {
	p.mu.Lock()
	p.stopping = true
	p.mu.Unlock()
	p.cancel()
	<-p.readersDone
	<-p.applyDone
}

// wait blocks until the pipeline has drained on its own (all peers closed)
// and returns the recorded session error, if any.
func (p *pipeline) wait() error {
	<-p.readersDone
	<-p.applyDone
	return p.err()
}

func (p *pipeline) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}
