// Package rendezvous accepts the diagnostic connections from a computation's
// source peers: it binds a listen address and blocks until exactly the
// configured number of peers have connected.
//
// There is no default timeout. Waiting indefinitely for all peers is the
// documented behavior; callers cancel the wait through the context, which
// discards any already-accepted connections so that no partial session
// starts.
package rendezvous

import (
	"context"
	"fmt"
	"net"

	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

// BindError means the listen address is unusable. It is fatal and surfaced
// before any session starts.
type BindError struct {
	Addr string
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("rendezvous: bind %s: %v", e.Addr, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ConnectionError means a peer connection failed while the rendezvous was
// still assembling the session.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("rendezvous: connection failed: %v", e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Listener wraps a bound TCP listener awaiting source peers.
type Listener struct {
	ln     net.Listener
	logger log.Logger
}

// Listen binds addr. The address is a plain constructor parameter; nothing
// here reads process-wide state.
func Listen(addr string, logger log.Logger) (*Listener, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, &BindError{Addr: addr, Err: err}
	}
	return &Listener{ln: ln, logger: logger.With(log.Component("rendezvous"))}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (l *Listener) Addr() net.Addr { return l.ln.Addr() }

// Close closes the underlying listener.
func (l *Listener) Close() error { return l.ln.Close() }

type acceptResult struct {
	conn net.Conn
	err  error
}

// AcceptAll blocks until peers connections have been established and returns
// them in acceptance order. On context cancellation every already-accepted
// connection is closed and ctx.Err() is returned. A listener failure while
// waiting yields a ConnectionError.
func (l *Listener) AcceptAll(ctx context.Context, peers int) ([]net.Conn, error) {
	if peers <= 0 {
		return nil, fmt.Errorf("rendezvous: peer count must be positive, got %d", peers)
	}

	results := make(chan acceptResult)
	go func() {
		for {
			conn, err := l.ln.Accept()
			select {
			case results <- acceptResult{conn: conn, err: err}:
				if err != nil {
					return
				}
			case <-ctx.Done():
				if conn != nil {
					_ = conn.Close()
				}
				return
			}
		}
	}()

	conns := make([]net.Conn, 0, peers)
	discard := func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}
	for len(conns) < peers {
		select {
		case <-ctx.Done():
			// Unblock the accept goroutine and drop the partial session.
			_ = l.ln.Close()
			discard()
			return nil, ctx.Err()
		case res := <-results:
			if res.err != nil {
				discard()
				return nil, &ConnectionError{Err: res.err}
			}
			conns = append(conns, res.conn)
			l.logger.Info("peer connected",
				log.Str("remote", res.conn.RemoteAddr().String()),
				log.Int("accepted", len(conns)),
				log.Int("expected", peers),
			)
		}
	}
	return conns, nil
}
