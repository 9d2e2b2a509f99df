// Package merge combines the per-worker event sequences into one globally
// progressing sequence using a low-watermark (frontier) discipline.
//
// Producers (one per connection) push decoded batches into their worker's
// queue; a single consumer pulls merged events. An event is released only
// once its timestamp is at or below the minimum last-pushed timestamp across
// all still-open workers, so a released event can never be preceded by a
// not-yet-seen earlier one. A stalled worker therefore stalls release for
// everyone: documented backpressure, not a bug. Buffering is unbounded in
// principle, bounded in practice by how far worker clocks diverge.
package merge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

// Merger merges N per-worker, internally time-ordered event sequences.
type Merger struct {
	mu     sync.Mutex
	queues []workerQueue
	last   []time.Duration
	closed []bool
	open   int
	notify chan struct{}
}

type workerQueue struct {
	buf  []wire.Event
	head int
}

func (q *workerQueue) empty() bool { return q.head >= len(q.buf) }

func (q *workerQueue) peek() *wire.Event { return &q.buf[q.head] }

func (q *workerQueue) pop() wire.Event {
	ev := q.buf[q.head]
	q.head++
	if q.head == len(q.buf) {
		q.buf = q.buf[:0]
		q.head = 0
	}
	return ev
}

// NewMerger returns a Merger for the given worker count.
func NewMerger(workers int) *Merger {
	return &Merger{
		queues: make([]workerQueue, workers),
		last:   make([]time.Duration, workers),
		closed: make([]bool, workers),
		open:   workers,
		notify: make(chan struct{}),
	}
}

// Push appends events to worker's queue and advances its watermark to the
// highest timestamp pushed. Events within a worker's stream are expected in
// non-decreasing timestamp order.
func (m *Merger) Push(worker int, events []wire.Event) error {
	if len(events) == 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if worker < 0 || worker >= len(m.queues) {
		return fmt.Errorf("merge: worker %d out of range 0..%d", worker, len(m.queues)-1)
	}
	if m.closed[worker] {
		return fmt.Errorf("merge: push to closed worker %d", worker)
	}
	m.queues[worker].buf = append(m.queues[worker].buf, events...)
	if ts := events[len(events)-1].TS; ts > m.last[worker] {
		m.last[worker] = ts
	}
	m.broadcast()
	return nil
}

// CloseWorker marks a worker's contribution final: it leaves the frontier
// computation and its buffered events drain in timestamp order.
func (m *Merger) CloseWorker(worker int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if worker < 0 || worker >= len(m.closed) || m.closed[worker] {
		return
	}
	m.closed[worker] = true
	m.open--
	m.broadcast()
}

// broadcast wakes all Next waiters. Callers hold mu.
func (m *Merger) broadcast() {
	close(m.notify)
	m.notify = make(chan struct{})
}

// Next blocks until an event is releasable and returns it. Events come out
// in global timestamp order with worker id as tie-break. Once every worker
// is closed and drained, Next returns io.EOF.
func (m *Merger) Next(ctx context.Context) (wire.Event, error) {
	for {
		m.mu.Lock()
		if ev, ok := m.take(); ok {
			m.mu.Unlock()
			return ev, nil
		}
		if m.open == 0 && m.drained() {
			m.mu.Unlock()
			return wire.Event{}, io.EOF
		}
		ch := m.notify
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return wire.Event{}, ctx.Err()
		case <-ch:
		}
	}
}

// take pops the minimum-timestamp releasable event, if any. Callers hold mu.
func (m *Merger) take() (wire.Event, bool) {
	frontier, bounded := m.frontier()
	best := -1
	for w := range m.queues {
		q := &m.queues[w]
		if q.empty() {
			continue
		}
		if bounded && q.peek().TS > frontier {
			continue
		}
		if best == -1 || q.peek().TS < m.queues[best].peek().TS {
			best = w
		}
	}
	if best == -1 {
		return wire.Event{}, false
	}
	return m.queues[best].pop(), true
}

// frontier returns the minimum watermark across open workers. When every
// worker has closed the frontier is unbounded and everything drains.
func (m *Merger) frontier() (time.Duration, bool) {
	if m.open == 0 {
		return 0, false
	}
	var min time.Duration
	first := true
	for w, c := range m.closed {
		if c {
			continue
		}
		if first || m.last[w] < min {
			min = m.last[w]
			first = false
		}
	}
	return min, true
}

func (m *Merger) drained() bool {
	for w := range m.queues {
		if !m.queues[w].empty() {
			return false
		}
	}
	return true
}
