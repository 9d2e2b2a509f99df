// Package arrange tracks the logical size of the analyzed computation's
// arrangements: a running signed tuple count per (worker, operator address),
// updated strictly by delta accumulation.
//
// Counts may be transiently negative when a compaction delta is processed
// before the insertions it compacts; that is a valid intermediate state, not
// an error.
package arrange

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

// Row is one emitted snapshot row: the tracked count of (Worker, Addr) at
// Elapsed session time, joined with the graph's current operator name.
type Row struct {
	Elapsed time.Duration
	Worker  int
	Addr    wire.Addr
	Name    string
	Count   int64
}

type counter struct {
	worker int
	addr   wire.Addr
	count  int64
}

// Tracker accumulates ArrangementDelta events.
type Tracker struct {
	mu      sync.Mutex
	counts  map[string]*counter
	touched map[string]struct{}
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{
		counts:  make(map[string]*counter),
		touched: make(map[string]struct{}),
	}
}

// Apply adds an ArrangementDelta to the running count for its
// (worker, address) key. Other payloads are ignored.
func (t *Tracker) Apply(ev wire.Event) {
	p, ok := ev.Payload.(wire.ArrangementDelta)
	if !ok {
		return
	}
	key := strconv.Itoa(ev.Worker) + "|" + p.Addr.Key()
	t.mu.Lock()
	c := t.counts[key]
	if c == nil {
		c = &counter{worker: ev.Worker, addr: p.Addr.Clone()}
		t.counts[key] = c
	}
	c.count += p.Delta
	t.touched[key] = struct{}{}
	t.mu.Unlock()
}

// Count returns the current count for (worker, addr).
func (t *Tracker) Count(worker int, addr wire.Addr) int64 {
	key := strconv.Itoa(worker) + "|" + addr.Key()
	t.mu.Lock()
	defer t.mu.Unlock()
	if c := t.counts[key]; c != nil {
		return c.count
	}
	return 0
}

// Flush emits one row per key touched since the previous flush, stamped with
// the snapshot's elapsed session time and joined with the current operator
// name via nameOf. Rows come back ordered by (worker, address). The snapshot
// cadence is the caller's concern; Flush itself is cadence-free.
func (t *Tracker) Flush(elapsed time.Duration, nameOf func(wire.Addr) string) []Row {
	t.mu.Lock()
	rows := make([]Row, 0, len(t.touched))
	for key := range t.touched {
		c := t.counts[key]
		rows = append(rows, Row{
			Elapsed: elapsed,
			Worker:  c.worker,
			Addr:    c.addr,
			Count:   c.count,
		})
	}
	t.touched = make(map[string]struct{})
	t.mu.Unlock()

	if nameOf != nil {
		for i := range rows {
			rows[i].Name = nameOf(rows[i].Addr)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Worker != rows[j].Worker {
			return rows[i].Worker < rows[j].Worker
		}
		return wire.CompareAddr(rows[i].Addr, rows[j].Addr) < 0
	})
	return rows
}
