// Package profile accumulates operator scheduling time from Start/Stop
// events and computes hierarchical, scope-inclusive totals on demand.
package profile

import (
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/graph"
	"github.com/TimelyDataflow/diagnostics/internal/wire"
	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

// ViolationKind classifies a scheduling protocol violation.
type ViolationKind int

const (
	// DuplicateStart: a Start arrived while an interval was already open.
	// The old interval is discarded and a new one opened.
	DuplicateStart ViolationKind = iota
	// OrphanStop: a Stop arrived with no open interval. It is ignored.
	OrphanStop
	// NegativeInterval: a Stop's timestamp precedes its Start. The interval
	// is discarded.
	NegativeInterval
)

func (k ViolationKind) String() string {
	switch k {
	case DuplicateStart:
		return "duplicate-start"
	case OrphanStop:
		return "orphan-stop"
	case NegativeInterval:
		return "negative-interval"
	default:
		return "unknown"
	}
}

// Violation records one protocol violation. Violations are diagnostics, not
// errors: processing continues with best-effort recovery.
type Violation struct {
	Kind   ViolationKind
	Worker int
	Addr   wire.Addr
	TS     time.Duration
}

// Entry is one row of an aggregated profile: the inclusive busy time of the
// node at Addr, summed across workers and over all descendant addresses.
type Entry struct {
	Addr    wire.Addr
	ID      uint64
	Name    string
	IsScope bool
	Elapsed time.Duration
}

type cumulative struct {
	worker  int
	addr    wire.Addr
	elapsed time.Duration
}

// Aggregator consumes scheduling events and maintains cumulative busy time
// per (worker, operator address).
type Aggregator struct {
	mu         sync.RWMutex
	cum        map[string]*cumulative
	open       map[string]time.Duration
	violations []Violation
	logger     log.Logger
}

// NewAggregator returns an empty Aggregator.
func NewAggregator(logger log.Logger) *Aggregator {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Aggregator{
		cum:    make(map[string]*cumulative),
		open:   make(map[string]time.Duration),
		logger: logger.With(log.Component("profile")),
	}
}

func intervalKey(worker int, addr wire.Addr) string {
	return strconv.Itoa(worker) + "|" + addr.Key()
}

// Apply folds one event into the profile. Non-scheduling payloads are
// ignored.
func (a *Aggregator) Apply(ev wire.Event) {
	switch p := ev.Payload.(type) {
	case wire.ScheduleStart:
		a.applyStart(ev.Worker, p.Addr, ev.TS)
	case wire.ScheduleStop:
		a.applyStop(ev.Worker, p.Addr, ev.TS)
	}
}

func (a *Aggregator) applyStart(worker int, addr wire.Addr, ts time.Duration) {
	key := intervalKey(worker, addr)
	a.mu.Lock()
	if _, dup := a.open[key]; dup {
		a.record(Violation{Kind: DuplicateStart, Worker: worker, Addr: addr.Clone(), TS: ts})
	}
	a.open[key] = ts
	a.mu.Unlock()
}

func (a *Aggregator) applyStop(worker int, addr wire.Addr, ts time.Duration) {
	key := intervalKey(worker, addr)
	a.mu.Lock()
	defer a.mu.Unlock()
	start, ok := a.open[key]
	if !ok {
		a.record(Violation{Kind: OrphanStop, Worker: worker, Addr: addr.Clone(), TS: ts})
		return
	}
	delete(a.open, key)
	if ts < start {
		a.record(Violation{Kind: NegativeInterval, Worker: worker, Addr: addr.Clone(), TS: ts})
		return
	}
	c := a.cum[key]
	if c == nil {
		c = &cumulative{worker: worker, addr: addr.Clone()}
		a.cum[key] = c
	}
	c.elapsed += ts - start
}

// record appends a violation. Callers hold mu.
func (a *Aggregator) record(v Violation) {
	a.violations = append(a.violations, v)
	a.logger.Warn("scheduling protocol violation",
		log.Str("kind", v.Kind.String()),
		log.Int("worker", v.Worker),
		log.Str("addr", v.Addr.String()),
		log.Dur("ts", v.TS),
	)
}

// Violations returns a copy of the recorded protocol violations.
func (a *Aggregator) Violations() []Violation {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]Violation, len(a.violations))
	copy(out, a.violations)
	return out
}

// OwnElapsed returns the non-inclusive busy time accumulated at exactly
// addr, summed across workers.
func (a *Aggregator) OwnElapsed(addr wire.Addr) time.Duration {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total time.Duration
	for _, c := range a.cum {
		if wire.CompareAddr(c.addr, addr) == 0 {
			total += c.elapsed
		}
	}
	return total
}

// Aggregate computes, for every node in g, the inclusive busy time: the
// node's own cumulative duration plus that of every descendant address,
// across all workers. It is recomputed from the flat table on demand so it
// always reflects the graph's current shape. Entries come back sorted by
// descending elapsed time.
func (a *Aggregator) Aggregate(g *graph.Graph) []Entry {
	a.mu.RLock()
	flat := make([]cumulative, 0, len(a.cum))
	for _, c := range a.cum {
		flat = append(flat, *c)
	}
	a.mu.RUnlock()

	entries := make([]Entry, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		e := Entry{Addr: n.Addr, ID: n.ID, Name: n.Name, IsScope: n.IsScope}
		for _, c := range flat {
			if c.addr.HasPrefix(n.Addr) {
				e.Elapsed += c.elapsed
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Elapsed != entries[j].Elapsed {
			return entries[i].Elapsed > entries[j].Elapsed
		}
		return wire.CompareAddr(entries[i].Addr, entries[j].Addr) < 0
	})
	return entries
}
