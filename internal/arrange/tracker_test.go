package arrange

import (
	"math/rand"
	"testing"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

func delta(worker int, addr wire.Addr, d int64) wire.Event {
	return wire.Event{Worker: worker, Payload: wire.ArrangementDelta{Addr: addr, Delta: d}}
}

func TestDeltaAccumulation(t *testing.T) {
	tr := NewTracker()
	tr.Apply(delta(0, wire.Addr{0, 3}, 654))
	tr.Apply(delta(0, wire.Addr{0, 3}, 296))
	tr.Apply(delta(0, wire.Addr{0, 3}, -654))
	if got := tr.Count(0, wire.Addr{0, 3}); got != 296 {
		t.Fatalf("got %d want 296", got)
	}
}

func TestDeltaSumIsOrderIndependent(t *testing.T) {
	deltas := []int64{654, 296, -654, 17, -20, 3}
	var want int64
	for _, d := range deltas {
		want += d
	}
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 10; trial++ {
		rng.Shuffle(len(deltas), func(i, j int) { deltas[i], deltas[j] = deltas[j], deltas[i] })
		tr := NewTracker()
		for _, d := range deltas {
			tr.Apply(delta(1, wire.Addr{0, 5}, d))
		}
		if got := tr.Count(1, wire.Addr{0, 5}); got != want {
			t.Fatalf("trial %d: got %d want %d", trial, got, want)
		}
	}
}

func TestTransientNegativeCountAccepted(t *testing.T) {
	tr := NewTracker()
	// compaction processed before its corresponding insertion
	tr.Apply(delta(0, wire.Addr{0, 2}, -100))
	if got := tr.Count(0, wire.Addr{0, 2}); got != -100 {
		t.Fatalf("got %d want -100", got)
	}
	tr.Apply(delta(0, wire.Addr{0, 2}, 100))
	if got := tr.Count(0, wire.Addr{0, 2}); got != 0 {
		t.Fatalf("got %d want 0", got)
	}
}

func TestFlushEmitsOnlyTouchedKeys(t *testing.T) {
	tr := NewTracker()
	tr.Apply(delta(0, wire.Addr{0, 1}, 5))
	tr.Apply(delta(1, wire.Addr{0, 2}, 7))

	rows := tr.Flush(time.Second, nil)
	if len(rows) != 2 {
		t.Fatalf("got %d rows want 2", len(rows))
	}
	if rows[0].Worker != 0 || rows[1].Worker != 1 {
		t.Fatalf("row order wrong: %v", rows)
	}
	if rows[0].Elapsed != time.Second {
		t.Fatalf("elapsed not stamped: %v", rows[0])
	}

	// untouched interval: nothing to emit
	if rows := tr.Flush(2*time.Second, nil); len(rows) != 0 {
		t.Fatalf("expected empty flush, got %v", rows)
	}

	// only the touched key reappears
	tr.Apply(delta(1, wire.Addr{0, 2}, 1))
	rows = tr.Flush(3*time.Second, nil)
	if len(rows) != 1 || rows[0].Worker != 1 || rows[0].Count != 8 {
		t.Fatalf("got %v", rows)
	}
}

func TestFlushJoinsNames(t *testing.T) {
	tr := NewTracker()
	tr.Apply(delta(0, wire.Addr{0, 4}, 1))
	rows := tr.Flush(0, func(a wire.Addr) string {
		if a.Key() == "0.4" {
			return "Arrange"
		}
		return ""
	})
	if len(rows) != 1 || rows[0].Name != "Arrange" {
		t.Fatalf("got %v", rows)
	}
}

func TestKeysAreIsolatedPerWorker(t *testing.T) {
	tr := NewTracker()
	tr.Apply(delta(0, wire.Addr{0, 1}, 10))
	tr.Apply(delta(1, wire.Addr{0, 1}, 20))
	if got := tr.Count(0, wire.Addr{0, 1}); got != 10 {
		t.Fatalf("worker 0: got %d", got)
	}
	if got := tr.Count(1, wire.Addr{0, 1}); got != 20 {
		t.Fatalf("worker 1: got %d", got)
	}
}
