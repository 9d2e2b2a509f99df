package merge

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

func ev(worker int, ts time.Duration) wire.Event {
	return wire.Event{Worker: worker, TS: ts, Payload: wire.ScheduleStart{Addr: wire.Addr{0}}}
}

// nextOrTimeout distinguishes "blocked" from "released" without hanging the test.
func nextOrTimeout(t *testing.T, m *Merger, d time.Duration) (wire.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return m.Next(ctx)
}

func TestNoEarlyRelease(t *testing.T) {
	m := NewMerger(2)
	if err := m.Push(0, []wire.Event{ev(0, 1), ev(0, 2), ev(0, 3)}); err != nil {
		t.Fatalf("push: %v", err)
	}

	// worker 1 has not reported anything past 0: nothing may release
	if got, err := nextOrTimeout(t, m, 50*time.Millisecond); err != context.DeadlineExceeded {
		t.Fatalf("expected block, got event %v err %v", got, err)
	}

	if err := m.Push(1, []wire.Event{ev(1, 5)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	// frontier is now min(3, 5) = 3: worker 0's events release in order
	for want := time.Duration(1); want <= 3; want++ {
		got, err := nextOrTimeout(t, m, time.Second)
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got.TS != want || got.Worker != 0 {
			t.Fatalf("got w%d@%v want w0@%v", got.Worker, got.TS, want)
		}
	}

	// worker 1's event at 5 is above worker 0's watermark of 3
	if _, err := nextOrTimeout(t, m, 50*time.Millisecond); err != context.DeadlineExceeded {
		t.Fatalf("expected block at frontier, got %v", err)
	}

	// closing worker 0 removes it from the frontier
	m.CloseWorker(0)
	got, err := nextOrTimeout(t, m, time.Second)
	if err != nil {
		t.Fatalf("next after close: %v", err)
	}
	if got.Worker != 1 || got.TS != 5 {
		t.Fatalf("got w%d@%v want w1@5", got.Worker, got.TS)
	}

	m.CloseWorker(1)
	if _, err := nextOrTimeout(t, m, time.Second); err != io.EOF {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestDrainReleasesInTimestampOrder(t *testing.T) {
	m := NewMerger(3)
	if err := m.Push(0, []wire.Event{ev(0, 4), ev(0, 9)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := m.Push(1, []wire.Event{ev(1, 2)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := m.Push(2, []wire.Event{ev(2, 7), ev(2, 8)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	for w := 0; w < 3; w++ {
		m.CloseWorker(w)
	}

	var got []time.Duration
	for {
		e, err := nextOrTimeout(t, m, time.Second)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		got = append(got, e.TS)
	}
	want := []time.Duration{2, 4, 7, 8, 9}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestEqualTimestampsTieBreakByWorker(t *testing.T) {
	m := NewMerger(2)
	if err := m.Push(1, []wire.Event{ev(1, 5)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	if err := m.Push(0, []wire.Event{ev(0, 5)}); err != nil {
		t.Fatalf("push: %v", err)
	}
	m.CloseWorker(0)
	m.CloseWorker(1)

	first, err := nextOrTimeout(t, m, time.Second)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	second, err := nextOrTimeout(t, m, time.Second)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if first.Worker != 0 || second.Worker != 1 {
		t.Fatalf("tie-break order wrong: %d then %d", first.Worker, second.Worker)
	}
}

func TestPushValidation(t *testing.T) {
	m := NewMerger(1)
	if err := m.Push(1, []wire.Event{ev(1, 1)}); err == nil {
		t.Fatalf("expected out-of-range error")
	}
	m.CloseWorker(0)
	if err := m.Push(0, []wire.Event{ev(0, 1)}); err == nil {
		t.Fatalf("expected push-to-closed error")
	}
}

func TestNextHonorsCancellation(t *testing.T) {
	m := NewMerger(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := m.Next(ctx)
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Fatalf("expected canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Next did not observe cancellation")
	}
}
