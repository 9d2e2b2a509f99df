package diagrun

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/TimelyDataflow/diagnostics/internal/arrange"
	"github.com/TimelyDataflow/diagnostics/internal/config"
	"github.com/TimelyDataflow/diagnostics/internal/graph"
	"github.com/TimelyDataflow/diagnostics/internal/profile"
	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

func TestSessionOptionsFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SourcePeers = 4
	cfg.ArrangementsPort = 51318
	cfg.Filter = "count > 0"
	opts := sessionOptions(Options{Config: cfg})
	if opts.Peers != 4 {
		t.Fatalf("peers = %d", opts.Peers)
	}
	if opts.Addr != "127.0.0.1:51317" {
		t.Fatalf("addr = %q", opts.Addr)
	}
	if opts.ArrangementsAddr != "127.0.0.1:51318" {
		t.Fatalf("arrangements addr = %q", opts.ArrangementsAddr)
	}
	if opts.Interval != time.Second {
		t.Fatalf("interval = %v", opts.Interval)
	}
	if opts.Filter != "count > 0" {
		t.Fatalf("filter = %q", opts.Filter)
	}
	if opts.Metrics == nil {
		t.Fatalf("metrics not wired")
	}
}

func TestWriteGraphJSON(t *testing.T) {
	b := graph.NewBuilder()
	b.Apply(wire.Event{Payload: wire.OperatorCreate{Addr: wire.Addr{0}, ID: 0, Name: "dataflow"}})
	b.Apply(wire.Event{Payload: wire.OperatorCreate{Addr: wire.Addr{0, 1}, ID: 1, Name: "input"}})
	b.Apply(wire.Event{Payload: wire.OperatorCreate{Addr: wire.Addr{0, 2}, ID: 2, Name: "map"}})
	b.Apply(wire.Event{Payload: wire.ChannelCreate{Source: wire.Addr{0, 1}, Target: wire.Addr{0, 2}}})

	var buf bytes.Buffer
	if err := writeGraph(&buf, b.Snapshot()); err != nil {
		t.Fatalf("write graph: %v", err)
	}
	var got jsonGraph
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(got.Nodes) != 3 || len(got.Edges) != 1 {
		t.Fatalf("got %d nodes, %d edges", len(got.Nodes), len(got.Edges))
	}
	if !got.Nodes[0].Scope {
		t.Fatalf("root node must be rendered as a scope")
	}
	if got.Edges[0].Source[1] != 1 || got.Edges[0].Target[1] != 2 {
		t.Fatalf("edge rendered as %+v", got.Edges[0])
	}
}

func TestWriteProfileTable(t *testing.T) {
	entries := []profile.Entry{
		{Addr: wire.Addr{0}, Name: "dataflow", IsScope: true, Elapsed: 30},
		{Addr: wire.Addr{0, 1}, Name: "count", Elapsed: 10},
	}
	var buf bytes.Buffer
	if err := writeProfile(&buf, entries); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "dataflow [scope]") {
		t.Fatalf("scope marker missing:\n%s", out)
	}
	if !strings.Contains(out, "count") {
		t.Fatalf("plain operator missing:\n%s", out)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header plus two rows:\n%s", len(lines), out)
	}
}

func TestWriteRow(t *testing.T) {
	var buf bytes.Buffer
	writeRow(&buf, arrange.Row{
		Elapsed: 2 * time.Second,
		Worker:  1,
		Addr:    wire.Addr{0, 3},
		Name:    "arrange",
		Count:   296,
	})
	out := buf.String()
	for _, want := range []string{"2s", "worker=1", "arrange", "296"} {
		if !strings.Contains(out, want) {
			t.Fatalf("row output missing %q:\n%s", want, out)
		}
	}
}

func TestRunGraphRejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.SourcePeers = 0
	err := RunGraph(context.Background(), Options{Config: cfg, Stdin: strings.NewReader("\n"), Stdout: &bytes.Buffer{}})
	if err == nil {
		t.Fatalf("expected a validation error")
	}
}
