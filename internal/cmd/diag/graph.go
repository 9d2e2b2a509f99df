package diagrun

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/TimelyDataflow/diagnostics/internal/graph"
	"github.com/TimelyDataflow/diagnostics/internal/session"
	"github.com/TimelyDataflow/diagnostics/pkg/log"
)

// jsonNode is one operator in the rendered graph.
type jsonNode struct {
	Addr  []int  `json:"addr"`
	ID    uint64 `json:"id"`
	Name  string `json:"name"`
	Scope bool   `json:"scope,omitempty"`
}

// jsonEdge is one channel, as a [source, target] address pair.
type jsonEdge struct {
	Source []int `json:"source"`
	Target []int `json:"target"`
}

type jsonGraph struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

func renderGraph(g *graph.Graph) jsonGraph {
	out := jsonGraph{
		Nodes: make([]jsonNode, 0, len(g.Nodes)),
		Edges: make([]jsonEdge, 0, len(g.Edges)),
	}
	for _, n := range g.Nodes {
		out.Nodes = append(out.Nodes, jsonNode{
			Addr:  n.Addr,
			ID:    n.ID,
			Name:  n.Name,
			Scope: n.IsScope,
		})
	}
	for _, e := range g.Edges {
		out.Edges = append(out.Edges, jsonEdge{Source: e.Source, Target: e.Target})
	}
	return out
}

func writeGraph(w io.Writer, g *graph.Graph) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(renderGraph(g))
}

// RunGraph connects to the computation, records its construction events, and
// renders the dataflow graph as JSON once the user presses enter or every
// peer disconnects.
func RunGraph(ctx context.Context, opts Options) error {
	opts = opts.withDefaults()
	if err := opts.Config.Validate(); err != nil {
		return err
	}

	s, err := session.StartGraph(ctx, sessionOptions(opts))
	if err != nil {
		return err
	}
	fmt.Fprintln(opts.Stdout, "Trace the computation, then press enter to render its graph.")

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()

	select {
	case <-awaitLine(opts.Stdin):
	case err = <-done:
	case <-ctx.Done():
	}
	g, stopErr := s.Stop()
	if err == nil {
		err = stopErr
	}
	if err != nil {
		opts.Logger.Warn("session ended with an error", log.Err(err))
	}

	out := opts.Stdout
	if opts.Out != "" {
		f, ferr := os.Create(opts.Out)
		if ferr != nil {
			return ferr
		}
		defer f.Close()
		out = f
	}
	if werr := writeGraph(out, g); werr != nil {
		return werr
	}
	if opts.Out != "" {
		opts.Logger.Info("graph written",
			log.Str("path", opts.Out),
			log.Int("nodes", len(g.Nodes)),
			log.Int("edges", len(g.Edges)),
		)
	}
	return err
}
