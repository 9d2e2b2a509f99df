// Package diagrun exposes the shared runners behind the tdiag subcommands:
// graph reconstruction, operator profiling, and arrangement size tracking.
// Each runner rendezvouses with the analyzed computation's source peers,
// consumes its event streams, and renders the result.
//
// Example:
//
//	cfg := config.Default()
//	ctx, cancel := context.WithCancel(context.Background())
//	defer cancel()
//	_ = diagrun.RunGraph(ctx, diagrun.Options{Config: cfg, Out: "graph.json"})
package diagrun
