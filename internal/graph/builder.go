// Package graph maintains a live, address-keyed model of the analyzed
// computation's dataflow graph and produces point-in-time snapshots of it.
//
// Nodes and edges are created lazily as lifecycle events arrive and are
// never removed. Because both are keyed by operator address rather than by
// node handles, a channel or child operator observed before its counterpart
// simply coexists with it; no creation order is required and nothing is
// dropped.
package graph

import (
	"sort"
	"sync"

	"github.com/TimelyDataflow/diagnostics/internal/wire"
)

// Node is one operator or scope.
type Node struct {
	Addr wire.Addr
	ID   uint64
	Name string
	// IsScope marks nodes that contain other nodes. Filled at snapshot time.
	IsScope bool
}

// Edge is a channel between two operator addresses.
type Edge struct {
	Source wire.Addr
	Target wire.Addr
}

// Graph is an immutable snapshot: nodes sorted parents-first, edges sorted
// by source then target.
type Graph struct {
	Nodes []Node
	Edges []Edge

	byKey map[string]int
}

// Lookup returns the node at addr.
func (g *Graph) Lookup(addr wire.Addr) (Node, bool) {
	i, ok := g.byKey[addr.Key()]
	if !ok {
		return Node{}, false
	}
	return g.Nodes[i], true
}

// Name returns the node name at addr, or "" when unknown.
func (g *Graph) Name(addr wire.Addr) string {
	n, _ := g.Lookup(addr)
	return n.Name
}

// Builder consumes lifecycle events and maintains the live graph.
type Builder struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[string]Edge
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]Node),
		edges: make(map[string]Edge),
	}
}

// Apply folds one event into the graph. OperatorCreate inserts or overwrites
// the node at its address (last write wins); ChannelCreate inserts a
// deduplicated edge, tolerating endpoints that have not been announced yet.
// Other payloads are ignored.
func (b *Builder) Apply(ev wire.Event) {
	switch p := ev.Payload.(type) {
	case wire.OperatorCreate:
		b.mu.Lock()
		b.nodes[p.Addr.Key()] = Node{Addr: p.Addr.Clone(), ID: p.ID, Name: p.Name}
		b.mu.Unlock()
	case wire.ChannelCreate:
		key := p.Source.Key() + ">" + p.Target.Key()
		b.mu.Lock()
		if _, ok := b.edges[key]; !ok {
			b.edges[key] = Edge{Source: p.Source.Clone(), Target: p.Target.Clone()}
		}
		b.mu.Unlock()
	}
}

// Name returns the current name of the node at addr, or "" when unknown.
func (b *Builder) Name(addr wire.Addr) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.nodes[addr.Key()].Name
}

// Snapshot returns an immutable copy of the current node and edge sets. It
// holds the read lock only while copying and never observes a half-applied
// event.
func (b *Builder) Snapshot() *Graph {
	b.mu.RLock()
	nodes := make([]Node, 0, len(b.nodes))
	for _, n := range b.nodes {
		nodes = append(nodes, n)
	}
	edges := make([]Edge, 0, len(b.edges))
	for _, e := range b.edges {
		edges = append(edges, e)
	}
	b.mu.RUnlock()

	sort.Slice(nodes, func(i, j int) bool {
		return wire.CompareAddr(nodes[i].Addr, nodes[j].Addr) < 0
	})
	sort.Slice(edges, func(i, j int) bool {
		if c := wire.CompareAddr(edges[i].Source, edges[j].Source); c != 0 {
			return c < 0
		}
		return wire.CompareAddr(edges[i].Target, edges[j].Target) < 0
	})

	g := &Graph{Nodes: nodes, Edges: edges, byKey: make(map[string]int, len(nodes))}
	for i := range nodes {
		g.byKey[nodes[i].Addr.Key()] = i
	}
	// a node is a scope when some other node nests directly inside it
	for i := range nodes {
		if parent := nodes[i].Addr.Parent(); parent != nil {
			if j, ok := g.byKey[parent.Key()]; ok {
				g.Nodes[j].IsScope = true
			}
		}
	}
	return g
}
