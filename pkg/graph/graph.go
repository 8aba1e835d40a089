package graph

import (
	"context"

	"github.com/aretw0/triage/pkg/domain"
)

// End is the terminal marker. Edges pointing at it stop the run.
const End = domain.End

// DefaultMaxSteps bounds node invocations per run.
const DefaultMaxSteps = 5

// Dispatcher is a node of the graph. It returns the messages it produced and the
// sender name to record for them.
type Dispatcher interface {
	Invoke(ctx context.Context, state *domain.State) ([]domain.Message, string, error)
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, state *domain.State) ([]domain.Message, string, error)

func (f DispatcherFunc) Invoke(ctx context.Context, state *domain.State) ([]domain.Message, string, error) {
	return f(ctx, state)
}

// Router decides where the conversation goes after a node ran.
// Decide must be pure. Labels lists every label Decide can produce, so Compile can
// check that each one has a target.
type Router interface {
	Decide(state *domain.State) domain.Decision
	Labels() []string
}

// ToolLister is implemented by dispatchers that expose tools, for introspection only.
type ToolLister interface {
	ToolNames() []string
}

type edgeSet struct {
	router  Router
	targets map[string]string
	// order keeps label declaration order for deterministic output.
	order []string
}

// Graph is a compiled, immutable workflow graph. It is safe for concurrent runs.
type Graph struct {
	start string
	nodes map[string]Dispatcher
	order []string
	edges map[string]*edgeSet

	maxSteps int
	hooks    domain.LifecycleHooks
	tracer   tracer
	logger   logger
}

// Start returns the name of the entry node.
func (g *Graph) Start() string { return g.start }

// Describe returns a read-only view of the graph structure.
func (g *Graph) Describe() domain.GraphDescription {
	desc := domain.GraphDescription{Start: g.start}
	for _, name := range g.order {
		info := domain.NodeInfo{Name: name}
		if tl, ok := g.nodes[name].(ToolLister); ok {
			info.Tools = tl.ToolNames()
		}
		desc.Nodes = append(desc.Nodes, info)

		es := g.edges[name]
		if es == nil {
			continue
		}
		for _, label := range es.order {
			desc.Edges = append(desc.Edges, domain.Edge{From: name, Label: label, To: es.targets[label]})
		}
	}
	return desc
}
