package graph

import (
	"fmt"

	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/pkg/domain"
)

// Builder declares a workflow graph. Declaration errors are collected and reported
// together by Compile.
type Builder struct {
	start string
	nodes map[string]Dispatcher
	order []string
	edges map[string]*edgeSet
	// edgeOrder records the order AddConditionalEdges was called in.
	edgeOrder []string
	problems  []string
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		nodes: make(map[string]Dispatcher),
		edges: make(map[string]*edgeSet),
	}
}

// AddNode declares a named node.
func (b *Builder) AddNode(name string, node Dispatcher) *Builder {
	switch {
	case name == "" || name == End:
		b.problems = append(b.problems, fmt.Sprintf("invalid node name %q", name))
	case node == nil:
		b.problems = append(b.problems, fmt.Sprintf("node %q has no dispatcher", name))
	default:
		if _, exists := b.nodes[name]; exists {
			b.problems = append(b.problems, fmt.Sprintf("node %q declared twice", name))
			return b
		}
		b.nodes[name] = node
		b.order = append(b.order, name)
	}
	return b
}

// AddConditionalEdges attaches a router to a node and maps each router label to a target.
// Targets are node names or End. Label order in the description follows router.Labels().
func (b *Builder) AddConditionalEdges(from string, router Router, targets map[string]string) *Builder {
	if router == nil {
		b.problems = append(b.problems, fmt.Sprintf("edges from %q have no router", from))
		return b
	}
	if _, exists := b.edges[from]; exists {
		b.problems = append(b.problems, fmt.Sprintf("edges from %q declared twice", from))
		return b
	}
	es := &edgeSet{router: router, targets: make(map[string]string, len(targets))}
	for label, to := range targets {
		es.targets[label] = to
	}
	seen := make(map[string]bool)
	for _, label := range router.Labels() {
		if _, ok := es.targets[label]; ok && !seen[label] {
			es.order = append(es.order, label)
			seen[label] = true
		}
	}
	for _, label := range sortedKeys(es.targets) {
		if !seen[label] {
			es.order = append(es.order, label)
		}
	}
	b.edges[from] = es
	b.edgeOrder = append(b.edgeOrder, from)
	return b
}

// SetStart sets the entry node.
func (b *Builder) SetStart(name string) *Builder {
	b.start = name
	return b
}

// Compile validates the declaration and returns an immutable graph.
// All structural problems are reported at once in a *domain.InvalidGraphError.
func (b *Builder) Compile(opts ...Option) (*Graph, error) {
	problems := append([]string(nil), b.problems...)

	for _, from := range b.edgeOrder {
		es := b.edges[from]
		if _, ok := b.nodes[from]; !ok {
			problems = append(problems, fmt.Sprintf("edge source %q is not a declared node", from))
		}
		for _, label := range es.order {
			to := es.targets[label]
			if to == End {
				continue
			}
			if _, ok := b.nodes[to]; !ok {
				problems = append(problems, fmt.Sprintf("edge %s -[%s]-> %q targets an undeclared node", from, label, to))
			}
		}
		for _, label := range es.router.Labels() {
			if _, ok := es.targets[label]; !ok {
				problems = append(problems, fmt.Sprintf("router of %q can emit %q but no target is mapped", from, label))
			}
		}
	}

	switch {
	case b.start == "":
		problems = append(problems, "start node is not set")
	default:
		if _, ok := b.nodes[b.start]; !ok {
			problems = append(problems, fmt.Sprintf("start node %q is not declared", b.start))
		} else {
			problems = append(problems, b.reachabilityProblems()...)
		}
	}

	if len(problems) > 0 {
		return nil, &domain.InvalidGraphError{Problems: problems}
	}

	g := &Graph{
		start:    b.start,
		nodes:    make(map[string]Dispatcher, len(b.nodes)),
		order:    append([]string(nil), b.order...),
		edges:    make(map[string]*edgeSet, len(b.edges)),
		maxSteps: DefaultMaxSteps,
		tracer:   noopTracer(),
		logger:   logging.NewNop(),
	}
	for name, node := range b.nodes {
		g.nodes[name] = node
	}
	for from, es := range b.edges {
		g.edges[from] = es
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// reachabilityProblems flags reachable nodes that have no edges or cannot reach End.
func (b *Builder) reachabilityProblems() []string {
	reachable := map[string]bool{b.start: true}
	queue := []string{b.start}
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		es := b.edges[name]
		if es == nil {
			continue
		}
		for _, label := range es.order {
			to := es.targets[label]
			if to == End || reachable[to] {
				continue
			}
			if _, declared := b.nodes[to]; !declared {
				continue
			}
			reachable[to] = true
			queue = append(queue, to)
		}
	}

	// Reverse fixpoint: a node reaches End if any of its edges does.
	reachesEnd := make(map[string]bool)
	for changed := true; changed; {
		changed = false
		for name, es := range b.edges {
			if reachesEnd[name] {
				continue
			}
			for _, to := range es.targets {
				if to == End || reachesEnd[to] {
					reachesEnd[name] = true
					changed = true
					break
				}
			}
		}
	}

	var problems []string
	for _, name := range b.order {
		if !reachable[name] {
			continue
		}
		if _, ok := b.edges[name]; !ok {
			problems = append(problems, fmt.Sprintf("node %q is reachable but has no outgoing edges", name))
			continue
		}
		if !reachesEnd[name] {
			problems = append(problems, fmt.Sprintf("node %q cannot reach %s", name, End))
		}
	}
	return problems
}
