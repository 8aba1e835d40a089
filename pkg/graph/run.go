package graph

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aretw0/triage/pkg/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Result is the outcome of a completed run.
type Result struct {
	State    *domain.State
	Decision domain.Decision
	Steps    int
	// Path lists the nodes invoked, in order.
	Path []string
}

// Run walks the graph from the start node until an edge leads to End.
// The input state is not mutated; Result.State holds the extended conversation.
func (g *Graph) Run(ctx context.Context, state *domain.State, opts ...Option) (*Result, error) {
	run := g
	if len(opts) > 0 {
		cp := *g
		for _, opt := range opts {
			opt(&cp)
		}
		run = &cp
	}
	if state == nil {
		state = domain.NewState("")
	}

	ctx, span := run.tracer.Start(ctx, "triage.graph.run",
		trace.WithAttributes(
			attribute.String("triage.session_id", state.SessionID),
			attribute.Int("triage.max_steps", run.maxSteps),
		))
	defer span.End()

	res, err := run.walk(ctx, state.Snapshot())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("triage.steps", res.Steps),
		attribute.String("triage.decision", res.Decision.String()),
	)
	span.SetStatus(codes.Ok, "")
	return res, nil
}

func (g *Graph) walk(ctx context.Context, state *domain.State) (*Result, error) {
	current := g.start
	var path []string
	steps := 0

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if steps >= g.maxSteps {
			g.logger.Warn("step limit reached", "session", state.SessionID, "limit", g.maxSteps, "next", current)
			return nil, &domain.StepLimitError{Limit: g.maxSteps, Node: current, Path: path}
		}
		steps++
		path = append(path, current)

		msgs, sender, err := g.invoke(ctx, current, steps, state)
		if err != nil {
			return nil, &domain.NodeError{Node: current, Err: err}
		}
		if sender == "" {
			sender = current
		}
		state.Append(sender, msgs...)

		es := g.edges[current]
		decision := es.router.Decide(state)
		next, ok := es.targets[decision.Label()]
		if !ok {
			// Compile guarantees declared labels are mapped; a router emitting an
			// undeclared one is a programming error.
			return nil, &domain.NodeError{Node: current, Err: fmt.Errorf("no edge for label %q", decision.Label())}
		}

		g.logger.Debug("route", "session", state.SessionID, "from", current, "decision", decision.String(), "to", next)
		if g.hooks.OnRoute != nil {
			g.hooks.OnRoute(ctx, &domain.RouteEvent{
				EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventRoute, SessionID: state.SessionID},
				From:      current,
				Decision:  decision,
				To:        next,
			})
		}

		if next == End {
			return &Result{State: state, Decision: decision, Steps: steps, Path: path}, nil
		}
		current = next
	}
}

func (g *Graph) invoke(ctx context.Context, name string, step int, state *domain.State) ([]domain.Message, string, error) {
	ctx, span := g.tracer.Start(ctx, "triage.graph.node",
		trace.WithAttributes(
			attribute.String("triage.node", name),
			attribute.Int("triage.step", step),
		))
	defer span.End()

	if g.hooks.OnNodeEnter != nil {
		g.hooks.OnNodeEnter(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeEnter, SessionID: state.SessionID},
			Node:      name,
			Step:      step,
		})
	}

	started := time.Now()
	msgs, sender, err := g.nodes[name].Invoke(ctx, state.Snapshot())

	if g.hooks.OnNodeLeave != nil {
		g.hooks.OnNodeLeave(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventNodeLeave, SessionID: state.SessionID},
			Node:      name,
			Step:      step,
			Messages:  len(msgs),
			Duration:  time.Since(started),
			Err:       err,
		})
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, "", err
	}
	span.SetAttributes(attribute.Int("triage.messages", len(msgs)))
	return msgs, sender, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
