// Package dispatch implements graph nodes that delegate to a Responder and run the
// tools it asks for.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DefaultTimeout       = 60 * time.Second
	DefaultMaxToolRounds = 3
)

// ToolFallback is the content of a tool message whose invocation failed.
const ToolFallback = "Sorry, the %s tool could not be used right now. Continue without its result."

// Node is a graph node backed by a Responder.
type Node struct {
	name      string
	responder ports.Responder
	tools     ports.ToolInvoker
	toolNames []string

	timeout   time.Duration
	maxRounds int
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Option configures a Node.
type Option func(*Node)

// WithTools lets the node execute tool calls through invoker. Names are reported for
// introspection.
func WithTools(invoker ports.ToolInvoker, names ...string) Option {
	return func(n *Node) {
		n.tools = invoker
		n.toolNames = append([]string(nil), names...)
	}
}

// WithTimeout bounds every Responder and tool call.
func WithTimeout(d time.Duration) Option {
	return func(n *Node) {
		if d > 0 {
			n.timeout = d
		}
	}
}

// WithMaxToolRounds bounds how many times tool results are fed back to the Responder.
func WithMaxToolRounds(rounds int) Option {
	return func(n *Node) {
		if rounds >= 0 {
			n.maxRounds = rounds
		}
	}
}

// WithHooks registers tool lifecycle hooks.
func WithHooks(hooks domain.LifecycleHooks) Option {
	return func(n *Node) { n.hooks = hooks }
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Node) {
		if l != nil {
			n.logger = l
		}
	}
}

// WithTracer sets the tracer used for tool spans.
func WithTracer(t trace.Tracer) Option {
	return func(n *Node) {
		if t != nil {
			n.tracer = t
		}
	}
}

// New creates a node that reports itself as name.
func New(name string, responder ports.Responder, opts ...Option) *Node {
	n := &Node{
		name:      name,
		responder: responder,
		timeout:   DefaultTimeout,
		maxRounds: DefaultMaxToolRounds,
		logger:    logging.NewNop(),
		tracer:    noop.NewTracerProvider().Tracer("github.com/aretw0/triage/pkg/dispatch"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Name returns the node name.
func (n *Node) Name() string { return n.name }

// ToolNames lists the tools this node can run.
func (n *Node) ToolNames() []string { return append([]string(nil), n.toolNames...) }

// Invoke asks the Responder for a reply. When the reply requests tools, each call is run,
// its result recorded as a tool message, and the Responder asked again with the results.
//
// The returned batch holds the tool results followed by the final reply. Intermediate
// replies that only requested tools are not part of it. If MaxToolRounds is exhausted
// the last reply is returned as is, tool calls included.
func (n *Node) Invoke(ctx context.Context, state *domain.State) ([]domain.Message, string, error) {
	working := state.Snapshot()

	reply, err := n.respond(ctx, working)
	if err != nil {
		return nil, n.name, err
	}

	var batch []domain.Message
	for round := 0; reply.HasToolCalls() && round < n.maxRounds; round++ {
		working.Append(n.name, reply)

		results := make([]domain.Message, 0, len(reply.ToolCalls))
		for _, call := range reply.ToolCalls {
			results = append(results, n.runTool(ctx, working.SessionID, call))
		}
		working.Append(n.name, results...)
		batch = append(batch, results...)

		if reply, err = n.respond(ctx, working); err != nil {
			return nil, n.name, err
		}
	}

	if reply.HasToolCalls() {
		n.logger.Warn("tool rounds exhausted", "node", n.name, "rounds", n.maxRounds, "pending", len(reply.ToolCalls))
	}
	return append(batch, reply), n.name, nil
}

func (n *Node) respond(ctx context.Context, state *domain.State) (domain.Message, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	reply, err := n.responder.Respond(ctx, state)
	if err != nil {
		return domain.Message{}, fmt.Errorf("responder of %s: %w", n.name, err)
	}
	if reply.Role == "" {
		reply.Role = domain.RoleAssistant
	}
	return reply.WithName(n.name), nil
}

func (n *Node) runTool(ctx context.Context, sessionID string, call domain.ToolCall) domain.Message {
	ctx, span := n.tracer.Start(ctx, "triage.dispatch.tool",
		trace.WithAttributes(
			attribute.String("triage.node", n.name),
			attribute.String("triage.tool", call.Name),
			attribute.String("triage.tool_call_id", call.ID),
		))
	defer span.End()

	base := domain.EventBase{Timestamp: time.Now(), Type: domain.EventToolCall, SessionID: sessionID}
	args, err := call.ParseArguments()
	if n.hooks.OnToolCall != nil {
		n.hooks.OnToolCall(ctx, &domain.ToolEvent{EventBase: base, Node: n.name, Tool: call.Name, CallID: call.ID, Input: args})
	}

	var out string
	if err == nil {
		out, err = n.invoke(ctx, call.Name, args)
	}

	msg := domain.ToolMessage(call.ID, call.Name, out)
	if err != nil {
		toolErr := &domain.ToolInvocationError{Tool: call.Name, CallID: call.ID, Err: err}
		n.logger.Warn("tool invocation failed", "node", n.name, "tool", call.Name, "call_id", call.ID, "err", toolErr)
		span.RecordError(toolErr)
		span.SetStatus(codes.Error, toolErr.Error())
		msg = domain.ToolErrorMessage(call.ID, call.Name, fmt.Sprintf(ToolFallback, call.Name))
		err = toolErr
	}

	if n.hooks.OnToolReturn != nil {
		base.Timestamp = time.Now()
		base.Type = domain.EventToolReturn
		n.hooks.OnToolReturn(ctx, &domain.ToolEvent{
			EventBase: base, Node: n.name, Tool: call.Name, CallID: call.ID,
			Output: msg.Content, IsError: msg.IsError, Err: err,
		})
	}
	return msg
}

func (n *Node) invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	if n.tools == nil {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownTool, name)
	}
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	return n.tools.Invoke(ctx, name, args)
}
