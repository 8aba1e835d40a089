package ports

import (
	"context"

	"github.com/aretw0/triage/pkg/domain"
)

// Responder produces the next reply for a conversation. The returned message may request
// tool calls. Implementations must not mutate the state.
type Responder interface {
	Respond(ctx context.Context, state *domain.State) (domain.Message, error)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(ctx context.Context, state *domain.State) (domain.Message, error)

func (f ResponderFunc) Respond(ctx context.Context, state *domain.State) (domain.Message, error) {
	return f(ctx, state)
}

// ToolInvoker executes a named tool. Unknown names should fail with domain.ErrUnknownTool.
type ToolInvoker interface {
	Invoke(ctx context.Context, name string, args map[string]any) (string, error)
}

// ToolInvokerFunc adapts a function to the ToolInvoker interface.
type ToolInvokerFunc func(ctx context.Context, name string, args map[string]any) (string, error)

func (f ToolInvokerFunc) Invoke(ctx context.Context, name string, args map[string]any) (string, error) {
	return f(ctx, name, args)
}
