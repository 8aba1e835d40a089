package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aretw0/triage/pkg/domain"
)

// ScriptedResponder replays canned replies in order, repeating the last one.
// It implements ports.Responder for tests and demos.
type ScriptedResponder struct {
	mu      sync.Mutex
	replies []domain.Message
	calls   int
}

// NewScriptedResponder creates a responder that returns replies in order.
func NewScriptedResponder(replies ...domain.Message) *ScriptedResponder {
	return &ScriptedResponder{replies: replies}
}

func (r *ScriptedResponder) Respond(ctx context.Context, _ *domain.State) (domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.replies) == 0 {
		return domain.Message{}, fmt.Errorf("scripted responder has no replies")
	}
	i := min(r.calls, len(r.replies)-1)
	r.calls++
	return r.replies[i], nil
}

// Calls returns how many times Respond was called.
func (r *ScriptedResponder) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// EchoResponder acknowledges the latest user message without calling a model.
// When final is set the reply carries the completion marker.
type EchoResponder struct {
	role  string
	final bool
}

// NewEchoResponder creates an offline responder speaking as role.
func NewEchoResponder(role string, final bool) *EchoResponder {
	return &EchoResponder{role: role, final: final}
}

func (r *EchoResponder) Respond(ctx context.Context, state *domain.State) (domain.Message, error) {
	var latest string
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == domain.RoleHuman {
			latest = state.Messages[i].Content
			break
		}
	}
	reply := fmt.Sprintf("As the %s, I noted: %q.", strings.ReplaceAll(r.role, "_", " "), latest)
	if r.final {
		reply = "FINAL ANSWER " + reply
	}
	return domain.AssistantMessage("", reply), nil
}
