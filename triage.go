package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aretw0/triage/internal/logging"
	"github.com/aretw0/triage/pkg/adapters/memory"
	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/graph"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/aretw0/triage/pkg/session"
	"github.com/google/uuid"
)

// DefaultHistoryLimit bounds the messages retained per session.
const DefaultHistoryLimit = 50

// SensitiveNotice is shown to users when a conversation ends on sensitive language.
const SensitiveNotice = domain.SensitiveNotice

// Engine is the high-level entry point. It runs inbound messages through the workflow
// graph and keeps each session's conversation memory.
type Engine struct {
	graph        *graph.Graph
	sessions     *session.Manager
	runOpts      []graph.Option
	historyLimit int
	logger       *slog.Logger
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithSessionManager sets the session manager (and therefore the store and locking).
func WithSessionManager(m *session.Manager) Option {
	return func(e *Engine) {
		e.sessions = m
	}
}

// WithSessionStore uses store with default in-process locking.
func WithSessionStore(store ports.SessionStore) Option {
	return func(e *Engine) {
		e.sessions = session.NewManager(store)
	}
}

// WithRunOptions applies graph options (step limit, hooks, tracer) to every run.
func WithRunOptions(opts ...graph.Option) Option {
	return func(e *Engine) {
		e.runOpts = append(e.runOpts, opts...)
	}
}

// WithHistoryLimit caps retained messages per session; older ones are dropped first.
// Zero keeps everything.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		if n >= 0 {
			e.historyLimit = n
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// New creates an engine around a compiled graph. Without a session option it keeps
// conversations in an unbounded in-memory store.
func New(g *graph.Graph, opts ...Option) *Engine {
	e := &Engine{
		graph:        g,
		historyLimit: DefaultHistoryLimit,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.sessions == nil {
		e.sessions = session.NewManager(memory.NewStore())
	}
	return e
}

// Handle runs one inbound message through the graph. The session's history is loaded,
// the message appended, and the extended conversation saved only if the run succeeds.
// An empty session key gets a fresh id, returned in the outcome.
func (e *Engine) Handle(ctx context.Context, in domain.Inbound) (*domain.Outcome, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, domain.ErrEmptyMessage
	}
	id := in.Key()
	if id == "" {
		id = uuid.NewString()
	}

	var out *domain.Outcome
	err := e.sessions.Update(ctx, id, func(ctx context.Context, sess *domain.Session) error {
		state := domain.NewState(id, sess.Messages...)
		prior := len(state.Messages)
		state.Append(domain.SenderUser, domain.HumanMessage(text))

		res, err := e.graph.Run(ctx, state, e.runOpts...)
		if err != nil {
			return err
		}

		added := res.State.Messages[prior+1:]
		sess.Messages = e.trim(res.State.Messages)
		out = &domain.Outcome{
			SessionID:   id,
			Reply:       replyText(added),
			Sender:      res.State.Sender,
			Decision:    res.Decision,
			Steps:       res.Steps,
			Path:        res.Path,
			Notice:      domain.NoticeFor(res.Decision),
			NewMessages: added,
		}
		return nil
	})
	if err != nil {
		e.logger.Warn("run failed", "session", id, "err", err)
		return nil, fmt.Errorf("session %s: %w", id, err)
	}

	e.logger.Info("run completed", "session", id, "sender", out.Sender, "decision", out.Decision.String(), "steps", out.Steps)
	return out, nil
}

// Inspect returns the workflow graph structure.
func (e *Engine) Inspect() domain.GraphDescription {
	return e.graph.Describe()
}

// Session returns the stored conversation of id.
func (e *Engine) Session(ctx context.Context, id string) (*domain.Session, error) {
	return e.sessions.Load(ctx, id)
}

// DeleteSession forgets the conversation of id.
func (e *Engine) DeleteSession(ctx context.Context, id string) error {
	return e.sessions.Delete(ctx, id)
}

// Sessions lists live session ids.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.sessions.List(ctx)
}

func (e *Engine) trim(msgs []domain.Message) []domain.Message {
	if e.historyLimit == 0 || len(msgs) <= e.historyLimit {
		return msgs
	}
	return append([]domain.Message(nil), msgs[len(msgs)-e.historyLimit:]...)
}

// replyText returns the latest assistant text of a run.
func replyText(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == domain.RoleAssistant && msgs[i].Content != "" {
			return msgs[i].Content
		}
	}
	return ""
}

var (
	_ ports.Engine        = (*Engine)(nil)
	_ ports.SessionReader = (*Engine)(nil)
)
