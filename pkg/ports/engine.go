package ports

import (
	"context"

	"github.com/aretw0/triage/pkg/domain"
)

// Engine is the interface used by driving adapters (HTTP, MCP, queue consumer).
type Engine interface {
	// Handle runs one inbound message through the workflow and records it in the session.
	Handle(ctx context.Context, in domain.Inbound) (*domain.Outcome, error)

	// Inspect returns the workflow graph structure for introspection.
	Inspect() domain.GraphDescription
}

// SessionReader exposes stored conversations to driving adapters.
type SessionReader interface {
	Session(ctx context.Context, id string) (*domain.Session, error)
	DeleteSession(ctx context.Context, id string) error
}
