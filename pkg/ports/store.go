package ports

import (
	"context"

	"github.com/aretw0/triage/pkg/domain"
)

// SessionStore persists conversation memory keyed by session id.
type SessionStore interface {
	// Save persists the session for a given id.
	Save(ctx context.Context, sessionID string, session *domain.Session) error

	// Load retrieves the session for a given id.
	// Returns domain.ErrSessionNotFound if the session does not exist or was evicted.
	Load(ctx context.Context, sessionID string) (*domain.Session, error)

	// Delete removes the session. Deleting an unknown id is not an error.
	Delete(ctx context.Context, sessionID string) error

	// List returns the ids of all live sessions.
	List(ctx context.Context) ([]string, error)
}
