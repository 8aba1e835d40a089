package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/aretw0/triage/pkg/domain"
)

// Store implements ports.SessionStore in memory.
// Sessions idle for longer than the TTL are dropped, and once MaxEntries is reached the
// least recently used session is evicted. Safe for concurrent use.
type Store struct {
	mu    sync.Mutex
	data  map[string]*list.Element
	order *list.List // front = most recently used

	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type entry struct {
	id       string
	session  *domain.Session
	lastUsed time.Time
}

// StoreOption configures the Store.
type StoreOption func(*Store)

// WithTTL expires sessions not touched for ttl. Zero disables expiry.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxEntries caps the number of retained sessions. Zero means unbounded.
func WithMaxEntries(n int) StoreOption {
	return func(s *Store) { s.maxEntries = n }
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a new in-memory store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		data:  make(map[string]*list.Element),
		order: list.New(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save persists a copy of the session in memory.
func (s *Store) Save(ctx context.Context, sessionID string, sess *domain.Session) error {
	cp := sess.Clone()
	cp.ID = sessionID

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if el, ok := s.data[sessionID]; ok {
		e := el.Value.(*entry)
		e.session = cp
		e.lastUsed = now
		s.order.MoveToFront(el)
		return nil
	}

	s.data[sessionID] = s.order.PushFront(&entry{id: sessionID, session: cp, lastUsed: now})
	s.evict(now)
	return nil
}

// Load retrieves a copy of the session and marks it as recently used.
func (s *Store) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.data[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	now := s.now()
	e := el.Value.(*entry)
	if s.expired(e, now) {
		s.remove(el)
		return nil, domain.ErrSessionNotFound
	}
	e.lastUsed = now
	s.order.MoveToFront(el)
	return e.session.Clone(), nil
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if el, ok := s.data[sessionID]; ok {
		s.remove(el)
	}
	return nil
}

// List returns live sessions, most recently used first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evict(s.now())
	sessions := make([]string, 0, len(s.data))
	for el := s.order.Front(); el != nil; el = el.Next() {
		sessions = append(sessions, el.Value.(*entry).id)
	}
	return sessions, nil
}

// Len returns the number of retained sessions, expired ones included until next access.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

// evict drops expired sessions from the cold end, then enforces the size cap.
func (s *Store) evict(now time.Time) {
	for el := s.order.Back(); el != nil && s.expired(el.Value.(*entry), now); el = s.order.Back() {
		s.remove(el)
	}
	for s.maxEntries > 0 && s.order.Len() > s.maxEntries {
		s.remove(s.order.Back())
	}
}

func (s *Store) expired(e *entry, now time.Time) bool {
	return s.ttl > 0 && now.Sub(e.lastUsed) > s.ttl
}

func (s *Store) remove(el *list.Element) {
	s.order.Remove(el)
	delete(s.data, el.Value.(*entry).id)
}
