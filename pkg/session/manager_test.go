package session_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/triage/pkg/domain"
	"github.com/aretw0/triage/pkg/ports"
	"github.com/aretw0/triage/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	data map[string]*domain.Session
	mu   sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, sessionID string, sess *domain.Session) error {
	time.Sleep(time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.data == nil {
		s.data = make(map[string]*domain.Session)
	}
	s.data[sessionID] = sess.Clone()
	return nil
}

func (s *SlowStore) Load(ctx context.Context, sessionID string) (*domain.Session, error) {
	time.Sleep(time.Millisecond) // Simulate IO
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.data[sessionID]; ok {
		return sess.Clone(), nil
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SlowStore) Delete(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, sessionID)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestManager_UpdateSerializesWrites(t *testing.T) {
	store := &SlowStore{}
	manager := session.NewManager(store)
	ctx := context.Background()
	id := "race-test"

	var wg sync.WaitGroup
	concurrentWrites := 20

	for i := 0; i < concurrentWrites; i++ {
		wg.Add(1)
		go func(val int) {
			defer wg.Done()
			err := manager.Update(ctx, id, func(_ context.Context, sess *domain.Session) error {
				sess.Messages = append(sess.Messages, domain.HumanMessage(fmt.Sprint(val)))
				return nil
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Read-modify-write without locking would lose updates.
	sess, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, concurrentWrites)
}

func TestManager_UpdateFailureDoesNotSave(t *testing.T) {
	manager := session.NewManager(&SlowStore{})
	ctx := context.Background()
	boom := errors.New("run failed")

	err := manager.Update(ctx, "s1", func(_ context.Context, sess *domain.Session) error {
		sess.Messages = append(sess.Messages, domain.HumanMessage("lost"))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = manager.Load(ctx, "s1")
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestManager_DeleteAndList(t *testing.T) {
	manager := session.NewManager(&SlowStore{})
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, "a", domain.NewSession("a")))
	require.NoError(t, manager.Save(ctx, "b", domain.NewSession("b")))
	require.NoError(t, manager.Delete(ctx, "a"))

	ids, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

type recordingLocker struct {
	mu       sync.Mutex
	locked   []string
	released int
	ttl      time.Duration
}

func (l *recordingLocker) Lock(_ context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.locked = append(l.locked, key)
	l.ttl = ttl
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

func TestManager_DistributedLock(t *testing.T) {
	locker := &recordingLocker{}
	manager := session.NewManager(&SlowStore{}, session.WithLocker(locker), session.WithLockTTL(time.Minute))

	err := manager.WithLock(context.Background(), "s1", func(context.Context) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, []string{"s1"}, locker.locked)
	assert.Equal(t, 1, locker.released)
	assert.Equal(t, time.Minute, locker.ttl)
}
