package auth

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// MemorySessionStore keeps sessions in process memory. Updates run under a
// single lock, so it is only suitable for one process.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
	}
}

func (s *MemorySessionStore) Load(ctx context.Context, id string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStoreUnavailableError(err, "session.load")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (s *MemorySessionStore) Update(ctx context.Context, id string, fn SessionUpdateFunc) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, NewStoreUnavailableError(err, "session.update")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.sessions[id]
	next, err := fn(current.Clone())
	if err != nil {
		return nil, err
	}

	if next == nil {
		delete(s.sessions, id)
		return nil, nil
	}

	next.ID = id
	if current != nil {
		next.Version = current.Version + 1
	} else {
		next.Version = 1
	}
	s.sessions[id] = next.Clone()

	return next, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return NewStoreUnavailableError(err, "session.delete")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

func (s *MemorySessionStore) DeleteByAccount(ctx context.Context, accountID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, NewStoreUnavailableError(err, "session.delete_by_account")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, session := range s.sessions {
		if session.Authenticated() && session.Identity.AccountID == accountID {
			delete(s.sessions, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored sessions.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
