package lockout

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	state   State
	expires time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
}

// NewMemoryStore returns a process-local store, used by the client flow and in tests.
func NewMemoryStore() Store {
	return &memoryStore{entries: make(map[string]memoryEntry)}
}

func (s *memoryStore) Load(_ context.Context, phone string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(phone, time.Now()), nil
}

func (s *memoryStore) loadLocked(phone string, now time.Time) State {
	e, ok := s.entries[phone]
	if !ok || (!e.expires.IsZero() && now.After(e.expires)) {
		return State{Phone: phone}
	}
	return e.state
}

func (s *memoryStore) RecordFailure(_ context.Context, phone string, threshold int, now, lockUntil time.Time, ttl time.Duration) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.loadLocked(phone, time.Now())
	if !st.LockedUntil.IsZero() && !now.Before(st.LockedUntil) {
		st = State{Phone: phone}
	}
	st.FailedAttempts++
	if st.FailedAttempts >= threshold && !st.Locked(now) {
		st.LockedUntil = lockUntil
	}
	s.entries[phone] = memoryEntry{state: st, expires: time.Now().Add(ttl)}
	return st, nil
}

func (s *memoryStore) Lock(_ context.Context, phone string, until time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.loadLocked(phone, time.Now())
	st.LockedUntil = until
	s.entries[phone] = memoryEntry{state: st, expires: time.Now().Add(ttl)}
	return nil
}

func (s *memoryStore) Reset(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, phone)
	return nil
}
