package identity

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu    sync.RWMutex
	users map[string]User
}

// NewMemoryRepository builds an in-memory user store for development and tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{users: make(map[string]User)}
}

func (r *memoryRepository) Create(_ context.Context, user User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.users[user.Phone]; exists {
		return ErrExists
	}
	r.users[user.Phone] = user
	return nil
}

func (r *memoryRepository) FindByPhone(_ context.Context, phone string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	user, ok := r.users[phone]
	if !ok {
		return User{}, ErrNotFound
	}
	return user, nil
}

func (r *memoryRepository) FindByID(_ context.Context, id string) (User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, user := range r.users {
		if user.ID == id {
			return user, nil
		}
	}
	return User{}, ErrNotFound
}

func (r *memoryRepository) UpdatePIN(_ context.Context, id string, hash []byte) (int, error) {
	var version int
	err := r.update(id, func(u *User) {
		u.PINHash = hash
		u.TokenVersion++
		version = u.TokenVersion
	})
	return version, err
}

func (r *memoryRepository) UpdateTokenVersion(_ context.Context, id string) (int, error) {
	var version int
	err := r.update(id, func(u *User) {
		u.TokenVersion++
		version = u.TokenVersion
	})
	return version, err
}

func (r *memoryRepository) TouchLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(u *User) {
		t := at.UTC()
		u.LastLogin = &t
	})
}

func (r *memoryRepository) update(id string, fn func(*User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for phone, user := range r.users {
		if user.ID == id {
			fn(&user)
			r.users[phone] = user
			return nil
		}
	}
	return ErrNotFound
}
