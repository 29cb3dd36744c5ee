package auth

import (
	"fmt"
	"strings"
	"sync"
)

// InMemoryRepository keeps user records indexed by normalized username,
// numeric id, lowercased email, and outstanding refresh-token id. Every
// mutation updates all indexes inside one critical section, so partial
// index states are unreachable by construction.
type InMemoryRepository struct {
	mu         sync.RWMutex
	byUsername map[string]*User
	byID       map[int64]*User
	byEmail    map[string]*User
	byRefresh  map[string]int64
	nextID     int64
}

// NewInMemoryRepository creates an empty store.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		byUsername: make(map[string]*User),
		byID:       make(map[int64]*User),
		byEmail:    make(map[string]*User),
		byRefresh:  make(map[string]int64),
	}
}

// NextID assigns the next sequential user id.
func (r *InMemoryRepository) NextID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

// Get looks up by username, normalizing first. Absence is not an error.
func (r *InMemoryRepository) Get(username string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byUsername[NormalizeUsername(username)]
	return u.clone(), ok
}

// FindByID looks up by numeric id.
func (r *InMemoryRepository) FindByID(id int64) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	return u.clone(), ok
}

// FindByEmail looks up by lowercased email.
func (r *InMemoryRepository) FindByEmail(email string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return u.clone(), ok
}

// FindByRefreshID resolves the owner of an outstanding refresh-token id
// through the secondary index; no linear scan over users.
func (r *InMemoryRepository) FindByRefreshID(refreshID string) (*User, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byRefresh[refreshID]
	if !ok {
		return nil, false
	}
	u, ok := r.byID[id]
	return u.clone(), ok
}

// Add inserts a new record. Username and email collisions fail with
// ErrAlreadyExists.
func (r *InMemoryRepository) Add(u *User) error {
	key := NormalizeUsername(u.Username)
	if key == "" {
		return fmt.Errorf("%w: empty username", ErrInvalidInput)
	}
	email := strings.ToLower(strings.TrimSpace(u.Email))

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byUsername[key]; ok {
		return fmt.Errorf("%w: username %q", ErrAlreadyExists, key)
	}
	if _, ok := r.byEmail[email]; ok {
		return fmt.Errorf("%w: email %q", ErrAlreadyExists, email)
	}

	stored := u.clone()
	stored.Username = key
	stored.Email = email
	r.byUsername[key] = stored
	r.byID[stored.ID] = stored
	r.byEmail[email] = stored
	for rid := range stored.RefreshTokens {
		r.byRefresh[rid] = stored.ID
	}
	return nil
}

// Update replaces an existing record, rewriting the email and refresh-token
// indexes in the same critical section.
func (r *InMemoryRepository) Update(u *User) error {
	key := NormalizeUsername(u.Username)

	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.byUsername[key]
	if !ok {
		return fmt.Errorf("%w: cannot update missing user %q", ErrNotFound, key)
	}

	stored := u.clone()
	stored.ID = prev.ID // ids are immutable after creation
	stored.Username = key
	stored.Email = strings.ToLower(strings.TrimSpace(u.Email))

	if prev.Email != stored.Email {
		delete(r.byEmail, prev.Email)
	}
	for rid := range prev.RefreshTokens {
		delete(r.byRefresh, rid)
	}

	r.byUsername[key] = stored
	r.byID[stored.ID] = stored
	r.byEmail[stored.Email] = stored
	for rid := range stored.RefreshTokens {
		r.byRefresh[rid] = stored.ID
	}
	return nil
}
