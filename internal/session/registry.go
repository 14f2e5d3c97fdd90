// ABOUTME: In-memory registry of sessions, the single source of truth for status queries.
// ABOUTME: All mutation goes through atomic Upsert so concurrent writers cannot interleave.

package session

import (
	"errors"
	"sync"
	"time"
)

// ErrLimitReached indicates a create was refused because the registry
// already holds the configured maximum number of sessions.
var ErrLimitReached = errors.New("session limit reached")

// Registry is the authoritative map from session id to session state.
// It is shared by HTTP-triggered operations and asynchronous worker events,
// so every mutation must go through Upsert; no caller may read-then-write a
// Session outside of it. Registry operations never perform I/O or block.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewRegistry creates an empty session registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
	}
}

// Get returns a copy of the session with the given id.
func (r *Registry) Get(id string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// Upsert applies fn to the session with the given id under the registry
// lock, creating the record first if it does not exist. CreatedAt is set on
// creation and UpdatedAt is bumped on every call. Returns a copy of the
// resulting state.
func (r *Registry) Upsert(id string, fn func(*Session)) Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	s, ok := r.sessions[id]
	if !ok {
		s = &Session{
			ID:        id,
			Status:    StatusDisconnected,
			CreatedAt: now,
		}
		r.sessions[id] = s
	}

	fn(s)
	s.UpdatedAt = now
	return *s
}

// GetOrCreate returns the session with the given id, creating it with fn
// if absent. The existence check, the capacity gate, and the create happen
// under one lock acquisition, so two racing callers can never both create
// and concurrent creates cannot overshoot the limit. A limit of 0 disables
// the cap. Reports whether this call created the record.
func (r *Registry) GetOrCreate(id string, limit int, fn func(*Session)) (Session, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[id]; ok {
		return *s, false, nil
	}

	if limit > 0 && len(r.sessions) >= limit {
		return Session{}, false, ErrLimitReached
	}

	now := time.Now()
	s := &Session{
		ID:        id,
		Status:    StatusDisconnected,
		CreatedAt: now,
	}
	fn(s)
	s.UpdatedAt = now
	r.sessions[id] = s
	return *s, true, nil
}

// Update applies fn to the session with the given id under the registry
// lock, only if it exists; a worker event must never resurrect a closed
// session. Reports whether the session was found and returns a copy of the
// resulting state.
func (r *Registry) Update(id string, fn func(*Session)) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[id]
	if !ok {
		return Session{}, false
	}

	fn(s)
	s.UpdatedAt = time.Now()
	return *s, true
}

// Remove deletes the session with the given id, if present.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns copies of all registered sessions in unspecified order.
func (r *Registry) List() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	return out
}
