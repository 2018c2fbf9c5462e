package memory

import (
	"context"
	"sync"
	"time"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
)

// SessionRegistry implements repository.SessionRegistry with a mutex-guarded
// map. State is lost on restart and not shared between instances; use the
// redis or postgres registry when either matters.
type SessionRegistry struct {
	mu     sync.RWMutex
	byHash map[string]*domain.Session
	byUser map[string]map[string]struct{}
	now    func() time.Time
}

// NewSessionRegistry creates an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{
		byHash: make(map[string]*domain.Session),
		byUser: make(map[string]map[string]struct{}),
		now:    time.Now,
	}
}

// WithClock replaces time.Now, for tests.
func (r *SessionRegistry) WithClock(now func() time.Time) *SessionRegistry {
	r.now = now
	return r
}

// Register adds s to the valid set.
func (r *SessionRegistry) Register(_ context.Context, s *domain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *s
	r.byHash[s.TokenHash] = &cp
	hashes, ok := r.byUser[s.UserID]
	if !ok {
		hashes = make(map[string]struct{})
		r.byUser[s.UserID] = hashes
	}
	hashes[s.TokenHash] = struct{}{}
	return nil
}

// IsValid reports whether tokenHash is registered and active.
func (r *SessionRegistry) IsValid(_ context.Context, tokenHash string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.byHash[tokenHash]
	return ok && s.Active(r.now()), nil
}

// Revoke drops tokenHash. Unknown hashes are ignored.
func (r *SessionRegistry) Revoke(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remove(tokenHash)
	return nil
}

// RevokeAllForUser drops every session of userID.
func (r *SessionRegistry) RevokeAllForUser(_ context.Context, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for h := range r.byUser[userID] {
		r.remove(h)
	}
	return nil
}

// Prune drops expired entries and returns how many were removed.
func (r *SessionRegistry) Prune() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	n := 0
	for h, s := range r.byHash {
		if !s.Active(now) {
			r.remove(h)
			n++
		}
	}
	return n
}

// Len returns the number of stored sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byHash)
}

// remove must be called with mu held.
func (r *SessionRegistry) remove(tokenHash string) {
	s, ok := r.byHash[tokenHash]
	if !ok {
		return
	}
	delete(r.byHash, tokenHash)
	if hashes := r.byUser[s.UserID]; hashes != nil {
		delete(hashes, tokenHash)
		if len(hashes) == 0 {
			delete(r.byUser, s.UserID)
		}
	}
}
