package memory

import (
	"context"
	"sync"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
)

// UserRepository implements repository.UserRepository with in-process maps.
// Stored users are copied in and out so callers never share memory with the
// store.
type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.User
	byEmail map[string]string // normalized email -> id
}

// NewUserRepository creates an empty in-memory credential store.
func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    make(map[string]*domain.User),
		byEmail: make(map[string]string),
	}
}

// Create inserts u, failing with DuplicateEmail if the email is taken.
func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := domain.NormalizeEmail(u.Email)
	if _, taken := r.byEmail[email]; taken {
		return apperrors.DuplicateEmail(email)
	}

	cp := *u
	cp.Email = email
	r.byID[cp.ID] = &cp
	r.byEmail[email] = cp.ID
	return nil
}

// GetByID returns a copy of the user with id.
func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	cp := *u
	return &cp, nil
}

// GetByEmail returns a copy of the user with email, compared case-insensitively.
func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[domain.NormalizeEmail(email)]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *r.byID[id]
	return &cp, nil
}

// Update replaces the stored user, re-indexing the email if it changed.
func (r *UserRepository) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.byID[u.ID]
	if !ok {
		return apperrors.NotFound("user", u.ID)
	}

	email := domain.NormalizeEmail(u.Email)
	if email != old.Email {
		if _, taken := r.byEmail[email]; taken {
			return apperrors.DuplicateEmail(email)
		}
		delete(r.byEmail, old.Email)
		r.byEmail[email] = u.ID
	}

	cp := *u
	cp.Email = email
	r.byID[u.ID] = &cp
	return nil
}

// Delete removes a user. Only tests use it; the service never deletes users.
func (r *UserRepository) Delete(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.byID[id]; ok {
		delete(r.byEmail, u.Email)
		delete(r.byID, id)
	}
}
