package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/internal/event"
	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/validator"
)

// SetRoleInput holds the parameters for an admin role change.
type SetRoleInput struct {
	Role string `json:"role" validate:"required,oneof=student parent admin"`
}

// BootstrapAdminInput describes the admin account ensured at startup.
type BootstrapAdminInput struct {
	Name     string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,password"`
}

// GetUser returns any user by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return user, nil
}

// SetRole changes the role of userID. Admins cannot change their own role,
// which keeps at least the acting admin in place.
func (s *AuthService) SetRole(ctx context.Context, actorID, userID string, input SetRoleInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}
	if actorID == userID {
		return nil, apperrors.Forbidden("admins cannot change their own role")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for role change: %w", err)
	}

	oldRole := user.Role
	if oldRole == input.Role {
		return user, nil
	}

	user.Role = input.Role
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user role: %w", err)
	}

	if err := s.producer.PublishUserRoleChanged(ctx, user.ID, oldRole, user.Role, actorID); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.role_changed event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user role changed",
		slog.String("user_id", user.ID),
		slog.String("old_role", oldRole),
		slog.String("new_role", user.Role),
		slog.String("changed_by", actorID),
	)

	return user, nil
}

// RevokeSessions revokes every session of userID.
func (s *AuthService) RevokeSessions(ctx context.Context, actorID, userID string) error {
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return fmt.Errorf("get user for session revocation: %w", err)
	}

	if err := s.revokeAll(ctx, userID, event.ReasonAdminRevoked); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "user sessions revoked",
		slog.String("user_id", userID),
		slog.String("revoked_by", actorID),
	)
	return nil
}

// EnsureAdmin makes sure an admin account with the given email exists. An
// existing account is promoted if needed; its password is left unchanged.
// It reports whether a new account was created.
func (s *AuthService) EnsureAdmin(ctx context.Context, input BootstrapAdminInput) (*domain.User, bool, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = domain.NormalizeEmail(input.Email)
	if err := validator.Validate(input); err != nil {
		return nil, false, fmt.Errorf("bootstrap admin: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	switch {
	case err == nil:
		if user.IsAdmin() {
			return user, false, nil
		}
		user.Role = domain.RoleAdmin
		user.UpdatedAt = s.now().UTC()
		if err := s.users.Update(ctx, user); err != nil {
			return nil, false, fmt.Errorf("promote bootstrap admin: %w", err)
		}
		s.logger.WarnContext(ctx, "existing account promoted to admin",
			slog.String("user_id", user.ID),
		)
		return user, false, nil
	case !errors.Is(err, apperrors.ErrNotFound):
		return nil, false, fmt.Errorf("look up bootstrap admin: %w", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		return nil, false, fmt.Errorf("hash bootstrap admin password: %w", err)
	}

	now := s.now().UTC()
	user = &domain.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hashed),
		Role:         domain.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, false, fmt.Errorf("create bootstrap admin: %w", err)
	}

	s.logger.InfoContext(ctx, "bootstrap admin created",
		slog.String("user_id", user.ID),
	)
	return user, true, nil
}
