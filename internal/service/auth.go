package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mukulsharnagat01/Collegedunia/internal/auth"
	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/internal/event"
	"github.com/Mukulsharnagat01/Collegedunia/internal/repository"
	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/validator"
)

// dummyPassword is hashed once at startup. Logins for unknown emails compare
// against it so they cost the same as a wrong password.
const dummyPassword = "college-auth-dummy-password"

// Options tunes an AuthService.
type Options struct {
	// BcryptCost is the bcrypt work factor. Zero means bcrypt.DefaultCost.
	BcryptCost int

	// RotateRefreshTokens makes Refresh revoke the presented refresh token
	// and issue a new one.
	RotateRefreshTokens bool
}

// AuthService implements the auth protocol on top of the Credential Store,
// the Token Issuer and the Session Registry.
type AuthService struct {
	users    repository.UserRepository
	sessions repository.SessionRegistry
	tokens   *auth.TokenIssuer
	producer *event.Producer
	logger   *slog.Logger

	bcryptCost int
	rotate     bool
	dummyHash  []byte
	now        func() time.Time
}

// NewAuthService creates a new auth service. producer may be nil.
func NewAuthService(
	users repository.UserRepository,
	sessions repository.SessionRegistry,
	tokens *auth.TokenIssuer,
	producer *event.Producer,
	logger *slog.Logger,
	opts Options,
) (*AuthService, error) {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cost)
	if err != nil {
		return nil, fmt.Errorf("bcrypt cost %d: %w", cost, err)
	}

	return &AuthService{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		producer:   producer,
		logger:     logger,
		bcryptCost: cost,
		rotate:     opts.RotateRefreshTokens,
		dummyHash:  dummy,
		now:        time.Now,
	}, nil
}

// --- Input/Output types ---

// SignupInput holds the parameters for creating an account.
type SignupInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,password"`
	Role     string `json:"role" validate:"omitempty,oneof=student parent"`
	Phone    string `json:"phone" validate:"max=20"`
	City     string `json:"city" validate:"max=100"`
	Course   string `json:"course" validate:"max=100"`
}

// LoginInput holds the parameters for logging in.
type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UpdateProfileInput holds the profile fields a user may change. Nil fields
// are left untouched.
type UpdateProfileInput struct {
	Name   *string `json:"name" validate:"omitempty,max=100"`
	Phone  *string `json:"phone" validate:"omitempty,max=20"`
	City   *string `json:"city" validate:"omitempty,max=100"`
	Course *string `json:"course" validate:"omitempty,max=100"`
}

// ChangePasswordInput holds the parameters for a password change.
type ChangePasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,password"`
}

// AuthResult is returned by Signup and Login.
type AuthResult struct {
	User             *domain.User
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshResult is returned by Refresh. RefreshToken is empty unless the
// refresh token was rotated.
type RefreshResult struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// RefreshTTL is how long a newly issued refresh token lives.
func (s *AuthService) RefreshTTL() time.Duration {
	return s.tokens.RefreshExpiry()
}

// --- Auth Operations ---

// Signup creates a student or parent account and starts a session for it.
func (s *AuthService) Signup(ctx context.Context, input SignupInput) (*AuthResult, error) {
	input.Name = strings.TrimSpace(input.Name)
	input.Email = domain.NormalizeEmail(input.Email)
	if err := validator.Validate(input); err != nil {
		observe("signup", outcomeInvalidInput)
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = domain.RoleStudent
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		observe("signup", outcomeError)
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user := &domain.User{
		ID:           uuid.New().String(),
		Email:        input.Email,
		Name:         input.Name,
		PasswordHash: string(hashed),
		Role:         role,
		Phone:        strings.TrimSpace(input.Phone),
		City:         strings.TrimSpace(input.City),
		Course:       strings.TrimSpace(input.Course),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, apperrors.ErrDuplicateEmail) {
			observe("signup", outcomeDuplicate)
			return nil, err
		}
		observe("signup", outcomeError)
		return nil, fmt.Errorf("create user: %w", err)
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		observe("signup", outcomeError)
		return nil, err
	}

	// Publish signup event (non-blocking on failure).
	if err := s.producer.PublishUserSignedUp(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.signed_up event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	observe("signup", outcomeSuccess)
	s.logger.InfoContext(ctx, "user signed up",
		slog.String("user_id", user.ID),
		slog.String("role", user.Role),
	)

	return result, nil
}

// Login authenticates a user with email and password and starts a session.
// An unknown email and a wrong password yield the same error.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*AuthResult, error) {
	if err := validator.Validate(input); err != nil {
		observe("login", outcomeInvalidInput)
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, input.Email)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			observe("login", outcomeError)
			return nil, fmt.Errorf("get user by email: %w", err)
		}
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(input.Password))
		observe("login", outcomeInvalidCredentials)
		return nil, apperrors.InvalidCredentials()
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.Password)); err != nil {
		observe("login", outcomeInvalidCredentials)
		s.logger.InfoContext(ctx, "login rejected",
			slog.String("user_id", user.ID),
		)
		return nil, apperrors.InvalidCredentials()
	}

	result, err := s.startSession(ctx, user)
	if err != nil {
		observe("login", outcomeError)
		return nil, err
	}

	observe("login", outcomeSuccess)
	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
	)

	return result, nil
}

// Refresh exchanges a registered refresh token for a new access token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if refreshToken == "" {
		observe("refresh", outcomeUnauthenticated)
		return nil, apperrors.Unauthenticated("missing refresh token")
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		observe("refresh", outcomeUnauthenticated)
		return nil, apperrors.Unauthenticated("invalid or expired refresh token")
	}

	tokenHash := domain.HashToken(refreshToken)
	valid, err := s.sessions.IsValid(ctx, tokenHash)
	if err != nil {
		observe("refresh", outcomeError)
		return nil, fmt.Errorf("check session: %w", err)
	}
	if !valid {
		observe("refresh", outcomeUnauthenticated)
		s.logger.InfoContext(ctx, "refresh with unregistered token",
			slog.String("user_id", claims.Subject),
			slog.String("jti", claims.ID),
		)
		return nil, apperrors.Unauthenticated("refresh token has been revoked")
	}

	// Re-read the user so the new access token carries the current role.
	user, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			observe("refresh", outcomeUnauthenticated)
			return nil, apperrors.Unauthenticated("user no longer exists")
		}
		observe("refresh", outcomeError)
		return nil, fmt.Errorf("get user for token refresh: %w", err)
	}

	access, accessExp, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		observe("refresh", outcomeError)
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	result := &RefreshResult{AccessToken: access, AccessExpiresAt: accessExp}

	if s.rotate {
		if err := s.sessions.Revoke(ctx, tokenHash); err != nil {
			observe("refresh", outcomeError)
			return nil, fmt.Errorf("revoke rotated refresh token: %w", err)
		}
		token, exp, err := s.registerRefreshToken(ctx, user)
		if err != nil {
			observe("refresh", outcomeError)
			return nil, err
		}
		result.RefreshToken = token
		result.RefreshExpiresAt = exp
	}

	observe("refresh", outcomeSuccess)
	s.logger.DebugContext(ctx, "access token refreshed",
		slog.String("user_id", user.ID),
		slog.Bool("rotated", s.rotate),
	)

	return result, nil
}

// Logout revokes refreshToken if it is registered. It never fails: an empty
// or unparsable token simply has nothing to revoke.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}

	attrs := []any{}
	if claims, err := s.tokens.ParseRefreshToken(refreshToken); err == nil {
		attrs = append(attrs, slog.String("user_id", claims.Subject))
	}

	if err := s.sessions.Revoke(ctx, domain.HashToken(refreshToken)); err != nil {
		observe("logout", outcomeError)
		s.logger.ErrorContext(ctx, "failed to revoke refresh token on logout",
			append(attrs, slog.String("error", err.Error()))...,
		)
		return
	}

	observe("logout", outcomeSuccess)
	s.logger.InfoContext(ctx, "user logged out", attrs...)
}

// --- Profile Operations ---

// Me returns the current record of the authenticated user.
func (s *AuthService) Me(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user profile: %w", err)
	}
	return user, nil
}

// UpdateProfile updates the caller's profile fields.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, input UpdateProfileInput) (*domain.User, error) {
	if err := validator.Validate(input); err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user for profile update: %w", err)
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, apperrors.Validation("name must not be blank")
		}
		user.Name = name
	}
	if input.Phone != nil {
		user.Phone = strings.TrimSpace(*input.Phone)
	}
	if input.City != nil {
		user.City = strings.TrimSpace(*input.City)
	}
	if input.Course != nil {
		user.Course = strings.TrimSpace(*input.Course)
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.Update(ctx, user); err != nil {
		return nil, fmt.Errorf("update user profile: %w", err)
	}

	s.logger.InfoContext(ctx, "profile updated",
		slog.String("user_id", user.ID),
	)

	return user, nil
}

// ChangePassword verifies the current password, stores the new one and
// revokes every session of the user.
func (s *AuthService) ChangePassword(ctx context.Context, userID string, input ChangePasswordInput) error {
	if err := validator.Validate(input); err != nil {
		return err
	}
	if input.CurrentPassword == input.NewPassword {
		return apperrors.Validation("new password must be different from current password")
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("get user for password change: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(input.CurrentPassword)); err != nil {
		return apperrors.Validation("current password is incorrect")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(input.NewPassword), s.bcryptCost)
	if err != nil {
		return fmt.Errorf("hash new password: %w", err)
	}

	user.PasswordHash = string(hashed)
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Update(ctx, user); err != nil {
		return fmt.Errorf("update user password: %w", err)
	}

	if err := s.revokeAll(ctx, user.ID, event.ReasonPasswordChanged); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "password changed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// --- Session helpers ---

// startSession issues both tokens for user and registers the refresh token.
func (s *AuthService) startSession(ctx context.Context, user *domain.User) (*AuthResult, error) {
	access, accessExp, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	refresh, refreshExp, err := s.registerRefreshToken(ctx, user)
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		User:             user,
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *AuthService) registerRefreshToken(ctx context.Context, user *domain.User) (string, time.Time, error) {
	token, claims, err := s.tokens.IssueRefreshToken(user)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issue refresh token: %w", err)
	}

	session := &domain.Session{
		ID:        claims.ID,
		UserID:    user.ID,
		TokenHash: domain.HashToken(token),
		ExpiresAt: claims.ExpiresAt.Time,
		CreatedAt: claims.IssuedAt.Time,
	}
	if err := s.sessions.Register(ctx, session); err != nil {
		return "", time.Time{}, fmt.Errorf("register session: %w", err)
	}

	return token, session.ExpiresAt, nil
}

func (s *AuthService) revokeAll(ctx context.Context, userID, reason string) error {
	if err := s.sessions.RevokeAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("revoke sessions: %w", err)
	}

	if err := s.producer.PublishUserSessionsRevoked(ctx, userID, reason); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.sessions_revoked event",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
	return nil
}
