package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/database"
)

// SessionRegistry implements repository.SessionRegistry on the
// refresh_tokens table. Revocation sets revoked_at; rows are kept for audit
// until DeleteExpired removes them.
type SessionRegistry struct {
	db  database.DBTX
	now func() time.Time
}

// NewSessionRegistry creates a new PostgreSQL-backed session registry.
func NewSessionRegistry(db database.DBTX) *SessionRegistry {
	return &SessionRegistry{db: db, now: time.Now}
}

// Register stores the session hash.
func (r *SessionRegistry) Register(ctx context.Context, s *domain.Session) (err error) {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	ctx, end := database.TraceQuery(ctx, "RegisterSession", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, s.ID, s.UserID, s.TokenHash, s.ExpiresAt, s.CreatedAt); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// IsValid reports whether the hash is registered, unrevoked and unexpired.
func (r *SessionRegistry) IsValid(ctx context.Context, tokenHash string) (ok bool, err error) {
	query := `
		SELECT EXISTS(
			SELECT 1 FROM refresh_tokens
			WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > $2
		)`

	ctx, end := database.TraceQuery(ctx, "IsSessionValid", query)
	defer func() { end(err) }()

	if err = r.db.QueryRow(ctx, query, tokenHash, r.now().UTC()).Scan(&ok); err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return ok, nil
}

// Revoke revokes a specific refresh token by its hash.
func (r *SessionRegistry) Revoke(ctx context.Context, tokenHash string) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = $1 WHERE token_hash = $2 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "RevokeSession", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, r.now().UTC(), tokenHash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes all refresh tokens for the given user.
func (r *SessionRegistry) RevokeAllForUser(ctx context.Context, userID string) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = $1 WHERE user_id = $2 AND revoked_at IS NULL`

	ctx, end := database.TraceQuery(ctx, "RevokeUserSessions", query)
	defer func() { end(err) }()

	if _, err = r.db.Exec(ctx, query, r.now().UTC(), userID); err != nil {
		return fmt.Errorf("revoke refresh tokens by user: %w", err)
	}
	return nil
}

// DeleteExpired removes rows that expired before cutoff and returns how many
// were deleted.
func (r *SessionRegistry) DeleteExpired(ctx context.Context, cutoff time.Time) (n int64, err error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	ctx, end := database.TraceQuery(ctx, "DeleteExpiredSessions", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return ct.RowsAffected(), nil
}
