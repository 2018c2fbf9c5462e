package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/database"
)

// SessionRegistry implements repository.SessionRegistry on the SQLite
// refresh_tokens table.
type SessionRegistry struct {
	db  *sql.DB
	now func() time.Time
}

// NewSessionRegistry creates a SQLite-backed session registry.
func NewSessionRegistry(db *sql.DB) *SessionRegistry {
	return &SessionRegistry{db: db, now: time.Now}
}

// Register stores the session hash.
func (r *SessionRegistry) Register(ctx context.Context, s *domain.Session) (err error) {
	query := `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at) VALUES (?, ?, ?, ?, ?)`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "RegisterSession", query)
	defer func() { end(err) }()

	_, err = r.db.ExecContext(ctx, query, s.ID, s.UserID, s.TokenHash, toMillis(s.ExpiresAt), toMillis(s.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// IsValid reports whether the hash is registered, unrevoked and unexpired.
func (r *SessionRegistry) IsValid(ctx context.Context, tokenHash string) (ok bool, err error) {
	query := `SELECT EXISTS(SELECT 1 FROM refresh_tokens WHERE token_hash = ? AND revoked_at IS NULL AND expires_at > ?)`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "IsSessionValid", query)
	defer func() { end(err) }()

	if err = r.db.QueryRowContext(ctx, query, tokenHash, toMillis(r.now())).Scan(&ok); err != nil {
		return false, fmt.Errorf("check refresh token: %w", err)
	}
	return ok, nil
}

// Revoke marks a refresh token revoked.
func (r *SessionRegistry) Revoke(ctx context.Context, tokenHash string) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = ? WHERE token_hash = ? AND revoked_at IS NULL`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "RevokeSession", query)
	defer func() { end(err) }()

	if _, err = r.db.ExecContext(ctx, query, toMillis(r.now()), tokenHash); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser marks every refresh token of userID revoked.
func (r *SessionRegistry) RevokeAllForUser(ctx context.Context, userID string) (err error) {
	query := `UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "RevokeUserSessions", query)
	defer func() { end(err) }()

	if _, err = r.db.ExecContext(ctx, query, toMillis(r.now()), userID); err != nil {
		return fmt.Errorf("revoke refresh tokens by user: %w", err)
	}
	return nil
}

// DeleteExpired removes rows that expired before cutoff.
func (r *SessionRegistry) DeleteExpired(ctx context.Context, cutoff time.Time) (n int64, err error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < ?`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "DeleteExpiredSessions", query)
	defer func() { end(err) }()

	res, err := r.db.ExecContext(ctx, query, toMillis(cutoff))
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}
	return res.RowsAffected()
}
