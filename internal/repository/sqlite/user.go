// Package sqlite stores users and sessions in a single SQLite file for
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/database"
	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
)

const userColumns = `id, email, name, password_hash, role, phone, city, course, created_at, updated_at`

// UserRepository implements repository.UserRepository on SQLite.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository creates a SQLite-backed user repository.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. The email column is COLLATE NOCASE and unique.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "CreateUser", query)
	defer func() { end(err) }()

	u.Email = domain.NormalizeEmail(u.Email)
	_, err = r.db.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role,
		u.Phone, u.City, u.Course,
		toMillis(u.CreatedAt), toMillis(u.UpdatedAt),
	)
	if err != nil {
		if database.IsSQLiteUniqueViolation(err) {
			return apperrors.DuplicateEmail(u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (u *domain.User, err error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "GetUserByID", query)
	defer func() { end(err) }()

	u, err = r.scanUser(ctx, query, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

// GetByEmail retrieves a user by email, compared case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "GetUserByEmail", query)
	defer func() { end(err) }()

	return r.scanUser(ctx, query, domain.NormalizeEmail(email))
}

// Update modifies an existing user.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) (err error) {
	query := `
		UPDATE users
		SET email = ?, name = ?, password_hash = ?, role = ?,
		    phone = ?, city = ?, course = ?, updated_at = ?
		WHERE id = ?`

	ctx, end := database.TraceStoreOp(ctx, database.SystemSQLite, "UpdateUser", query)
	defer func() { end(err) }()

	u.Email = domain.NormalizeEmail(u.Email)
	res, err := r.db.ExecContext(ctx, query,
		u.Email, u.Name, u.PasswordHash, u.Role,
		u.Phone, u.City, u.Course, toMillis(u.UpdatedAt),
		u.ID,
	)
	if err != nil {
		if database.IsSQLiteUniqueViolation(err) {
			return apperrors.DuplicateEmail(u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var (
		u                domain.User
		created, updated int64
	)
	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role,
		&u.Phone, &u.City, &u.Course, &created, &updated,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt = fromMillis(created)
	u.UpdatedAt = fromMillis(updated)
	return &u, nil
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
