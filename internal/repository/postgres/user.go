package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Mukulsharnagat01/Collegedunia/internal/domain"
	"github.com/Mukulsharnagat01/Collegedunia/pkg/database"
	apperrors "github.com/Mukulsharnagat01/Collegedunia/pkg/errors"
)

const userColumns = `id, email, name, password_hash, role, phone, city, course, created_at, updated_at`

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db database.DBTX
}

// NewUserRepository creates a new PostgreSQL-backed user repository.
func NewUserRepository(db database.DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user. The email is stored in normalized form.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	u.Email = domain.NormalizeEmail(u.Email)
	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Email,
		u.Name,
		u.PasswordHash,
		u.Role,
		u.Phone,
		u.City,
		u.Course,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.DuplicateEmail(u.Email)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// GetByID retrieves a user by their ID.
func (r *UserRepository) GetByID(ctx context.Context, id string) (u *domain.User, err error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetUserByID", query)
	defer func() { end(err) }()

	u, err = r.scanUser(ctx, query, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

// GetByEmail retrieves a user by email, compared case-insensitively.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (u *domain.User, err error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE LOWER(email) = $1`

	ctx, end := database.TraceQuery(ctx, "GetUserByEmail", query)
	defer func() { end(err) }()

	return r.scanUser(ctx, query, domain.NormalizeEmail(email))
}

// Update modifies an existing user.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) (err error) {
	query := `
		UPDATE users
		SET email = $1, name = $2, password_hash = $3, role = $4,
		    phone = $5, city = $6, course = $7, updated_at = $8
		WHERE id = $9`

	ctx, end := database.TraceQuery(ctx, "UpdateUser", query)
	defer func() { end(err) }()

	u.Email = domain.NormalizeEmail(u.Email)
	ct, err := r.db.Exec(ctx, query,
		u.Email,
		u.Name,
		u.PasswordHash,
		u.Role,
		u.Phone,
		u.City,
		u.Course,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return apperrors.DuplicateEmail(u.Email)
		}
		return fmt.Errorf("update user: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}

	return nil
}

// scanUser executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, query string, args ...any) (*domain.User, error) {
	var u domain.User

	err := r.db.QueryRow(ctx, query, args...).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.PasswordHash,
		&u.Role,
		&u.Phone,
		&u.City,
		&u.Course,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	return &u, nil
}
