package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

const migrationSuffix = ".up.sql"

// Migration is one forward-only schema change. Version is its file name.
type Migration struct {
	Version string
	SQL     string
}

// LoadMigrations returns the *.up.sql files at the root of fsys in lexical
// order. Down migrations and subdirectories are ignored.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*"+migrationSuffix)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: path.Base(name), SQL: string(body)})
	}
	return out, nil
}

// migrationTarget hides the driver differences between pgx and database/sql.
type migrationTarget interface {
	ensureLedger(ctx context.Context) error
	applied(ctx context.Context, version string) (bool, error)
	// apply runs m and records its version atomically.
	apply(ctx context.Context, m Migration) error
}

func migrate(ctx context.Context, target migrationTarget, migrations []Migration, logger *slog.Logger) error {
	if err := target.ensureLedger(ctx); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	for _, m := range migrations {
		done, err := target.applied(ctx, m.Version)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", m.Version, err)
		}
		if done {
			continue
		}
		if err := target.apply(ctx, m); err != nil {
			return fmt.Errorf("apply migration %s: %w", m.Version, err)
		}
		if logger != nil {
			logger.InfoContext(ctx, "migration applied", slog.String("version", strings.TrimSuffix(m.Version, migrationSuffix)))
		}
	}
	return nil
}

// RunMigrations applies pending migrations from fsys to PostgreSQL. Only
// connectivity failures are retried.
func RunMigrations(ctx context.Context, db DBTX, fsys fs.FS, logger *slog.Logger) error {
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return err
	}
	return startupRetry.run(ctx, logger, "run migrations", isTransient, func() error {
		return migrate(ctx, pgTarget{db}, migrations, logger)
	})
}

// RunSQLMigrations applies pending migrations from fsys through database/sql.
func RunSQLMigrations(ctx context.Context, db *sql.DB, fsys fs.FS, logger *slog.Logger) error {
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return err
	}
	return migrate(ctx, sqlTarget{db}, migrations, logger)
}

type pgTarget struct{ db DBTX }

func (t pgTarget) ensureLedger(ctx context.Context) error {
	_, err := t.db.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	return err
}

func (t pgTarget) applied(ctx context.Context, version string) (bool, error) {
	var found bool
	err := t.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&found)
	return found, err
}

func (t pgTarget) apply(ctx context.Context, m Migration) error {
	tx, err := t.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type sqlTarget struct{ db *sql.DB }

func (t sqlTarget) ensureLedger(ctx context.Context) error {
	_, err := t.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

func (t sqlTarget) applied(ctx context.Context, version string) (bool, error) {
	var found bool
	err := t.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)`, version).Scan(&found)
	return found, err
}

func (t sqlTarget) apply(ctx context.Context, m Migration) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, m.Version); err != nil {
		return err
	}
	return tx.Commit()
}
