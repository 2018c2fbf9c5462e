package database

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ DBTX = (pgxmock.PgxPoolIface)(nil)

func schemaFS() fstest.MapFS {
	return fstest.MapFS{
		"000002_create_refresh_tokens.up.sql": {Data: []byte("CREATE TABLE refresh_tokens (jti TEXT PRIMARY KEY);")},
		"000001_create_users.up.sql":          {Data: []byte("CREATE TABLE users (id TEXT PRIMARY KEY);")},
		"000001_create_users.down.sql":        {Data: []byte("DROP TABLE users;")},
		"embed.go":                            {Data: []byte("package migrations")},
		"archive/000000_bootstrap.up.sql":     {Data: []byte("SELECT 1;")},
	}
}

func TestLoadMigrations(t *testing.T) {
	got, err := LoadMigrations(schemaFS())
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, "000001_create_users.up.sql", got[0].Version)
	assert.Equal(t, "000002_create_refresh_tokens.up.sql", got[1].Version)
	assert.Contains(t, got[1].SQL, "refresh_tokens")
}

func TestRunMigrations_SkipsRecordedVersions(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("000001_create_users.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("000002_create_refresh_tokens.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE refresh_tokens").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs("000002_create_refresh_tokens.up.sql").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(context.Background(), mock, schemaFS(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_FailedStatementRollsBack(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("000001_create_users.up.sql").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE users").WillReturnError(&pgconn.PgError{Code: "42P07", Message: "relation already exists"})
	mock.ExpectRollback()

	err = RunMigrations(context.Background(), mock, schemaFS(), nil)
	require.Error(t, err)
	assert.ErrorContains(t, err, "apply migration 000001_create_users.up.sql")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunSQLMigrations_Rerunnable(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	for range 2 {
		require.NoError(t, RunSQLMigrations(ctx, db, schemaFS(), nil))
	}

	var versions int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
	assert.Equal(t, 2, versions)

	_, err = db.ExecContext(ctx, "INSERT INTO refresh_tokens (jti) VALUES ('j-1')")
	assert.NoError(t, err)
}

func TestIsSQLiteUniqueViolation(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(ctx, ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.ExecContext(ctx, "CREATE TABLE users (email TEXT UNIQUE)")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, "INSERT INTO users (email) VALUES ('asha@example.in')")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, "INSERT INTO users (email) VALUES ('asha@example.in')")
	require.Error(t, err)
	assert.True(t, IsSQLiteUniqueViolation(err))
	assert.False(t, IsSQLiteUniqueViolation(&pgconn.PgError{Code: "23505"}))
}
