// Package migrations embeds the schema for the SQL backends.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed postgres/*.up.sql sqlite/*.up.sql
var files embed.FS

// Postgres returns the PostgreSQL migrations, rooted so that
// database.LoadMigrations sees the files directly.
func Postgres() fs.FS {
	return sub("postgres")
}

// SQLite returns the SQLite migrations.
func SQLite() fs.FS {
	return sub("sqlite")
}

func sub(dir string) fs.FS {
	f, err := fs.Sub(files, dir)
	if err != nil {
		// The directories are embedded at build time.
		panic(err)
	}
	return f
}
