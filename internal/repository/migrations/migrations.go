package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// Dialect names a goose dialect with an embedded migration set.
type Dialect string

const (
	SQLite   Dialect = "sqlite3"
	Postgres Dialect = "pgx"
)

var gooseUpContext = goose.UpContext

// Files returns the embedded migrations for the dialect, rooted at ".".
func Files(dialect Dialect) (fs.FS, error) {
	switch dialect {
	case SQLite:
		return fs.Sub(sqliteFS, "sqlite")
	case Postgres:
		return fs.Sub(postgresFS, "postgres")
	default:
		return nil, fmt.Errorf("unsupported migration dialect %q", dialect)
	}
}

// Up applies every pending migration for the dialect.
func Up(ctx context.Context, db *sql.DB, dialect Dialect) error {
	files, err := Files(dialect)
	if err != nil {
		return err
	}

	goose.SetBaseFS(files)
	if err := goose.SetDialect(string(dialect)); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
