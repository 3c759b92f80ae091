package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/pressly/goose/v3"
)

// DefaultDir is the on-disk location used by cmd/migrate when run from the repo root.
const DefaultDir = "pkg/migrate/migrations"

// EmbeddedDir selects the migrations compiled into the binary.
const EmbeddedDir = "embedded"

//go:embed migrations/*.sql
var embedded embed.FS

// Embedded exposes the compiled-in migration set.
func Embedded() fs.FS {
	sub, err := fs.Sub(embedded, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// GooseDialect maps a db client dialect onto the goose dialect name.
func GooseDialect(dialect string) string {
	if dialect == "sqlite" {
		return "sqlite3"
	}
	return "postgres"
}

// Run executes a standard goose command that requires a DB connection.
func Run(ctx context.Context, db *sql.DB, dialect, dir, command string, args ...string) error {
	if db == nil {
		return fmt.Errorf("db is required")
	}
	gooseDir, err := prepare(dialect, dir)
	if err != nil {
		return err
	}
	if err := goose.RunContext(ctx, command, db, gooseDir, args...); err != nil {
		return fmt.Errorf("goose %s: %w", command, err)
	}
	return nil
}

// MigrateToVersion migrates up/down to the requested version by comparing current DB version.
func MigrateToVersion(ctx context.Context, db *sql.DB, dialect, dir, targetVersion string) error {
	if targetVersion == "" {
		return fmt.Errorf("targetVersion is required")
	}
	target, err := strconv.ParseInt(targetVersion, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid version %q (expected YYYYMMDDHHMMSS): %w", targetVersion, err)
	}

	gooseDir, err := prepare(dialect, dir)
	if err != nil {
		return err
	}

	current, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return fmt.Errorf("get db version: %w", err)
	}

	switch {
	case current == target:
		return nil
	case current < target:
		if err := goose.UpToContext(ctx, db, gooseDir, target); err != nil {
			return fmt.Errorf("goose up-to %d: %w", target, err)
		}
	default:
		if err := goose.DownToContext(ctx, db, gooseDir, target); err != nil {
			return fmt.Errorf("goose down-to %d: %w", target, err)
		}
	}
	return nil
}

func prepare(dialect, dir string) (string, error) {
	if dir == "" {
		return "", fmt.Errorf("dir is required")
	}
	if err := goose.SetDialect(GooseDialect(dialect)); err != nil {
		return "", fmt.Errorf("set goose dialect: %w", err)
	}
	if dir == EmbeddedDir {
		goose.SetBaseFS(Embedded())
		return ".", nil
	}
	goose.SetBaseFS(os.DirFS(dir))
	return ".", nil
}
