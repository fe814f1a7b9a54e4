package goosemigrate

import (
	"fmt"
	"io/fs"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Up applies all pending migrations from the given filesystem.
func Up(postgresURL string, fsys fs.FS, dir string) error {
	db, err := goose.OpenDBWithDriver("pgx", postgresURL)
	if err != nil {
		return fmt.Errorf("failed to open DB for migration: %w", err)
	}
	defer db.Close()

	goose.SetBaseFS(fsys)
	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("failed to up migrations: %w", err)
	}

	return nil
}
