package store

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar"
	migrate "github.com/mattes/migrate"
	_ "github.com/mattes/migrate/database/sqlite3"
	_ "github.com/mattes/migrate/source/file"
	"github.com/pkg/errors"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every pending migration against the database at dbPath,
// without opening the read/write pools Open otherwise sets up. It backs
// the `bencherd migrate` subcommand, for operators who want to run schema
// migrations independently of starting the server.
func Migrate(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "creating db directory %q", dir)
	}
	return runMigrations(dbPath)
}

// runMigrations extracts the embedded migration files to a directory
// sibling to the database file and applies them on the exclusive writer,
// before any pool is handed out (§4.1: "Migrations run on the exclusive
// writer before any pool is handed out").
func runMigrations(dbPath string) error {
	dir := filepath.Join(filepath.Dir(dbPath), "migrations")
	if err := extractMigrations(dir); err != nil {
		return errors.Wrap(err, "extracting embedded migrations")
	}

	sourceURL := "file://" + dir
	databaseURL := "sqlite3://" + dbPath
	m, err := migrate.New(sourceURL, databaseURL)
	if err != nil {
		return errors.Wrap(err, "initializing migrator")
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return errors.Wrap(err, "applying migrations")
	}
	return nil
}

// extractMigrations writes every embedded *.sql file to dir, discovering
// them with a doublestar glob against the embedded FS's flat listing
// (mattes/migrate's file source reads from a real directory, not an
// embed.FS, so the embedded copies are materialized once per startup).
func extractMigrations(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		ok, err := doublestar.Match("*.sql", name)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		data, err := migrationsFS.ReadFile(filepath.Join("migrations", name))
		if err != nil {
			return err
		}
		dest := filepath.Join(dir, name)
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("writing migration %q: %w", dest, err)
		}
	}
	return nil
}
