package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"wikimod/internal/models"
	"wikimod/migrations"
)

// DB wraps a pgxpool connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new database connection pool.
func New(ctx context.Context, connString string) (*DB, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// RunMigrations runs all embedded SQL migrations.
func (d *DB) RunMigrations(connString string) error {
	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithSourceInstance("iofs", sourceDriver, connString)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}

// Ping checks that the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.Pool.Ping(ctx)
}

// Close closes the connection pool.
func (d *DB) Close() {
	d.Pool.Close()
}

// SeedDevPages creates a few pages for development. Skips pages that already exist.
func (d *DB) SeedDevPages(ctx context.Context) error {
	pages := []struct {
		ns   int
		name string
		text string
	}{
		{models.NSMain, "Main_Page", "Welcome to the wiki."},
		{models.NSProject, "Moderation", "Edits by new users are reviewed before they go live."},
		{models.NSTalk, "Main_Page", "Discuss the main page here."},
	}

	author := &models.User{Name: "Maintenance script", Role: models.RoleBot}
	for _, p := range pages {
		_, err := d.SaveRevision(ctx, SaveRevisionParams{
			Title:   models.Title{Namespace: p.ns, DBKey: p.name},
			Text:    p.text,
			Comment: "Seed page",
			Author:  author,
		})
		if err != nil && !errors.Is(err, ErrPageExists) {
			return fmt.Errorf("failed to seed page %s: %w", p.name, err)
		}
	}

	return nil
}
