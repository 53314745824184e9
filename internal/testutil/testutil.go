// Package testutil provides test utilities and helpers.
package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"

	"wikimod/internal/db"
	"wikimod/internal/models"
)

// TestDB connects to TEST_DATABASE_URL, migrates it and empties it again when
// the test ends. The test is skipped if no database is configured.
func TestDB(t *testing.T) *db.DB {
	t.Helper()

	connString := os.Getenv("TEST_DATABASE_URL")
	if connString == "" {
		t.Skip("Skipping integration test: TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	database, err := db.New(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	if err := database.RunMigrations(connString); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}

	cleanupTestData(ctx, database.Pool)
	t.Cleanup(func() {
		cleanupTestData(ctx, database.Pool)
		database.Close()
	})

	return database
}

// cleanupTestData removes all test data from the database.
func cleanupTestData(ctx context.Context, pool *pgxpool.Pool) {
	// Delete in order to respect foreign keys
	pool.Exec(ctx, "DELETE FROM moderation_log")
	pool.Exec(ctx, "DELETE FROM moderation")
	pool.Exec(ctx, "DELETE FROM recent_changes")
	pool.Exec(ctx, "DELETE FROM revisions")
	pool.Exec(ctx, "DELETE FROM pages")
	pool.Exec(ctx, "DELETE FROM files")
	pool.Exec(ctx, "DELETE FROM users")
}

// CreateTestUser creates a registered user with the given role.
func CreateTestUser(t *testing.T, database *db.DB, sub, name, role string) *models.User {
	t.Helper()

	user := &models.User{Sub: sub, Name: name, Email: sub + "@example.com", Role: role}
	if _, err := database.UpsertUser(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

// CreateTestPage creates a page and returns the id of its first revision.
func CreateTestPage(t *testing.T, database *db.DB, title models.Title, text string) int64 {
	t.Helper()

	revID, err := database.SaveRevision(context.Background(), db.SaveRevisionParams{
		Title:   title,
		Text:    text,
		Comment: "Test page",
		Author:  &models.User{Name: "Maintenance script", Role: models.RoleBot},
	})
	if err != nil {
		t.Fatalf("failed to create test page: %v", err)
	}
	return revID
}
