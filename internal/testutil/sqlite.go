// Package testutil provides shared helpers for store and service tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pomodoro/sessions/internal/db"
)

// MigrationsDir locates the repository migrations from the source tree.
func MigrationsDir() string {
	_, currentFile, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
}

// OpenDB returns a migrated SQLite database in a temp dir, closed on cleanup.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, err = db.RunMigrations(context.Background(), database, MigrationsDir())
	require.NoError(t, err)
	return database
}

// SeedActivity inserts a user (if missing) and an activity owned by it.
func SeedActivity(t *testing.T, database *sql.DB, activityID, userID string) {
	t.Helper()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := database.Exec(
		`INSERT OR IGNORE INTO users (id, email, password_hash, created_at, updated_at) VALUES (?, ?, 'x', ?, ?)`,
		userID, userID+"@example.com", now, now,
	)
	require.NoError(t, err)

	_, err = database.Exec(
		`INSERT INTO activities (id, user_id, name, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		activityID, userID, "activity "+activityID, now, now,
	)
	require.NoError(t, err)
}
