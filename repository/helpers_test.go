package repository

import (
	"context"
	"io"
	"log/slog"
	"testing"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := OpenDB(context.Background(), auth.DatabaseOptions{
		Driver: auth.DriverSQLite,
		DSN:    ":memory:",
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func migratedTestDB(t *testing.T) *bun.DB {
	t.Helper()
	db := openTestDB(t)
	_, err := Migrate(context.Background(), db, auth.DriverSQLite, quietLogger())
	require.NoError(t, err)
	return db
}

// insertAccount adds a bare faculty account that sessions can point to.
func insertAccount(t *testing.T, db *bun.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.ExecContext(context.Background(),
		"INSERT INTO users (id, username, password_hash, user_type_id, is_active) VALUES (?, ?, ?, (SELECT user_type_id FROM user_types WHERE type_name = 'Faculty'), 1)",
		id.String(), "fac-"+id.String()[:8], "x",
	)
	require.NoError(t, err)
	return id
}
