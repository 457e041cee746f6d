package repository

import (
	"context"
	"testing"
	"testing/fstest"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateIsRepeatable(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	applied, err := Migrate(ctx, db, auth.DriverSQLite, quietLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_accounts", "0002_sessions"}, applied)

	applied, err = Migrate(ctx, db, auth.DriverSQLite, quietLogger())
	require.NoError(t, err)
	assert.Empty(t, applied)

	var names []string
	require.NoError(t, db.NewSelect().Model((*auth.UserType)(nil)).Column("type_name").Order("user_type_id").Scan(ctx, &names))
	assert.Equal(t, []string{"Administrator", "Faculty"}, names)
}

func TestMigrateFSStopsOnFailure(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	files := fstest.MapFS{
		"0001_ok.tx.up.sql":     {Data: []byte("-- first\nCREATE TABLE a (id INTEGER);\n--bun:split\nCREATE TABLE b (id INTEGER);\n")},
		"0002_broken.tx.up.sql": {Data: []byte("CREATE TABLE c (id INTEGER);\n--bun:split\nCREATE TABLE a (id INTEGER);\n")},
		"0003_later.tx.up.sql":  {Data: []byte("CREATE TABLE d (id INTEGER);\n")},
	}

	applied, err := MigrateFS(ctx, db, files, nil)
	require.Error(t, err)
	assert.True(t, auth.IsStoreUnavailable(err))
	assert.Equal(t, []string{"0001_ok"}, applied)

	for _, table := range []string{"c", "d"} {
		var count int
		require.NoError(t, db.NewRaw("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(ctx, &count))
		assert.Zero(t, count, table)
	}
}

func TestMigrateFSKeepsSemicolonsInsideStatements(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)

	files := fstest.MapFS{
		"0001_notes.tx.up.sql": {Data: []byte(
			"CREATE TABLE notes (body TEXT NOT NULL);\n" +
				"--bun:split\n" +
				"INSERT INTO notes (body) VALUES ('first; second');\n",
		)},
	}

	applied, err := MigrateFS(ctx, db, files, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_notes"}, applied)

	var body string
	require.NoError(t, db.NewRaw("SELECT body FROM notes").Scan(ctx, &body))
	assert.Equal(t, "first; second", body)
}
