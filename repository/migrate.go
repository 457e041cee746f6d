package repository

import (
	"context"
	"io/fs"
	"sort"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Migrate applies the embedded migrations for driver that have not run
// yet and returns the ones it applied.
func Migrate(ctx context.Context, db *bun.DB, driver string, logger auth.Logger) ([]string, error) {
	files, err := auth.MigrationsFor(driver)
	if err != nil {
		return nil, auth.NewStoreUnavailableError(err, "migrate.open")
	}
	return MigrateFS(ctx, db, files, logger)
}

// MigrateFS runs the SQL migrations found in files with bun/migrate.
// Files named NNNN_name.tx.up.sql run inside a transaction; statements
// are separated by --bun:split lines. A migration is only recorded once
// it succeeded.
func MigrateFS(ctx context.Context, db *bun.DB, files fs.FS, logger auth.Logger) ([]string, error) {
	migrations := migrate.NewMigrations()
	if err := migrations.Discover(files); err != nil {
		return nil, auth.NewStoreUnavailableError(err, "migrate.discover")
	}

	migrator := migrate.NewMigrator(db, migrations, migrate.WithMarkAppliedOnSuccess(true))
	if err := migrator.Init(ctx); err != nil {
		return nil, auth.NewStoreUnavailableError(err, "migrate.init")
	}

	if err := migrator.Lock(ctx); err != nil {
		return nil, auth.NewStoreUnavailableError(err, "migrate.lock")
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil && logger != nil {
			logger.Error("failed to release migration lock", "error", err)
		}
	}()

	before, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, auth.NewStoreUnavailableError(err, "migrate.status")
	}

	_, migrateErr := migrator.Migrate(ctx)

	after, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, auth.NewStoreUnavailableError(err, "migrate.status")
	}

	applied := newlyApplied(before, after)
	if logger != nil {
		for _, name := range applied {
			logger.Info("migration applied", "name", name)
		}
	}

	if migrateErr != nil {
		return applied, auth.NewStoreUnavailableError(migrateErr, "migrate.apply")
	}
	return applied, nil
}

func newlyApplied(before, after migrate.MigrationSlice) []string {
	pending := make(map[string]bool)
	for _, m := range before.Unapplied() {
		pending[m.Name] = true
	}

	var applied []string
	for _, m := range after.Applied() {
		if pending[m.Name] {
			applied = append(applied, m.Name+"_"+m.Comment)
		}
	}
	sort.Strings(applied)
	return applied
}
