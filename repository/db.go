package repository

import (
	"context"
	"database/sql"
	"fmt"

	auth "github.com/eularod/faculty-infortmation-system-eula"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"github.com/uptrace/bun/extra/bundebug"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB connects to the database named by opts. SQLite connections are
// limited to one so in-memory databases survive between queries, and
// foreign keys are switched on.
func OpenDB(ctx context.Context, opts auth.DatabaseOptions) (*bun.DB, error) {
	var db *bun.DB

	switch opts.Driver {
	case auth.DriverSQLite:
		sqldb, err := sql.Open(sqliteshim.ShimName, opts.DSN)
		if err != nil {
			return nil, auth.NewStoreUnavailableError(err, "database.open")
		}
		sqldb.SetMaxOpenConns(1)
		db = bun.NewDB(sqldb, sqlitedialect.New())

		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, auth.NewStoreUnavailableError(err, "database.pragma")
		}
	case auth.DriverPostgres:
		sqldb, err := sql.Open("pgx", opts.DSN)
		if err != nil {
			return nil, auth.NewStoreUnavailableError(err, "database.open")
		}
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, goerrors.New(fmt.Sprintf("unsupported database driver %q", opts.Driver), goerrors.CategoryBadInput)
	}

	if opts.Debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, auth.NewStoreUnavailableError(err, "database.ping")
	}

	return db, nil
}
