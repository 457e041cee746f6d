package auth

import (
	"embed"
	"io/fs"
	"path"
)

const migrationsRoot = "data/sql/migrations"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// MigrationsFor returns the migrations of one driver, DriverSQLite or
// DriverPostgres, rooted at their directory.
func MigrationsFor(driver string) (fs.FS, error) {
	return fs.Sub(migrationsFS, path.Join(migrationsRoot, driver))
}
