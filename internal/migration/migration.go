package migration

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Status is the schema state after RunMigrations.
type Status struct {
	Version uint
	Changed bool
}

// RunMigrations applies the embedded Postgres schema. The migrator is not
// closed: that would close db, which the store keeps using.
func RunMigrations(db *sql.DB, log *zap.Logger) (Status, error) {
	if db == nil {
		return Status{}, errors.New("migration database handle is required")
	}

	migrator, err := newMigrator(db)
	if err != nil {
		return Status{}, err
	}
	migrator.Log = migrateLogger{log: log.Named("migrate")}

	status := Status{Changed: true}
	if err := migrator.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return Status{}, fmt.Errorf("apply migrations: %w", err)
		}
		status.Changed = false
	}

	version, dirty, err := migrator.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return Status{}, fmt.Errorf("read schema version: %w", err)
	}
	if dirty {
		return Status{}, fmt.Errorf("schema version %d is dirty", version)
	}
	status.Version = version
	return status, nil
}

func newMigrator(db *sql.DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}
	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "portal_schema_migrations"})
	if err != nil {
		return nil, fmt.Errorf("create migration driver: %w", err)
	}
	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return migrator, nil
}

// migrateLogger routes golang-migrate output to zap at debug level.
type migrateLogger struct {
	log *zap.Logger
}

func (l migrateLogger) Printf(format string, v ...interface{}) {
	l.log.Debug("migration.step", zap.String("detail", strings.TrimSpace(fmt.Sprintf(format, v...))))
}

func (l migrateLogger) Verbose() bool {
	return l.log.Core().Enabled(zap.DebugLevel)
}
