// Package database opens the session store and applies its schema.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"cbt-coach/migrations"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func init() {
	// modernc registers as "sqlite", which sqlx does not know.
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Open connects to dsn, retrying the ping a few times while the database
// comes up.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps ":memory:" databases shared and serialises writers.
		db.SetMaxOpenConns(1)
	}

	const attempts = 10
	for i := 1; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if i == attempts {
			db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		logger.WarnContext(ctx, "waiting for database", "attempt", i, "of", attempts, "error", err)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(time.Duration(i) * 500 * time.Millisecond):
		}
	}

	if driver == DriverSQLite {
		if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return db, nil
}

// Migrator applies the schema. The embedded migrations are used unless a
// directory is given.
type Migrator struct {
	m      *migrate.Migrate
	closer bool
}

func NewMigrator(db *sqlx.DB, driver, dsn, dir string) (*Migrator, error) {
	var (
		src source.Driver
		err error
	)
	if dir != "" {
		src, err = (&file.File{}).Open("file://" + dir)
	} else {
		fsys, ferr := migrations.For(driver)
		if ferr != nil {
			return nil, ferr
		}
		src, err = iofs.New(fsys, ".")
	}
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	switch driver {
	case DriverPostgres:
		// migrate opens its own connection so closing it leaves db alone.
		m, err := migrate.NewWithSourceInstance("migrations", src, dsn)
		if err != nil {
			return nil, fmt.Errorf("migration init: %w", err)
		}
		return &Migrator{m: m, closer: true}, nil
	case DriverSQLite:
		drv, err := sqlite.WithInstance(db.DB, &sqlite.Config{})
		if err != nil {
			return nil, fmt.Errorf("migration init: %w", err)
		}
		m, err := migrate.NewWithInstance("migrations", src, DriverSQLite, drv)
		if err != nil {
			return nil, fmt.Errorf("migration init: %w", err)
		}
		return &Migrator{m: m}, nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", driver)
}

// Up applies every pending migration. It is a no-op when the schema is current.
func (m *Migrator) Up() error {
	if err := m.m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

// Down rolls back n migrations.
func (m *Migrator) Down(n int) error {
	if err := m.m.Steps(-n); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate down: %w", err)
	}
	return nil
}

func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Close releases the migrator. For sqlite the shared handle stays open.
func (m *Migrator) Close() error {
	if !m.closer {
		return nil
	}
	srcErr, dbErr := m.m.Close()
	return errors.Join(srcErr, dbErr)
}

// Migrate opens a migrator and applies everything pending.
func Migrate(db *sqlx.DB, driver, dsn string) error {
	m, err := NewMigrator(db, driver, dsn, "")
	if err != nil {
		return err
	}
	defer m.Close()
	return m.Up()
}
