// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// A song catalog is a single table behind a single web process. SQLite keeps
// the whole database in one file next to the binary: nothing to install,
// nothing to run alongside the server, and ":memory:" gives every test its
// own throwaway database.
//
// DRIVER AND HELPERS:
//   - modernc.org/sqlite is a pure Go translation of SQLite, so the binary
//     builds without a C toolchain. It registers itself as driver "sqlite".
//   - jmoiron/sqlx sits on top of database/sql and scans rows straight into
//     structs using their `db` tags, and binds named parameters (:title) from
//     the same tags on the way in.
//   - golang-migrate applies the versioned SQL files embedded from
//     migrations/ and records the applied version in schema_migrations.
package sqlite

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	// Registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

//go:embed migrations/*.sql
var migrationFiles embed.FS

func init() {
	// sqlx only knows the bind style of a few driver names out of the box;
	// tell it that "sqlite" uses ? placeholders.
	sqlx.BindDriver(driverName, sqlx.QUESTION)
}

// DB wraps a sqlx connection pool and provides repository methods.
//
// Besides the pool it owns the queue of song changes that were saved or
// removed without flushing (see SongRepository). The mutex guards that queue;
// one DB is shared by every request goroutine.
type DB struct {
	conn *sqlx.DB

	mu      sync.Mutex
	pending []pendingOp
}

// New opens the SQLite database at dbPath and migrates it to the latest
// schema version.
//
// dbPath examples:
//   - "data/songs.db" → file-based database (persistent)
//   - ":memory:"      → in-memory database (tests), lost on Close
func New(dbPath string) (*DB, error) {
	conn, err := sqlx.Open(driverName, dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every new connection to ":memory:" is a brand-new empty database, so an
	// in-memory pool must never grow past the one connection holding our data.
	if dbPath == ":memory:" {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers keep going while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.Migrate(); err != nil {
		conn.Close()
		return nil, err
	}

	return db, nil
}

// newFromConn wraps an already opened pool without running migrations.
// Used by tests that drive the repository against go-sqlmock.
func newFromConn(conn *sqlx.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection pool. Changes still queued by a
// non-flushing Save or Remove are discarded.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks that the database is reachable. Used by the health endpoint.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Migrate applies every pending migration from migrations/. Running it on an
// up-to-date database is a no-op.
//
// The migrate.Migrate value is deliberately not closed: closing it would also
// close the *sql.DB we handed to the driver, which the repository keeps using.
func (db *DB) Migrate() error {
	src, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("sqlite: reading migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db.conn.DB, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("sqlite: preparing migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driverName, driver)
	if err != nil {
		return fmt.Errorf("sqlite: creating migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return nil
}

// SchemaVersion returns the version of the last applied migration.
func (db *DB) SchemaVersion(ctx context.Context) (uint, error) {
	var version uint
	err := db.conn.GetContext(ctx, &version,
		`SELECT version FROM schema_migrations LIMIT 1`)
	if err != nil {
		return 0, fmt.Errorf("sqlite: reading schema version: %w", err)
	}
	return version, nil
}
