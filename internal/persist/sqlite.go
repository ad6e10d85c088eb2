package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// SQLite driver names as registered by their packages.
const (
	DriverMattn   = "sqlite3"
	DriverModernc = "sqlite"
)

// SQLiteBackend stores each slot as one row of the slots table.
type SQLiteBackend struct {
	db     *sql.DB
	dbPath string
	driver string
}

// OpenSQLite opens or creates the database at path with the given driver.
// An empty driver selects modernc, which needs no cgo.
func OpenSQLite(ctx context.Context, driver, path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite backend: path required")
	}
	if driver == "" {
		driver = DriverModernc
	}

	var dsn string
	switch driver {
	case DriverMattn:
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	case DriverModernc:
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	default:
		return nil, fmt.Errorf("sqlite backend: unsupported driver %q", driver)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	b := &SQLiteBackend{db: db, dbPath: path, driver: driver}
	if err := b.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema(ctx context.Context) error {
	_, err := b.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS slots (
		name TEXT PRIMARY KEY,
		data BLOB NOT NULL,
		updated_at DATETIME NOT NULL
	);`)
	return err
}

func (b *SQLiteBackend) Name() string   { return BackendSQLite }
func (b *SQLiteBackend) Path() string   { return b.dbPath }
func (b *SQLiteBackend) Driver() string { return b.driver }
func (b *SQLiteBackend) Close() error   { return b.db.Close() }

func (b *SQLiteBackend) Slot(name string) Slot {
	return &sqliteSlot{db: b.db, name: name}
}

type sqliteSlot struct {
	db   *sql.DB
	name string
}

func (s *sqliteSlot) Load(ctx context.Context) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM slots WHERE name = ?`, s.name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSlotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %s: %w", s.name, err)
	}
	return data, nil
}

func (s *sqliteSlot) Save(ctx context.Context, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (name, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		s.name, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save slot %s: %w", s.name, err)
	}
	return nil
}

func (s *sqliteSlot) Delete(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM slots WHERE name = ?`, s.name); err != nil {
		return fmt.Errorf("failed to delete slot %s: %w", s.name, err)
	}
	return nil
}
