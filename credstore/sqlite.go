package credstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS secure_items (
	item_key   TEXT PRIMARY KEY,
	item_value BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);`

// SQLiteBackend keeps values in a single key/value table.
type SQLiteBackend struct {
	db    *sql.DB
	owned bool
}

// OpenSQLiteBackend opens (or creates) the database file at path.
func OpenSQLiteBackend(path string) (*SQLiteBackend, error) {
	if path == "" {
		return nil, errors.New("sqlite backend requires a path")
	}
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), fileDirPerm); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One device, one writer; this also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	b, err := NewSQLiteBackend(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	b.owned = true
	return b, nil
}

// NewSQLiteBackend uses an already opened database and creates the table if needed.
func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	if db == nil {
		return nil, errors.New("sqlite backend requires a database")
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secure_items (item_key, item_value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(item_key) DO UPDATE SET
			item_value = excluded.item_value,
			updated_at = excluded.updated_at
	`, key, value, time.Now().Unix())
	return err
}

func (s *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT item_value FROM secure_items WHERE item_key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

func (s *SQLiteBackend) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM secure_items WHERE item_key = ?`, key)
	return err
}

// Close releases the database when the backend opened it itself.
func (s *SQLiteBackend) Close() error {
	if s == nil || !s.owned {
		return nil
	}
	return s.db.Close()
}
