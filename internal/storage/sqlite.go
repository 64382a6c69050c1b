package storage

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/starford/pantry/internal/apperr"

	_ "github.com/mattn/go-sqlite3"
)

const kvSchemaSQL = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// Compile-time interface check.
var _ Provider = (*SQLite)(nil)

// SQLite implements Provider on a single key/value table.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the database file and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(kvSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Get returns the value stored under key.
func (s *SQLite) Get(key string) ([]byte, error) {
	var value []byte
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("storage: get %s: %w", key, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: get %s: %w", key, err)
	}
	return value, nil
}

// Put upserts value under key.
func (s *SQLite) Put(key string, value []byte) error {
	if key == "" {
		return fmt.Errorf("storage: empty key")
	}
	_, err := s.conn.Exec(`
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value      = excluded.value,
			updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("storage: put %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (s *SQLite) Delete(key string) error {
	if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("storage: delete %s: %w", key, err)
	}
	return nil
}

// Keys lists the stored keys in lexical order.
func (s *SQLite) Keys() ([]string, error) {
	rows, err := s.conn.Query(`SELECT key FROM kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("storage: list: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
