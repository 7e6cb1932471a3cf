package cachestore

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend is a durable backend storing one row per (namespace, key) in
// a single database file, for callers that prefer one artifact over a record
// tree. WAL mode keeps concurrent loads cheap while a store is in flight.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (or creates) the backend database at dbPath.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("cachestore: open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: ping database: %w", err)
	}
	const ddl = `
CREATE TABLE IF NOT EXISTS cache_entries (
  namespace  TEXT NOT NULL,
  key        TEXT NOT NULL,
  record     BLOB NOT NULL,
  PRIMARY KEY (namespace, key)
);`
	if _, err := db.Exec(ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("cachestore: migrate: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

func sqliteNS(namespace []string) string {
	return strings.Join(namespace, "/")
}

func (b *SQLiteBackend) Load(namespace []string, key string) ([]byte, bool, error) {
	var data []byte
	err := b.db.QueryRow(
		`SELECT record FROM cache_entries WHERE namespace = ? AND key = ?`,
		sqliteNS(namespace), key,
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (b *SQLiteBackend) Store(namespace []string, key string, data []byte) error {
	_, err := b.db.Exec(
		`INSERT INTO cache_entries (namespace, key, record) VALUES (?, ?, ?)
		 ON CONFLICT(namespace, key) DO UPDATE SET record = excluded.record`,
		sqliteNS(namespace), key, data,
	)
	return err
}

func (b *SQLiteBackend) Delete(namespace []string, key string) error {
	_, err := b.db.Exec(
		`DELETE FROM cache_entries WHERE namespace = ? AND key = ?`,
		sqliteNS(namespace), key,
	)
	return err
}

func (b *SQLiteBackend) Clear(namespace []string) error {
	_, err := b.db.Exec(`DELETE FROM cache_entries WHERE namespace = ?`, sqliteNS(namespace))
	return err
}

func (b *SQLiteBackend) Keys(namespace []string) ([]string, error) {
	rows, err := b.db.Query(
		`SELECT key FROM cache_entries WHERE namespace = ?`, sqliteNS(namespace),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (b *SQLiteBackend) Close() error {
	return b.db.Close()
}
