package internal

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

const createSessionCacheSQL = `
CREATE TABLE IF NOT EXISTS sessionCache (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`

// OpenDatabase opens (creating if needed) a SQLite database for the session cache
func OpenDatabase(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection serialises writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if _, err := db.Exec(createSessionCacheSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessionCache table: %w", err)
	}

	return db, nil
}

// SQLiteStore is a Store backed by the sessionCache table
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and returns a store over it
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenDatabase(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreFromDB wraps an existing database, creating the table if needed
func NewSQLiteStoreFromDB(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(createSessionCacheSQL); err != nil {
		return nil, fmt.Errorf("failed to create sessionCache table: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Get returns the value stored under key
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM sessionCache WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, &StorageError{Key: key, Op: "get", Err: err}
	}
	return []byte(value), nil
}

// Put upserts value under key
func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	query := `INSERT INTO sessionCache (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, query, key, string(value), time.Now().UnixMilli()); err != nil {
		return &StorageError{Key: key, Op: "put", Err: err}
	}
	return nil
}

// Delete removes key
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessionCache WHERE key = ?", key); err != nil {
		return &StorageError{Key: key, Op: "delete", Err: err}
	}
	return nil
}

// Keys lists keys with the given prefix in sorted order
func (s *SQLiteStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key FROM sessionCache WHERE substr(key, 1, ?) = ? ORDER BY key", len(prefix), prefix)
	if err != nil {
		return nil, &StorageError{Key: prefix, Op: "keys", Err: err}
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return keys, nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
