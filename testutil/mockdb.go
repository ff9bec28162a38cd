package testutil

import (
	"database/sql"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

// CreateInMemoryDB creates an in-memory SQLite database with the sessionCache table
func CreateInMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to create in-memory database: %v", err)
	}
	// Every connection to ":memory:" is a separate database
	db.SetMaxOpenConns(1)

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS sessionCache (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`
	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		t.Fatalf("Failed to create sessionCache table: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// InsertCacheRecord stores a raw cache record
func InsertCacheRecord(t *testing.T, db *sql.DB, key, value string) {
	t.Helper()
	insertSQL := "INSERT INTO sessionCache (key, value, updated_at) VALUES (?, ?, ?)"
	if _, err := db.Exec(insertSQL, key, value, time.Now().UnixMilli()); err != nil {
		t.Fatalf("Failed to insert cache record: %v", err)
	}
}

// CountCacheRecords returns the number of rows in sessionCache
func CountCacheRecords(t *testing.T, db *sql.DB) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM sessionCache").Scan(&n); err != nil {
		t.Fatalf("Failed to count cache records: %v", err)
	}
	return n
}
