package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var sqliteSchema = []string{
	`PRAGMA journal_mode = WAL`,
	`PRAGMA busy_timeout = 5000`,
	`CREATE TABLE IF NOT EXISTS proxy_call_logs (
		id               TEXT PRIMARY KEY,
		timestamp        DATETIME NOT NULL,
		request_id       TEXT NOT NULL,
		endpoint         TEXT NOT NULL,
		method           TEXT NOT NULL,
		status_code      INTEGER,
		latency_ms       INTEGER,
		family           TEXT,
		provider         TEXT,
		user_agent       TEXT,
		remote_addr      TEXT,
		request_headers  TEXT,
		request_body     TEXT,
		response_headers TEXT,
		response_body    TEXT,
		error_code       TEXT,
		metadata         TEXT,
		created_at       DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_proxy_call_logs_timestamp ON proxy_call_logs (timestamp)`,
}

// SQLiteStorage implements StorageBackend on a local SQLite file.
type SQLiteStorage struct {
	*sqlStore
}

// NewSQLiteStorage opens (or creates) the database at path.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store := &sqlStore{db: db, bind: func(int) string { return "?" }}
	if err := store.ensureSchema(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteStorage{sqlStore: store}, nil
}
