package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	_ "github.com/lib/pq"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS proxy_call_logs (
		id               UUID PRIMARY KEY,
		timestamp        TIMESTAMPTZ NOT NULL,
		request_id       UUID NOT NULL,
		endpoint         TEXT NOT NULL,
		method           TEXT NOT NULL,
		status_code      INTEGER,
		latency_ms       BIGINT,
		family           TEXT,
		provider         TEXT,
		user_agent       TEXT,
		remote_addr      TEXT,
		request_headers  JSONB,
		request_body     TEXT,
		response_headers JSONB,
		response_body    TEXT,
		error_code       TEXT,
		metadata         JSONB,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_proxy_call_logs_timestamp ON proxy_call_logs (timestamp)`,
	`CREATE INDEX IF NOT EXISTS idx_proxy_call_logs_provider ON proxy_call_logs (provider)`,
}

// PostgreSQLStorage implements StorageBackend for PostgreSQL
type PostgreSQLStorage struct {
	*sqlStore
}

// PostgreSQLConfig holds configuration for PostgreSQL connection
type PostgreSQLConfig struct {
	ConnectionURL   string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	Logger          *slog.Logger
}

// NewPostgreSQLStorage connects to PostgreSQL and creates the call log table if needed.
func NewPostgreSQLStorage(config PostgreSQLConfig) (*PostgreSQLStorage, error) {
	db, err := sql.Open("postgres", config.ConnectionURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if config.MaxConnections > 0 {
		db.SetMaxOpenConns(config.MaxConnections)
	} else {
		db.SetMaxOpenConns(25)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	} else {
		db.SetMaxIdleConns(5)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	} else {
		db.SetConnMaxLifetime(time.Hour)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &sqlStore{db: db, bind: func(n int) string { return "$" + strconv.Itoa(n) }}
	if err := store.ensureSchema(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, err
	}

	if config.Logger != nil {
		config.Logger.Info("connected to PostgreSQL")
	}

	return &PostgreSQLStorage{sqlStore: store}, nil
}

// GetDB returns the database connection for external use
func (p *PostgreSQLStorage) GetDB() *sql.DB {
	return p.db
}
