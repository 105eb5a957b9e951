// Package sqlitedb opens the single-file SQLite database used when jeton runs
// without Postgres.
package sqlitedb

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Open opens (creating if needed) the database at path, applies pragmas and
// ensures the schema exists.
//
// The pool is limited to a single connection and transactions begin with
// BEGIN IMMEDIATE, so every write transaction holds the database write lock
// from its first statement.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("executing %s: %w", p, err)
		}
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}
	return db, nil
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return "file:" + path + sep + "_txlock=immediate"
}

// Timestamps are stored as INTEGER unix nanoseconds.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id             TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		email          TEXT NOT NULL UNIQUE,
		api_key_hash   TEXT NOT NULL UNIQUE,
		api_key_prefix TEXT NOT NULL,
		rate_limit     INTEGER NOT NULL DEFAULT 0,
		created_at     INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS accounts (
		user_id    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		balance    INTEGER NOT NULL DEFAULT 0 CHECK (balance >= 0),
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS transactions (
		id            TEXT PRIMARY KEY,
		user_id       TEXT NOT NULL REFERENCES accounts(user_id) ON DELETE CASCADE,
		type          TEXT NOT NULL,
		amount        INTEGER NOT NULL,
		balance_after INTEGER NOT NULL,
		description   TEXT NOT NULL DEFAULT '',
		function_name TEXT NOT NULL DEFAULT '',
		created_at    INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_transactions_user_created ON transactions (user_id, created_at DESC, id DESC)`,
	`CREATE TABLE IF NOT EXISTS ai_usage (
		id                TEXT PRIMARY KEY,
		user_id           TEXT NOT NULL,
		function_name     TEXT NOT NULL,
		input_data        TEXT NOT NULL DEFAULT '',
		output_data       TEXT,
		points_consumed   INTEGER NOT NULL DEFAULT 0,
		execution_time_ms INTEGER NOT NULL DEFAULT 0,
		status            TEXT NOT NULL,
		error_message     TEXT,
		created_at        INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_usage_user_created ON ai_usage (user_id, created_at DESC, id DESC)`,
}
