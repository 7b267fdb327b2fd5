package data

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// OpenDB opens the greeter database and creates the schema
func OpenDB(dbPath string) (*sql.DB, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return db, nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS lifecycle_configs (
		group_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		is_enabled INTEGER NOT NULL DEFAULT 0,
		delete_previous INTEGER NOT NULL DEFAULT 0,
		send_as_dm INTEGER NOT NULL DEFAULT 0,
		delete_after_seconds INTEGER NOT NULL DEFAULT 0,
		has_buttons INTEGER NOT NULL DEFAULT 0,
		buttons TEXT NOT NULL DEFAULT '',
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (group_id, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS tracked_messages (
		group_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		message_id TEXT NOT NULL,
		target_type TEXT NOT NULL,
		target_user_id TEXT NOT NULL DEFAULT '',
		sent_at INTEGER NOT NULL,
		delete_at INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (group_id, kind)
	)`,
	`CREATE TABLE IF NOT EXISTS dm_contacts (
		user_id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS group_rules (
		group_id TEXT PRIMARY KEY,
		link TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	)`,
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
