// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package state persists connector state between runs using SQLite: the
// inventory sync cursor checkpoint and each user's last-known risk tier.
//
// Both are small key-value shapes, but they carry the connector's resumability
// and idempotency guarantees, so writes go through a durable store rather than
// process memory.
package state

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed connector state store.
type Store struct {
	db *sql.DB
}

// Config contains configuration for the state store.
type Config struct {
	// Path is the filesystem path to the SQLite database file.
	// Default: ~/.local/share/idpconnect/state.db
	Path string

	// MaxOpenConns sets the maximum number of open connections.
	// For SQLite, this should typically be low to avoid lock contention.
	MaxOpenConns int
}

// Checkpoint is a persisted sync cursor with bookkeeping about the run that
// wrote it.
type Checkpoint struct {
	SyncID    string
	Cursor    string
	Pages     int
	LastError string
	UpdatedAt time.Time
}

// NewStore opens (or creates) the state database and runs migrations.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get user home directory: %w", err)
		}
		cfg.Path = filepath.Join(homeDir, ".local", "share", "idpconnect", "state.db")
	}

	if cfg.Path != ":memory:" {
		dir := filepath.Dir(cfg.Path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	// WAL mode for better concurrency and durability.
	connStr := cfg.Path
	if cfg.Path != ":memory:" {
		connStr += "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	maxConns := cfg.MaxOpenConns
	if maxConns == 0 {
		maxConns = 5
	}
	// Each in-memory connection is its own database, so the pool must stay
	// pinned to one connection.
	if cfg.Path == ":memory:" {
		maxConns = 1
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(2)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// migrate creates the database schema.
func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS sync_checkpoint (
		sync_id TEXT PRIMARY KEY,
		cursor TEXT NOT NULL,
		pages INTEGER DEFAULT 0,
		last_error TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS user_risk_tier (
		user_id TEXT PRIMARY KEY,
		tier TEXT NOT NULL,
		group_id TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// GetCheckpoint retrieves the persisted cursor for a sync stream.
// Returns nil if no checkpoint exists yet (a fresh sync starts from the top).
func (s *Store) GetCheckpoint(ctx context.Context, syncID string) (*Checkpoint, error) {
	query := `
	SELECT sync_id, cursor, pages, last_error, updated_at
	FROM sync_checkpoint
	WHERE sync_id = ?
	`

	row := s.db.QueryRowContext(ctx, query, syncID)

	var cp Checkpoint
	var lastError sql.NullString

	err := row.Scan(&cp.SyncID, &cp.Cursor, &cp.Pages, &lastError, &cp.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}

	if lastError.Valid {
		cp.LastError = lastError.String
	}

	return &cp, nil
}

// SaveCheckpoint creates or updates the cursor checkpoint for a sync stream.
func (s *Store) SaveCheckpoint(ctx context.Context, cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	query := `
	INSERT INTO sync_checkpoint (sync_id, cursor, pages, last_error, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(sync_id) DO UPDATE SET
		cursor = excluded.cursor,
		pages = excluded.pages,
		last_error = excluded.last_error,
		updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		cp.SyncID, cp.Cursor, cp.Pages, cp.LastError, cp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}

	return nil
}

// ClearCheckpoint removes the checkpoint for a sync stream. Called after a
// sync drains its final page so the next run starts fresh.
func (s *Store) ClearCheckpoint(ctx context.Context, syncID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sync_checkpoint WHERE sync_id = ?`, syncID)
	if err != nil {
		return fmt.Errorf("failed to clear checkpoint: %w", err)
	}
	return nil
}

// GetTier returns the last-known risk tier and tier group for a user.
// Returns ok=false when the user has never had a tier recorded.
func (s *Store) GetTier(ctx context.Context, userID string) (tier, groupID string, ok bool, err error) {
	query := `SELECT tier, group_id FROM user_risk_tier WHERE user_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID)
	err = row.Scan(&tier, &groupID)
	if err == sql.ErrNoRows {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("failed to get tier: %w", err)
	}

	return tier, groupID, true, nil
}

// SetTier records the user's current risk tier and the group that represents
// it. Written only after the provider-side membership change succeeded.
func (s *Store) SetTier(ctx context.Context, userID, tier, groupID string) error {
	query := `
	INSERT INTO user_risk_tier (user_id, tier, group_id, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		tier = excluded.tier,
		group_id = excluded.group_id,
		updated_at = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query, userID, tier, groupID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set tier: %w", err)
	}

	return nil
}

// DeleteTier forgets the recorded tier for a user.
func (s *Store) DeleteTier(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM user_risk_tier WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete tier: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
