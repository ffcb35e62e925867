// Copyright 2025 CertHub API Project
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

package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/your-org/certhub-api/internal/domain"
)

const createEntriesTable = `
CREATE TABLE IF NOT EXISTS search_cache (
	cache_key TEXT PRIMARY KEY,
	value     TEXT NOT NULL,
	stored_at INTEGER NOT NULL
);`

// SQLiteStore persists entries in a SQLite file so they survive restarts.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("sqlite cache path is required")
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	// go-sqlite3 serializes writers anyway; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createEntriesTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}

	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}, nil
}

// WithClock replaces the time source.
func (s *SQLiteStore) WithClock(now func() time.Time) *SQLiteStore {
	s.now = now
	return s
}

// Get returns the cached value or ErrCacheMiss.
func (s *SQLiteStore) Get(ctx context.Context, query string) ([]domain.SearchResult, error) {
	var (
		raw      string
		storedAt int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT value, stored_at FROM search_cache WHERE cache_key = ?`,
		NormalizeKey(query),
	).Scan(&raw, &storedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query sqlite cache: %w", err)
	}

	if s.now().Sub(time.UnixMilli(storedAt)) > s.ttl {
		return nil, ErrCacheMiss
	}

	var value []domain.SearchResult
	if err := json.Unmarshal([]byte(raw), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return value, nil
}

// Set inserts or replaces the entry for query.
func (s *SQLiteStore) Set(ctx context.Context, query string, value []domain.SearchResult) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO search_cache (cache_key, value, stored_at) VALUES (?, ?, ?)`,
		NormalizeKey(query), string(data), s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to write sqlite cache: %w", err)
	}
	return nil
}

// Clear deletes every row.
func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM search_cache`); err != nil {
		return fmt.Errorf("failed to clear sqlite cache: %w", err)
	}
	return nil
}

// Len counts stored rows, stale ones included.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count sqlite cache: %w", err)
	}
	return count, nil
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
