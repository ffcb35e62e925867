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
	"sync"
	"time"

	"github.com/your-org/certhub-api/internal/domain"
)

// Entry is a single cached search result.
type Entry struct {
	Key      string
	Value    []domain.SearchResult
	StoredAt time.Time
}

// MemoryStore is a process-lifetime map with lazy TTL expiry.
// Stale entries stay in the map until overwritten or cleared.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	ttl     time.Duration
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]Entry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock replaces the time source, used by tests to step past the TTL.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

// Get returns the cached value or ErrCacheMiss.
func (s *MemoryStore) Get(_ context.Context, query string) ([]domain.SearchResult, error) {
	key := NormalizeKey(query)

	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok || s.now().Sub(entry.StoredAt) > s.ttl {
		return nil, ErrCacheMiss
	}

	return entry.Value, nil
}

// Set stores value under the normalized key, replacing any previous entry.
func (s *MemoryStore) Set(_ context.Context, query string, value []domain.SearchResult) error {
	key := NormalizeKey(query)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{
		Key:      key,
		Value:    value,
		StoredAt: s.now(),
	}
	return nil
}

// Clear drops every entry.
func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[string]Entry)
	return nil
}

// Len counts stored entries, stale ones included.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
