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

// Package cache provides the search result cache and its storage backends.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/domain"
)

const (
	// BackendMemory keeps entries in process memory
	BackendMemory = "memory"
	// BackendRedis stores entries in Redis
	BackendRedis = "redis"
	// BackendSQLite stores entries in a SQLite file
	BackendSQLite = "sqlite"

	// DefaultTTL is how long a generated search result stays fresh
	DefaultTTL = 30 * time.Minute
)

// ErrCacheMiss is returned by Get for absent and stale keys alike.
var ErrCacheMiss = errors.New("cache miss")

// Store is the result cache used by the search pipeline.
type Store interface {
	Get(ctx context.Context, query string) ([]domain.SearchResult, error)
	Set(ctx context.Context, query string, value []domain.SearchResult) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// NormalizeKey maps a raw query onto its cache key. Only case is folded;
// surrounding and internal whitespace are kept as submitted.
func NormalizeKey(query string) string {
	return strings.ToLower(query)
}

// New builds the backend selected in cfg.
func New(cfg config.CacheConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	ttl := time.Duration(cfg.TTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	switch cfg.Backend {
	case "", BackendMemory:
		logger.Info("Using in-memory result cache", zap.Duration("ttl", ttl))
		return NewMemoryStore(ttl), nil
	case BackendRedis:
		store, err := NewRedisStore(cfg.Redis, ttl)
		if err != nil {
			return nil, err
		}
		logger.Info("Using Redis result cache",
			zap.String("addr", cfg.Redis.Addr),
			zap.String("prefix", cfg.Redis.Prefix),
			zap.Duration("ttl", ttl))
		return store, nil
	case BackendSQLite:
		store, err := NewSQLiteStore(cfg.SQLite.Path, ttl)
		if err != nil {
			return nil, err
		}
		logger.Info("Using SQLite result cache",
			zap.String("path", cfg.SQLite.Path),
			zap.Duration("ttl", ttl))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}
