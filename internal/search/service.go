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

// Package search orchestrates certificate search: result cache, Q-net code
// resolution and aggregation, prompt construction and generation.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/your-org/certhub-api/internal/cache"
	"github.com/your-org/certhub-api/internal/domain"
	"github.com/your-org/certhub-api/internal/prompt"
	"github.com/your-org/certhub-api/internal/qnet"
)

// DefaultTimeout bounds one regeneration when no timeout is configured
const DefaultTimeout = 2 * time.Minute

var (
	// ErrEmptyQuery is returned for a blank query
	ErrEmptyQuery = errors.New("query is required")
	// ErrGeneration wraps every failure of the generation step
	ErrGeneration = errors.New("generation failed")
)

// Resolver maps a query to a qualification code
type Resolver interface {
	Resolve(ctx context.Context, query string) qnet.Resolution
}

// Aggregator gathers structured data for a qualification code
type Aggregator interface {
	Aggregate(ctx context.Context, code string) domain.AggregatedData
}

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Observer receives search and generation outcomes
type Observer interface {
	ObserveSearch(cacheHit bool)
	ObserveAI(operation, outcome string)
	SetCacheEntries(count int)
}

// Option configures a Service
type Option func(*Service)

// WithObserver reports outcomes to o
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithTimeout bounds a single regeneration
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock replaces the time source handed to the prompt builder
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service runs the search pipeline
type Service struct {
	store      cache.Store
	resolver   Resolver
	aggregator Aggregator
	generator  Generator
	observer   Observer
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
	sf         singleflight.Group
}

// NewService wires the pipeline stages together
func NewService(store cache.Store, resolver Resolver, aggregator Aggregator, generator Generator, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		store:      store,
		resolver:   resolver,
		aggregator: aggregator,
		generator:  generator,
		timeout:    DefaultTimeout,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the cached result for query or regenerates it. Concurrent
// misses for the same key share one regeneration.
func (s *Service) Search(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}

	cached, err := s.store.Get(ctx, query)
	if err == nil {
		s.observeSearch(true)
		s.logger.Debug("Search served from cache", zap.String("query", query))
		return cached, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Cache get failed, regenerating", zap.String("query", query), zap.Error(err))
	}
	s.observeSearch(false)

	// the flight is not tied to the leader's cancellation
	flightCtx := context.WithoutCancel(ctx)
	ch := s.sf.DoChan(cache.NormalizeKey(query), func() (results any, err error) {
		// DoChan re-panics on its own goroutine, out of reach of the HTTP recovery
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Search regeneration panicked",
					zap.String("query", query),
					zap.Any("panic", r),
					zap.Stack("stack"))
				results, err = nil, fmt.Errorf("%w: panic: %v", ErrGeneration, r)
			}
		}()
		return s.regenerate(flightCtx, query)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.SearchResult), nil
	}
}

func (s *Service) regenerate(ctx context.Context, query string) ([]domain.SearchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()

	var data domain.AggregatedData
	resolution := s.resolver.Resolve(ctx, query)
	if resolution.Found() {
		data = s.aggregator.Aggregate(ctx, resolution.Code)
	} else {
		s.logger.Info("No qualification code, using generic prompt",
			zap.String("query", query),
			zap.String("outcome", resolution.Outcome.String()),
			zap.Error(resolution.Err))
	}

	text, err := s.generator.Generate(ctx, prompt.BuildSearch(query, data, s.now()))
	if err != nil {
		s.observeAI("error")
		return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
	}
	s.observeAI("success")

	results := []domain.SearchResult{{Name: query, FullContent: text}}
	if err := s.store.Set(ctx, query, results); err != nil {
		s.logger.Warn("Cache store failed", zap.String("query", query), zap.Error(err))
	} else {
		s.reportCacheSize(ctx)
	}

	s.logger.Info("Search regenerated",
		zap.String("query", query),
		zap.Bool("code_found", resolution.Found()),
		zap.Bool("structured_data", !data.IsEmpty()),
		zap.Duration("elapsed", s.now().Sub(start)))

	return results, nil
}

// ClearCache drops every cached search result
func (s *Service) ClearCache(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return err
	}
	s.reportCacheSize(ctx)
	return nil
}

// CacheSize returns the number of cached entries, stale ones included
func (s *Service) CacheSize(ctx context.Context) (int, error) {
	return s.store.Len(ctx)
}

func (s *Service) reportCacheSize(ctx context.Context) {
	if s.observer == nil {
		return
	}
	size, err := s.CacheSize(ctx)
	if err != nil {
		s.logger.Debug("Cache size unavailable", zap.Error(err))
		return
	}
	s.observer.SetCacheEntries(size)
}

func (s *Service) observeSearch(hit bool) {
	if s.observer != nil {
		s.observer.ObserveSearch(hit)
	}
}

func (s *Service) observeAI(outcome string) {
	if s.observer != nil {
		s.observer.ObserveAI("search", outcome)
	}
}
