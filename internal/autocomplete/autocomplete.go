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

// Package autocomplete suggests certificate names: a local catalogue filter
// first, with a generative fallback when nothing local matches.
package autocomplete

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/prompt"
)

// Generator produces text for a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Observer receives AI call outcomes
type Observer interface {
	ObserveAI(operation, outcome string)
}

type entry struct {
	name string
	key  string
}

// Service answers autocomplete queries
type Service struct {
	catalog   []entry
	generator Generator
	observer  Observer
	minLength int
	limit     int
	logger    *zap.Logger
}

// NewService builds the service over cfg.Catalog. generator may be nil, in
// which case only local matches are returned.
func NewService(cfg config.AutocompleteConfig, generator Generator, observer Observer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	catalog := make([]entry, 0, len(cfg.Catalog))
	for _, name := range cfg.Catalog {
		catalog = append(catalog, entry{name: name, key: normalize(name)})
	}

	return &Service{
		catalog:   catalog,
		generator: generator,
		observer:  observer,
		minLength: cfg.MinQueryLength,
		limit:     cfg.MaxResults,
		logger:    logger,
	}
}

// Suggest returns at most MaxResults names for query. Queries shorter than
// MinQueryLength runes return an empty list without calling any provider.
func (s *Service) Suggest(ctx context.Context, query string) []string {
	// the threshold applies to q as sent
	if utf8.RuneCountInString(query) < s.minLength {
		return []string{}
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}
	}

	local := s.filterLocal(query)
	if len(local) > 0 || s.generator == nil {
		return local
	}

	suggested, err := s.suggestAI(ctx, query)
	if err != nil {
		s.logger.Warn("AI autocomplete failed, returning local results",
			zap.String("query", query),
			zap.Error(err))
		s.observe("error")
		return local
	}
	s.observe("success")

	return s.merge(local, suggested)
}

func (s *Service) filterLocal(query string) []string {
	key := normalize(query)

	type match struct {
		name     string
		prefix   bool
		distance int
		order    int
	}
	var matches []match
	for i, e := range s.catalog {
		if !strings.Contains(e.key, key) {
			continue
		}
		matches = append(matches, match{
			name:     e.name,
			prefix:   strings.HasPrefix(e.key, key),
			distance: levenshtein.ComputeDistance(key, e.key),
			order:    i,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.prefix != b.prefix {
			return a.prefix
		}
		if a.distance != b.distance {
			return a.distance < b.distance
		}
		return a.order < b.order
	})

	results := make([]string, 0, min(len(matches), s.limit))
	for _, m := range matches {
		if len(results) == s.limit {
			break
		}
		results = append(results, m.name)
	}
	return results
}

func (s *Service) suggestAI(ctx context.Context, query string) ([]string, error) {
	text, err := s.generator.Generate(ctx, prompt.BuildAutocomplete(query, s.limit))
	if err != nil {
		return nil, err
	}
	return parseSuggestions(text), nil
}

// merge keeps local results first and drops duplicates by normalized name
func (s *Service) merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	merged := make([]string, 0, s.limit)
	for _, list := range lists {
		for _, name := range list {
			name = strings.TrimSpace(name)
			key := normalize(name)
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			if len(merged) == s.limit {
				return merged
			}
			seen[key] = struct{}{}
			merged = append(merged, name)
		}
	}
	return merged
}

func (s *Service) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObserveAI("autocomplete", outcome)
	}
}

// parseSuggestions reads a JSON string array out of text, tolerating code
// fences and surrounding prose. Without a parsable array it falls back to
// one suggestion per line.
func parseSuggestions(text string) []string {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start >= 0 && end > start {
		var names []string
		if err := json.Unmarshal([]byte(text[start:end+1]), &names); err == nil {
			return names
		}
	}

	var names []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "```") {
			continue
		}
		line = strings.TrimLeft(line, "-*0123456789.) ")
		line = strings.Trim(line, `"',`)
		if line != "" {
			names = append(names, line)
		}
	}
	return names
}

func normalize(s string) string {
	return norm.NFC.String(strings.ToLower(strings.TrimSpace(s)))
}
