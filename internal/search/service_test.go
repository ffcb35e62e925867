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

package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/your-org/certhub-api/internal/cache"
	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/domain"
	"github.com/your-org/certhub-api/internal/qnet"
)

type stubResolver struct {
	resolution qnet.Resolution
	calls      atomic.Int32
}

func (r *stubResolver) Resolve(context.Context, string) qnet.Resolution {
	r.calls.Add(1)
	return r.resolution
}

type stubAggregator struct {
	data  domain.AggregatedData
	codes []string
}

func (a *stubAggregator) Aggregate(_ context.Context, code string) domain.AggregatedData {
	a.codes = append(a.codes, code)
	return a.data
}

type stubGenerator struct {
	mu      sync.Mutex
	reply   string
	err     error
	delay   time.Duration
	prompts []string
	calls   atomic.Int32
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls.Add(1)
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	return g.reply, g.err
}

type panickingGenerator struct{}

func (panickingGenerator) Generate(context.Context, string) (string, error) {
	panic("provider client bug")
}

type recordingObserver struct {
	mu      sync.Mutex
	hits    int
	misses  int
	ai      map[string]int
	entries []int
}

func (o *recordingObserver) ObserveSearch(hit bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if hit {
		o.hits++
	} else {
		o.misses++
	}
}

func (o *recordingObserver) ObserveAI(operation, outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ai == nil {
		o.ai = make(map[string]int)
	}
	o.ai[operation+"/"+outcome]++
}

func (o *recordingObserver) SetCacheEntries(count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, count)
}

type failingStore struct {
	cache.Store
	getErr error
	setErr error
}

func (s failingStore) Get(ctx context.Context, query string) ([]domain.SearchResult, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.Store.Get(ctx, query)
}

func (s failingStore) Set(ctx context.Context, query string, value []domain.SearchResult) error {
	if s.setErr != nil {
		return s.setErr
	}
	return s.Store.Set(ctx, query, value)
}

type fixture struct {
	clock      time.Time
	store      *cache.MemoryStore
	resolver   *stubResolver
	aggregator *stubAggregator
	generator  *stubGenerator
	observer   *recordingObserver
	service    *Service
}

func newFixture(t *testing.T) *fixture {
	f := &fixture{
		clock:      time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC),
		resolver:   &stubResolver{resolution: qnet.Resolution{Outcome: qnet.OutcomeNotFound}},
		aggregator: &stubAggregator{},
		generator:  &stubGenerator{reply: "### 개요\n\n내용"},
		observer:   &recordingObserver{},
	}
	now := func() time.Time { return f.clock }
	f.store = cache.NewMemoryStore(cache.DefaultTTL).WithClock(now)
	f.service = NewService(f.store, f.resolver, f.aggregator, f.generator, zaptest.NewLogger(t),
		WithObserver(f.observer), WithClock(now), WithTimeout(time.Second))
	return f
}

func TestSearch_EmptyQuery(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Search(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, int32(0), f.generator.calls.Load())
}

func TestSearch_CacheIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.service.Search(ctx, "바리스타")
	require.NoError(t, err)
	second, err := f.service.Search(ctx, "바리스타")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), f.generator.calls.Load())
	assert.Equal(t, 1, f.observer.hits)
	assert.Equal(t, 1, f.observer.misses)
	assert.Equal(t, 1, f.observer.ai["search/success"])
}

func TestSearch_CacheExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Search(ctx, "바리스타")
	require.NoError(t, err)

	f.clock = f.clock.Add(cache.DefaultTTL)
	_, err = f.service.Search(ctx, "바리스타")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.generator.calls.Load())

	f.clock = f.clock.Add(time.Second)
	_, err = f.service.Search(ctx, "바리스타")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.generator.calls.Load())

	size, err := f.service.CacheSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestSearch_KeyNormalization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Search(ctx, "ABC")
	require.NoError(t, err)
	_, err = f.service.Search(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.generator.calls.Load())

	// surrounding whitespace is part of the key
	_, err = f.service.Search(ctx, " abc")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.generator.calls.Load())
}

func TestSearch_ResolutionMissIsNonFatal(t *testing.T) {
	for _, outcome := range []qnet.ResolutionOutcome{qnet.OutcomeNotFound, qnet.OutcomeTransportError, qnet.OutcomeProviderError} {
		t.Run(outcome.String(), func(t *testing.T) {
			f := newFixture(t)
			f.resolver.resolution = qnet.Resolution{Outcome: outcome, Err: errors.New("x")}

			results, err := f.service.Search(context.Background(), "바리스타")
			require.NoError(t, err)

			require.Len(t, results, 1)
			assert.Equal(t, "바리스타", results[0].Name)
			assert.Empty(t, f.aggregator.codes)
			assert.Contains(t, f.generator.prompts[0], "공식 API 데이터를 찾지 못했습니다")
		})
	}
}

func TestSearch_PartialAggregationStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.resolver.resolution = qnet.Resolution{Outcome: qnet.OutcomeFound, Code: "1320"}
	f.aggregator.data = domain.AggregatedData{Fee: map[string]any{"contents": "필기 19400원"}}

	results, err := f.service.Search(context.Background(), "정보처리기사")
	require.NoError(t, err)

	assert.Len(t, results, 1)
	assert.Equal(t, []string{"1320"}, f.aggregator.codes)
	assert.Contains(t, f.generator.prompts[0], "필기 19400원")
	assert.NotContains(t, f.generator.prompts[0], `"schedule"`)
}

func TestSearch_GenerationFailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	f.generator.err = errors.New("429 quota exceeded")
	ctx := context.Background()

	_, err := f.service.Search(ctx, "바리스타")
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Equal(t, 1, f.observer.ai["search/error"])

	_, err = f.store.Get(ctx, "바리스타")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)

	f.generator.err = nil
	_, err = f.service.Search(ctx, "바리스타")
	assert.NoError(t, err)
	assert.Equal(t, int32(2), f.generator.calls.Load())
}

func TestSearch_CacheErrorsDegrade(t *testing.T) {
	f := newFixture(t)
	store := failingStore{Store: f.store, getErr: errors.New("redis down"), setErr: errors.New("redis down")}
	svc := NewService(store, f.resolver, f.aggregator, f.generator, zaptest.NewLogger(t))

	results, err := svc.Search(context.Background(), "바리스타")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_ConcurrentMissesShareOneGeneration(t *testing.T) {
	f := newFixture(t)
	f.generator.delay = 50 * time.Millisecond

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Search(context.Background(), "정보처리기사")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), f.generator.calls.Load())
}

func TestSearch_CallerCancellationDoesNotPoisonFlight(t *testing.T) {
	f := newFixture(t)
	f.generator.delay = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.service.Search(ctx, "바리스타")
	assert.ErrorIs(t, err, context.Canceled)

	results, err := f.service.Search(context.Background(), "바리스타")
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearch_ClearCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.service.Search(ctx, "바리스타")
	require.NoError(t, err)
	require.NoError(t, f.service.ClearCache(ctx))

	_, err = f.service.Search(ctx, "바리스타")
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.generator.calls.Load())
}

func TestSearch_GeneratorPanicBecomesError(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, f.resolver, f.aggregator, panickingGenerator{}, zaptest.NewLogger(t))

	_, err := svc.Search(context.Background(), "바리스타")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Contains(t, err.Error(), "provider client bug")

	_, err = f.store.Get(context.Background(), "바리스타")
	assert.ErrorIs(t, err, cache.ErrCacheMiss)
}

func TestSearch_ReportsCacheEntries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, query := range []string{"바리스타", "정보처리기사", "SQLD", "sqld"} {
		_, err := f.service.Search(ctx, query)
		require.NoError(t, err)
	}
	require.NoError(t, f.service.ClearCache(ctx))

	// "sqld" is served from the "SQLD" entry
	assert.Equal(t, []int{1, 2, 3, 0}, f.observer.entries)
}

// TestSearch_EndToEnd runs the real Q-net resolver and aggregator against a
// fake Q-net server.
func TestSearch_EndToEnd(t *testing.T) {
	bodies := map[string]string{
		"/list": `<response><header><resultCode>00</resultCode></header><body><items>
<item><jmcd>1320</jmcd><jmfldnm>정보처리기사</jmfldnm></item>
<item><jmcd>2290</jmcd><jmfldnm>정보처리산업기사</jmfldnm></item></items></body></response>`,
		"/schedule": `<response><header><resultCode>00</resultCode></header><body><items>
<item><implplannm>2025년 정기 기사 1회</implplannm></item></items></body></response>`,
		"/fee": `<response><header><resultCode>00</resultCode></header><body><items>
<item><contents>필기: 19400원</contents></item></items></body></response>`,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(bodies[r.URL.Path]))
	}))
	defer server.Close()

	logger := zaptest.NewLogger(t)
	client := qnet.NewClient(config.QNetConfig{
		APIKey:         "test-key", // pragma: allowlist secret
		BaseURL:        server.URL,
		ListPath:       "/list",
		SchedulePath:   "/schedule",
		FeePath:        "/fee",
		TimeoutSeconds: 2,
	}, logger)

	store := cache.NewMemoryStore(cache.DefaultTTL)
	generator := &stubGenerator{reply: "### 개요\n\n정보처리기사는 ...\n\n### 시험 일정 및 응시료\n\n| 회차 | 일정 |"}
	svc := NewService(store, qnet.NewResolver(client, logger), qnet.NewAggregator(client, logger), generator, logger)

	results, err := svc.Search(context.Background(), "정보처리기사")
	require.NoError(t, err)

	assert.Equal(t, []domain.SearchResult{{Name: "정보처리기사", FullContent: generator.reply}}, results)
	assert.Contains(t, generator.prompts[0], "2025년 정기 기사 1회")
	assert.Contains(t, generator.prompts[0], "필기: 19400원")

	cached, err := store.Get(context.Background(), "정보처리기사")
	require.NoError(t, err)
	assert.Equal(t, results, cached)
}
