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

package autocomplete

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/unicode/norm"

	"github.com/your-org/certhub-api/internal/config"
)

type stubGenerator struct {
	reply   string
	err     error
	calls   int
	prompts []string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.calls++
	g.prompts = append(g.prompts, prompt)
	return g.reply, g.err
}

type countingObserver map[string]int

func (o countingObserver) ObserveAI(operation, outcome string) { o[operation+"/"+outcome]++ }

func testConfig() config.AutocompleteConfig {
	return config.AutocompleteConfig{
		MinQueryLength: 2,
		MaxResults:     10,
		Catalog: []string{
			"산업안전기사",
			"정보보안기사",
			"정보처리산업기사",
			"정보처리기사",
			"빅데이터분석기사",
			"SQL개발자(SQLD)",
			"ADsP",
		},
	}
}

func TestSuggest_BelowThreshold(t *testing.T) {
	gen := &stubGenerator{reply: `["x"]`}
	svc := NewService(testConfig(), gen, nil, nil)

	assert.Equal(t, []string{}, svc.Suggest(context.Background(), "a"))
	assert.Equal(t, []string{}, svc.Suggest(context.Background(), "정"))
	assert.Equal(t, []string{}, svc.Suggest(context.Background(), "  "))
	assert.Equal(t, 0, gen.calls)
}

func TestSuggest_ThresholdCountsRawQuery(t *testing.T) {
	gen := &stubGenerator{reply: `["x"]`}
	svc := NewService(testConfig(), gen, nil, nil)

	assert.Equal(t, []string{"정보보안기사", "정보처리기사", "정보처리산업기사"}, svc.Suggest(context.Background(), " 정"))
	assert.Equal(t, 0, gen.calls)
}

func TestSuggest_LocalMatchSkipsAI(t *testing.T) {
	gen := &stubGenerator{reply: `["x"]`}
	svc := NewService(testConfig(), gen, nil, nil)

	got := svc.Suggest(context.Background(), "정보처리")

	assert.Equal(t, []string{"정보처리기사", "정보처리산업기사"}, got)
	assert.Equal(t, 0, gen.calls)
}

func TestSuggest_Ordering(t *testing.T) {
	svc := NewService(testConfig(), nil, nil, nil)

	assert.Equal(t, []string{"산업안전기사", "정보처리산업기사"}, svc.Suggest(context.Background(), "산업"))

	// no entry starts with 기사; ties on edit distance keep catalogue order
	got := svc.Suggest(context.Background(), "기사")
	assert.Equal(t, []string{"산업안전기사", "정보보안기사", "정보처리기사", "정보처리산업기사", "빅데이터분석기사"}, got)

	got = svc.Suggest(context.Background(), "정보")
	assert.Equal(t, []string{"정보보안기사", "정보처리기사", "정보처리산업기사"}, got)
}

func TestSuggest_CaseInsensitive(t *testing.T) {
	svc := NewService(testConfig(), nil, nil, nil)

	assert.Equal(t, []string{"SQL개발자(SQLD)"}, svc.Suggest(context.Background(), "sqld"))
	assert.Equal(t, []string{"ADsP"}, svc.Suggest(context.Background(), "adsp"))
}

func TestSuggest_NormalizesDecomposedHangul(t *testing.T) {
	svc := NewService(testConfig(), nil, nil, nil)

	decomposed := norm.NFD.String("정보처리")
	assert.NotEqual(t, "정보처리", decomposed)
	assert.Contains(t, svc.Suggest(context.Background(), decomposed), "정보처리기사")
}

func TestSuggest_AIFallbackMergesAndDedupes(t *testing.T) {
	gen := &stubGenerator{reply: "```json\n[\"바리스타 1급\", \"바리스타 2급\", \"바리스타 1급\", \"\"]\n```"}
	observer := countingObserver{}
	svc := NewService(testConfig(), gen, observer, nil)

	got := svc.Suggest(context.Background(), "바리스타")

	assert.Equal(t, []string{"바리스타 1급", "바리스타 2급"}, got)
	assert.Equal(t, 1, gen.calls)
	assert.Contains(t, gen.prompts[0], "'바리스타'")
	assert.Equal(t, 1, observer["autocomplete/success"])
}

func TestSuggest_AIResultsCapped(t *testing.T) {
	reply := "["
	for i := range 15 {
		if i > 0 {
			reply += ","
		}
		reply += fmt.Sprintf("%q", fmt.Sprintf("자격증 %d", i))
	}
	reply += "]"

	svc := NewService(testConfig(), &stubGenerator{reply: reply}, nil, nil)
	got := svc.Suggest(context.Background(), "xyz-no-local-match")

	assert.Len(t, got, 10)
	assert.Equal(t, "자격증 0", got[0])
}

func TestSuggest_AIFailureReturnsLocal(t *testing.T) {
	gen := &stubGenerator{err: errors.New("quota exceeded")}
	observer := countingObserver{}
	svc := NewService(testConfig(), gen, observer, nil)

	got := svc.Suggest(context.Background(), "xyz-no-local-match")

	assert.Equal(t, []string{}, got)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1, observer["autocomplete/error"])
}

func TestSuggest_LocalResultsCapped(t *testing.T) {
	cfg := testConfig()
	cfg.Catalog = nil
	for i := range 20 {
		cfg.Catalog = append(cfg.Catalog, fmt.Sprintf("정보 자격 %02d", i))
	}

	got := NewService(cfg, nil, nil, nil).Suggest(context.Background(), "정보")
	assert.Len(t, got, 10)
}

func TestParseSuggestions(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"plain array", `["정보처리기사", "정보보안기사"]`, []string{"정보처리기사", "정보보안기사"}},
		{"array in prose", "추천 목록입니다: [\"a\", \"b\"] 참고하세요", []string{"a", "b"}},
		{"bulleted lines", "- 정보처리기사\n- 정보보안기사\n", []string{"정보처리기사", "정보보안기사"}},
		{"numbered lines", "1. \"정보처리기사\"\n2) 정보보안기사", []string{"정보처리기사", "정보보안기사"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSuggestions(tt.text))
		})
	}
}
