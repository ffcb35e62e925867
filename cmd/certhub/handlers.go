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

package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/certhub-api/internal/aladin"
	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/domain"
	"github.com/your-org/certhub-api/internal/health"
	"github.com/your-org/certhub-api/internal/resilience"
	"github.com/your-org/certhub-api/internal/search"
	"github.com/your-org/certhub-api/internal/telemetry"
)

const (
	adminTokenHeader = "X-Admin-Token"
	maxBannerItems   = 2
)

// User-facing messages
const (
	msgQueryRequired     = "검색어를 입력해주세요."
	msgKeywordRequired   = "키워드를 입력해주세요."
	msgGenerationFailed  = "AI 응답 생성에 실패했습니다. API 키 또는 사용량 한도를 확인해주세요."
	msgBannerDisabled    = "도서 검색 API 키가 설정되지 않아 배너 기능을 사용할 수 없습니다."
	msgBannerFailed      = "도서 정보를 가져오는 데 실패했습니다."
	msgBannerUnavailable = "도서 검색 서비스가 일시적으로 응답하지 않습니다. 잠시 후 다시 시도해주세요."
	msgForbidden         = "관리자 토큰이 올바르지 않습니다."
	msgCacheClearFailed  = "캐시 초기화에 실패했습니다."
	msgCacheCleared      = "검색 캐시가 초기화되었습니다."
	msgSearchUnavailable = "검색을 처리하는 중 오류가 발생했습니다."
)

type searcher interface {
	Search(ctx context.Context, query string) ([]domain.SearchResult, error)
	ClearCache(ctx context.Context) error
}

type suggester interface {
	Suggest(ctx context.Context, query string) []string
}

type bookSearcher interface {
	SearchBooks(ctx context.Context, keyword string) ([]domain.Book, error)
}

// server holds the HTTP endpoint layer
type server struct {
	cfg          *config.Config
	search       searcher
	autocomplete suggester
	books        bookSearcher
	health       *health.Manager
	metrics      *telemetry.Metrics
	errors       *resilience.ErrorHandler
	logger       *zap.Logger
}

func newServer(cfg *config.Config, logger *zap.Logger, searchSvc searcher, ac suggester, books bookSearcher, hm *health.Manager, metrics *telemetry.Metrics) *server {
	return &server{
		cfg:          cfg,
		search:       searchSvc,
		autocomplete: ac,
		books:        books,
		health:       hm,
		metrics:      metrics,
		errors:       resilience.NewErrorHandler(logger),
		logger:       logger,
	}
}

func (s *server) routes() *gin.Engine {
	router := gin.New()
	router.Use(
		requestID(),
		gin.CustomRecovery(func(c *gin.Context, recovered any) {
			s.errors.Respond(c, "panic", fmt.Errorf("panic: %v", recovered))
		}),
		accessLog(s.logger),
		cors(s.cfg.Server.AllowedOrigins),
		s.metrics.Middleware(),
	)

	router.GET("/health", s.health.LivenessHandler())
	router.GET("/ready", s.health.ReadinessHandler())
	if s.cfg.Metrics.Enabled && s.metrics != nil {
		router.GET(s.cfg.Metrics.Path, gin.WrapH(s.metrics.Handler()))
	}

	api := router.Group("/api")
	api.GET("/search", s.handleSearch)
	api.GET("/autocomplete", s.handleAutocomplete)
	api.GET("/search/autocomplete", s.handleAutocomplete)
	api.GET("/ads/banner", s.handleBanner)
	api.POST("/clear-cache", s.handleClearCache)

	return router
}

func (s *server) handleSearch(c *gin.Context) {
	query := c.Query("q")
	if strings.TrimSpace(query) == "" {
		s.errors.Respond(c, "search", resilience.NewBadRequestError(msgQueryRequired))
		return
	}

	results, err := s.search.Search(c.Request.Context(), query)
	if err != nil {
		var serviceErr *resilience.ServiceError
		switch {
		case errors.Is(err, search.ErrGeneration):
			serviceErr = resilience.NewGenerationError(msgGenerationFailed, err)
		default:
			serviceErr = resilience.NewInternalError(msgSearchUnavailable, err)
		}
		s.errors.Respond(c, "search", serviceErr, zap.String("query", query))
		return
	}

	c.JSON(http.StatusOK, results)
}

func (s *server) handleAutocomplete(c *gin.Context) {
	c.JSON(http.StatusOK, s.autocomplete.Suggest(c.Request.Context(), c.Query("q")))
}

func (s *server) handleBanner(c *gin.Context) {
	keyword := c.Query("keyword")
	if strings.TrimSpace(keyword) == "" {
		s.errors.Respond(c, "banner", resilience.NewBadRequestError(msgKeywordRequired))
		return
	}

	books, err := s.books.SearchBooks(c.Request.Context(), keyword)
	if err != nil {
		var serviceErr *resilience.ServiceError
		switch {
		case errors.Is(err, aladin.ErrFeatureDisabled):
			serviceErr = resilience.NewFeatureDisabledError(msgBannerDisabled)
		case errors.Is(err, resilience.ErrCircuitBreakerOpen):
			serviceErr = resilience.NewServiceUnavailableError(msgBannerUnavailable, err)
		default:
			serviceErr = resilience.NewDependencyFailureError(msgBannerFailed, err)
		}
		s.errors.Respond(c, "banner", serviceErr, zap.String("keyword", keyword))
		return
	}

	if len(books) > maxBannerItems {
		books = books[:maxBannerItems]
	}
	if books == nil {
		books = []domain.Book{}
	}

	c.JSON(http.StatusOK, domain.BannerResponse{Keyword: keyword, Items: books})
}

func (s *server) handleClearCache(c *gin.Context) {
	if token := s.cfg.Server.AdminToken; token != "" {
		given := c.GetHeader(adminTokenHeader)
		if subtle.ConstantTimeCompare([]byte(given), []byte(token)) != 1 {
			s.errors.Respond(c, "clear_cache", resilience.NewForbiddenError(msgForbidden))
			return
		}
	}

	if err := s.search.ClearCache(c.Request.Context()); err != nil {
		s.errors.Respond(c, "clear_cache", resilience.NewInternalError(msgCacheClearFailed, err))
		return
	}

	s.logger.Info("Search cache cleared", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, gin.H{
		"status":    "success",
		"message":   msgCacheCleared,
		"timestamp": time.Now().Format(time.RFC3339),
	})
}
