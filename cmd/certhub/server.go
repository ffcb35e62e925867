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
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/your-org/certhub-api/internal/aladin"
	"github.com/your-org/certhub-api/internal/autocomplete"
	"github.com/your-org/certhub-api/internal/cache"
	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/gemini"
	"github.com/your-org/certhub-api/internal/health"
	"github.com/your-org/certhub-api/internal/logging"
	"github.com/your-org/certhub-api/internal/qnet"
	"github.com/your-org/certhub-api/internal/search"
	"github.com/your-org/certhub-api/internal/telemetry"
)

const (
	serviceName = "certhub-api"

	// readinessTimeout bounds all /ready checks together
	readinessTimeout = 3 * time.Second
)

// runServer loads configuration, wires every component and serves until ctx
// is cancelled.
func runServer(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", serviceName),
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("gemini_model", cfg.Gemini.Model),
		zap.String("gemini_api_key", masked.Gemini.APIKey),
		zap.String("qnet_api_key", masked.QNet.APIKey),
		zap.String("aladin_ttb_key", masked.Aladin.TTBKey),
		zap.String("cache_backend", cfg.Cache.Backend))

	if cfg.Server.HotReload {
		err := config.WatchConfig(configPath, func(updated *config.Config) {
			level.SetLevel(logging.ParseLevel(updated.Logging.Level))
			logger.Info("Configuration reloaded", zap.String("log_level", updated.Logging.Level))
		}, func(err error) {
			logger.Warn("Configuration reload rejected", zap.Error(err))
		})
		if err != nil {
			logger.Warn("Config hot reload disabled", zap.Error(err))
		}
	}

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	srv, cleanup, err := buildServer(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownSecs)*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// buildServer constructs the provider clients and services. The returned
// cleanup closes the cache backend.
func buildServer(cfg *config.Config, logger *zap.Logger) (*server, func(), error) {
	metrics := telemetry.NewMetrics()

	store, err := cache.New(cfg.Cache, logger.Named("cache"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Warn("Failed to close cache", zap.Error(err))
		}
	}

	generator, err := gemini.NewClient(cfg.Gemini, logger.Named("gemini"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("failed to initialize gemini client: %w", err)
	}

	qnetClient := qnet.NewClient(cfg.QNet, logger.Named("qnet"), qnet.WithObserver(metrics))
	if !qnetClient.Enabled() {
		logger.Warn("Q-net API key not configured; searches run without structured data and /ready reports unhealthy")
	}

	books := aladin.NewClient(cfg.Aladin, logger.Named("aladin"), aladin.WithObserver(metrics))
	if !books.Enabled() {
		logger.Warn("Aladin TTB key not configured; /api/ads/banner is disabled")
	}

	pipelineTimeout := cfg.GeminiTimeout() + 2*time.Duration(cfg.QNet.TimeoutSeconds)*time.Second
	searchService := search.NewService(store,
		qnet.NewResolver(qnetClient, logger.Named("qnet")),
		qnet.NewAggregator(qnetClient, logger.Named("qnet")),
		generator,
		logger.Named("search"),
		search.WithObserver(metrics),
		search.WithTimeout(pipelineTimeout))

	healthManager := health.NewManager(serviceName, version, logger)
	healthManager.SetTimeout(readinessTimeout)
	healthManager.AddChecker("cache", health.PingChecker(cfg.Cache.Backend, store.Ping))
	healthManager.AddChecker("qnet", health.CredentialChecker("qnet", cfg.QNetEnabled(), true))
	healthManager.AddChecker("aladin", health.CredentialChecker("aladin", cfg.AladinEnabled(), false))

	srv := newServer(cfg, logger,
		searchService,
		autocomplete.NewService(cfg.Autocomplete, generator, metrics, logger.Named("autocomplete")),
		books,
		healthManager,
		metrics)

	return srv, cleanup, nil
}
