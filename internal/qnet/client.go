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

// Package qnet talks to the Korea Q-net national qualification API: it
// normalizes its XML/JSON responses, resolves qualification codes from names
// and aggregates exam schedule and fee data.
package qnet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/resilience"
)

// ProviderName labels Q-net in logs and metrics
const ProviderName = "qnet"

const maxBodyBytes = 4 << 20

// ErrNotConfigured is returned when no Q-net API key is set
var ErrNotConfigured = errors.New("qnet API key is not configured")

// Observer receives provider call outcomes
type Observer interface {
	ObserveProvider(provider, outcome string)
	ObserveCircuitState(name string, state resilience.CircuitState)
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithObserver reports call outcomes and breaker state to o
func WithObserver(o Observer) Option {
	return func(c *Client) { c.observer = o }
}

// Client performs Q-net API calls
type Client struct {
	cfg        config.QNetConfig
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	observer   Observer
	logger     *zap.Logger
}

// NewClient creates a Q-net client with an explicit timeout and a circuit
// breaker in front of the API.
func NewClient(cfg config.QNetConfig, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	breakerConfig := resilience.DefaultCircuitBreakerConfig(ProviderName)
	breakerConfig.IsFailureFunc = isTransportFailure
	if c.observer != nil {
		observer := c.observer
		breakerConfig.OnStateChange = func(name string, _, to resilience.CircuitState) {
			observer.ObserveCircuitState(name, to)
		}
	}
	c.breaker = resilience.NewCircuitBreaker(breakerConfig, logger)

	return c
}

// Enabled reports whether the client has an API key
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

// List searches the national qualification list by name
func (c *Client) List(ctx context.Context, name string) (Result, error) {
	return c.fetch(ctx, "list", c.cfg.ListPath, url.Values{"jmNm": {name}})
}

// Schedule fetches the exam schedule for a qualification code
func (c *Client) Schedule(ctx context.Context, code string) (Result, error) {
	return c.fetch(ctx, "schedule", c.cfg.SchedulePath, url.Values{"jmCd": {code}})
}

// Fee fetches the exam fees for a qualification code
func (c *Client) Fee(ctx context.Context, code string) (Result, error) {
	return c.fetch(ctx, "fee", c.cfg.FeePath, url.Values{"jmCd": {code}})
}

// fetch returns an error only for transport failures. Provider-reported
// failures come back as a KindProviderError Result.
func (c *Client) fetch(ctx context.Context, operation, path string, params url.Values) (Result, error) {
	if !c.Enabled() {
		return Result{}, ErrNotConfigured
	}

	params.Set("serviceKey", c.cfg.APIKey)
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path + "?" + params.Encode()

	var result Result
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("unexpected status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("failed to read body: %w", err)
		}

		result = Normalize(body, resp.Header.Get("Content-Type"))
		return nil
	})
	if err != nil {
		c.observe(operation, "transport_error")
		return Result{}, fmt.Errorf("qnet %s: %w", operation, err)
	}

	switch result.Kind {
	case KindProviderError, KindInvalid:
		c.logger.Warn("Q-net returned an unusable response",
			zap.String("operation", operation),
			zap.String("kind", result.Kind.String()),
			zap.Error(result.Err))
		c.observe(operation, result.Kind.String())
	default:
		c.observe(operation, "success")
	}

	return result, nil
}

func (c *Client) observe(operation, outcome string) {
	if c.observer != nil {
		c.observer.ObserveProvider(ProviderName+"_"+operation, outcome)
	}
}

func isTransportFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}
