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

// Package aladin searches books through the Aladin TTB item search API.
package aladin

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/domain"
	"github.com/your-org/certhub-api/internal/resilience"
)

// ProviderName labels Aladin in logs and metrics
const ProviderName = "aladin"

const (
	apiVersion   = "20131101"
	maxBodyBytes = 2 << 20
)

// ErrFeatureDisabled is returned when no TTB key is configured
var ErrFeatureDisabled = errors.New("aladin TTB key is not configured")

// ProviderError is an error document returned by Aladin
type ProviderError struct {
	Code    string
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("aladin reported error %s: %s", e.Code, e.Message)
}

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

// Client performs Aladin item searches
type Client struct {
	cfg        config.AladinConfig
	httpClient *http.Client
	breaker    *resilience.CircuitBreaker
	observer   Observer
	logger     *zap.Logger
}

// NewClient creates an Aladin client
func NewClient(cfg config.AladinConfig, logger *zap.Logger, opts ...Option) *Client {
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
	if c.observer != nil {
		observer := c.observer
		breakerConfig.OnStateChange = func(name string, _, to resilience.CircuitState) {
			observer.ObserveCircuitState(name, to)
		}
	}
	c.breaker = resilience.NewCircuitBreaker(breakerConfig, logger)

	return c
}

// Enabled reports whether the client has a TTB key
func (c *Client) Enabled() bool {
	return c.cfg.TTBKey != ""
}

type itemSearchResponse struct {
	XMLName      xml.Name
	Items        []itemXML `xml:"item"`
	ErrorCode    string    `xml:"errorCode"`
	ErrorMessage string    `xml:"errorMessage"`
}

type itemXML struct {
	Title string `xml:"title"`
	Link  string `xml:"link"`
	Cover string `xml:"cover"`
}

// SearchBooks returns at most MaxResults books matching keyword
func (c *Client) SearchBooks(ctx context.Context, keyword string) ([]domain.Book, error) {
	if !c.Enabled() {
		return nil, ErrFeatureDisabled
	}

	params := url.Values{
		"ttbkey":       {c.cfg.TTBKey},
		"Query":        {keyword},
		"QueryType":    {"Keyword"},
		"MaxResults":   {strconv.Itoa(c.cfg.MaxResults)},
		"start":        {"1"},
		"SearchTarget": {"Book"},
		"output":       {"xml"},
		"Version":      {apiVersion},
	}
	endpoint := c.cfg.BaseURL + "?" + params.Encode()

	var books []domain.Book
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

		books, err = decodeBooks(io.LimitReader(resp.Body, maxBodyBytes))
		return err
	})
	if err != nil {
		c.logger.Warn("Book search failed",
			zap.String("keyword", keyword),
			zap.Error(err))
		c.observe("error")
		return nil, fmt.Errorf("aladin search: %w", err)
	}

	c.observe("success")
	if c.cfg.MaxResults > 0 && len(books) > c.cfg.MaxResults {
		books = books[:c.cfg.MaxResults]
	}
	return books, nil
}

func decodeBooks(r io.Reader) ([]domain.Book, error) {
	var parsed itemSearchResponse
	if err := xml.NewDecoder(r).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("invalid xml body: %w", err)
	}

	if parsed.XMLName.Local == "error" {
		return nil, &ProviderError{Code: parsed.ErrorCode, Message: parsed.ErrorMessage}
	}

	books := make([]domain.Book, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		books = append(books, domain.Book{
			Title: strings.TrimSpace(item.Title),
			Link:  strings.TrimSpace(item.Link),
			Cover: strings.TrimSpace(item.Cover),
		})
	}
	return books, nil
}

func (c *Client) observe(outcome string) {
	if c.observer != nil {
		c.observer.ObserveProvider(ProviderName, outcome)
	}
}
