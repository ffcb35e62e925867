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

// Package gemini generates text with Google Gemini through its
// OpenAI-compatible chat completions endpoint.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/your-org/certhub-api/internal/config"
	"github.com/your-org/certhub-api/internal/resilience"
)

// ErrEmptyResponse is returned when the provider answers without any content
var ErrEmptyResponse = errors.New("gemini returned no content")

// Client wraps the go-openai client pointed at Gemini
type Client struct {
	client      *openai.Client
	logger      *zap.Logger
	model       string
	maxTokens   int
	temperature float32
	backoff     resilience.BackoffConfig
}

// NewClient creates a Gemini client from configuration
func NewClient(cfg config.GeminiConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.Endpoint != "" {
		// go-openai joins BaseURL and "/chat/completions" verbatim
		clientConfig.BaseURL = strings.TrimRight(cfg.Endpoint, "/")
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
	}

	backoff := resilience.DefaultBackoffConfig()
	backoff.MaxRetries = cfg.MaxRetries

	c := &Client{
		client:      openai.NewClientWithConfig(clientConfig),
		logger:      logger,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		backoff:     backoff,
	}

	logger.Info("Gemini client initialized",
		zap.String("model", cfg.Model),
		zap.String("endpoint", clientConfig.BaseURL),
		zap.Int("timeout_seconds", cfg.TimeoutSeconds),
		zap.Int("max_retries", cfg.MaxRetries))

	return c, nil
}

// Generate sends prompt as a single user message and returns the reply text.
// Rate limits and server errors are retried with exponential backoff.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	c.logger.Debug("Creating chat completion",
		zap.String("model", c.model),
		zap.Int("prompt_length", len(prompt)))

	start := time.Now()
	var content string
	err := resilience.WithExponentialBackoff(ctx, c.logger, c.backoff, func(ctx context.Context) error {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil {
			return classifyError(err)
		}
		if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
			return resilience.Permanent(ErrEmptyResponse)
		}

		content = resp.Choices[0].Message.Content
		c.logger.Debug("Chat completion successful",
			zap.String("finish_reason", string(resp.Choices[0].FinishReason)),
			zap.Int("prompt_tokens", resp.Usage.PromptTokens),
			zap.Int("completion_tokens", resp.Usage.CompletionTokens))
		return nil
	})
	if err != nil {
		c.logger.Error("Gemini generation failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		return "", fmt.Errorf("gemini generation: %w", err)
	}

	return content, nil
}

// classifyError maps provider errors onto the retry taxonomy
func classifyError(err error) error {
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	default:
		// transport failure; retried unless the context is done
		return err
	}

	switch status {
	case http.StatusTooManyRequests:
		return &resilience.RetryAfterError{Err: err, After: time.Second}
	case http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return err
	default:
		return resilience.Permanent(fmt.Errorf("gemini API error (status %d): %w", status, err))
	}
}
