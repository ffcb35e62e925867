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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// clearEnv isolates a test from keys that may be exported on the host
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_PATH", "GEMINI_API_KEY", "GEMINI_MODEL", "QNET_API_KEY", "ALADIN_TTB_KEY",
		"CACHE_BACKEND", "REDIS_ADDR", "REDIS_PASSWORD", "ADMIN_TOKEN", "PORT",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_OUTPUT", "SQLITE_DB_PATH", "ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
server:
  port: 8080
  admin_token: "letmein"
gemini:
  apikey: "gemini-test-key"  # pragma: allowlist secret
  model: "gemini-1.5-pro"
  max_tokens: 4096
  temperature: 0.2
qnet:
  apikey: "qnet-test-key"
cache:
  backend: "sqlite"
  ttl_seconds: 600
  sqlite:
    path: "./test_cache.db"
autocomplete:
  catalog: ["정보처리기사", "SQLD"]
logging:
  level: "debug"
  format: "text"
  output: "stdout"
`)

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", config.Server.Port)
	}
	if config.Gemini.APIKey != "gemini-test-key" {
		t.Errorf("Expected Gemini API key 'gemini-test-key', got '%s'", config.Gemini.APIKey)
	}
	if config.Gemini.Model != "gemini-1.5-pro" {
		t.Errorf("Expected model 'gemini-1.5-pro', got '%s'", config.Gemini.Model)
	}
	if config.Cache.Backend != "sqlite" || config.Cache.TTLSeconds != 600 {
		t.Errorf("Unexpected cache config: %+v", config.Cache)
	}
	if len(config.Autocomplete.Catalog) != 2 {
		t.Errorf("Expected catalog override with 2 entries, got %d", len(config.Autocomplete.Catalog))
	}
	if !config.QNetEnabled() {
		t.Error("Expected Q-net to be enabled")
	}
	if config.AladinEnabled() {
		t.Error("Expected Aladin to be disabled without a key")
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "env-key")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config from environment only: %v", err)
	}

	if config.Server.Port != 5000 {
		t.Errorf("Expected default port 5000, got %d", config.Server.Port)
	}
	if config.Cache.Backend != "memory" {
		t.Errorf("Expected memory backend, got %s", config.Cache.Backend)
	}
	if config.Cache.TTLSeconds != 1800 {
		t.Errorf("Expected 1800s TTL, got %d", config.Cache.TTLSeconds)
	}
	if config.QNet.TimeoutSeconds != 10 || config.Aladin.TimeoutSeconds != 10 {
		t.Errorf("Expected 10s provider timeouts, got qnet=%d aladin=%d",
			config.QNet.TimeoutSeconds, config.Aladin.TimeoutSeconds)
	}
	if config.GeminiTimeout() != 60*time.Second {
		t.Errorf("Expected 60s generation timeout, got %v", config.GeminiTimeout())
	}
	if config.Autocomplete.MinQueryLength != 2 || config.Autocomplete.MaxResults != 10 {
		t.Errorf("Unexpected autocomplete defaults: %+v", config.Autocomplete)
	}
	if len(config.Autocomplete.Catalog) != len(DefaultCatalog) {
		t.Errorf("Expected default catalog, got %d entries", len(config.Autocomplete.Catalog))
	}
}

func TestEnvironmentVariableOverrides(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
gemini:
  apikey: "file-key"
logging:
  level: "info"
`)

	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("QNET_API_KEY", "env-qnet")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example,https://b.example")

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Gemini.APIKey != "env-key" {
		t.Errorf("Expected env override for Gemini key, got '%s'", config.Gemini.APIKey)
	}
	if config.QNet.APIKey != "env-qnet" {
		t.Errorf("Expected env override for Q-net key, got '%s'", config.QNet.APIKey)
	}
	if config.Logging.Level != "warn" {
		t.Errorf("Expected log level 'warn', got '%s'", config.Logging.Level)
	}
	if config.Server.Port != 9090 {
		t.Errorf("Expected port 9090, got %d", config.Server.Port)
	}
	if len(config.Server.AllowedOrigins) != 2 {
		t.Errorf("Expected 2 allowed origins, got %v", config.Server.AllowedOrigins)
	}
}

func TestMissingGeminiKeyIsFatal(t *testing.T) {
	clearEnv(t)

	_, err := Load("")
	if err == nil {
		t.Fatal("Expected error when Gemini API key is missing")
	}
	if !errors.Is(err, ErrMissingRequiredField) {
		t.Errorf("Expected ErrMissingRequiredField, got %v", err)
	}

	var fieldErr ValidationError
	if !errors.As(err, &fieldErr) || fieldErr.Field != "gemini.apikey" {
		t.Errorf("Expected validation error for gemini.apikey, got %v", err)
	}
}

func TestOptionalKeysDoNotFailValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "only-gemini")

	config, err := Load("")
	if err != nil {
		t.Fatalf("Expected optional Q-net/Aladin keys not to fail startup: %v", err)
	}
	if config.QNetEnabled() || config.AladinEnabled() {
		t.Error("Expected optional providers to be disabled")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:       ServerConfig{Port: 5000},
			Gemini:       GeminiConfig{APIKey: "k", MaxTokens: 10, Temperature: 0.5, TimeoutSeconds: 60},
			QNet:         QNetConfig{TimeoutSeconds: 10},
			Aladin:       AladinConfig{TimeoutSeconds: 10},
			Cache:        CacheConfig{Backend: "memory", TTLSeconds: 1800},
			Autocomplete: AutocompleteConfig{MinQueryLength: 2, MaxResults: 10},
			Logging:      LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		field   string
		wantErr bool
	}{
		{name: "valid", mutate: func(_ *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, field: "server.port", wantErr: true},
		{name: "bad temperature", mutate: func(c *Config) { c.Gemini.Temperature = 3 }, field: "gemini.temperature", wantErr: true},
		{name: "zero qnet timeout", mutate: func(c *Config) { c.QNet.TimeoutSeconds = 0 }, field: "qnet.timeout_seconds", wantErr: true},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.TTLSeconds = 0 }, field: "cache.ttl_seconds", wantErr: true},
		{name: "unknown backend", mutate: func(c *Config) { c.Cache.Backend = "etcd" }, field: "cache.backend", wantErr: true},
		{
			name:    "redis without addr",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			field:   "cache.redis.addr",
			wantErr: true,
		},
		{name: "bad log level", mutate: func(c *Config) { c.Logging.Level = "trace" }, field: "logging.level", wantErr: true},
		{name: "bad log output", mutate: func(c *Config) { c.Logging.Output = "syslog" }, field: "logging.output", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if !tt.wantErr {
				if err != nil {
					t.Fatalf("Expected no error, got %v", err)
				}
				return
			}

			if err == nil {
				t.Fatal("Expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("Expected error to mention %s, got %v", tt.field, err)
			}
		})
	}
}

func TestConfigPathMustExist(t *testing.T) {
	clearEnv(t)
	t.Setenv("GEMINI_API_KEY", "k")

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for missing explicit config path")
	}
}

func TestMaskSensitiveValues(t *testing.T) {
	cfg := &Config{
		Gemini: GeminiConfig{APIKey: "AIzaSyExampleKey"},
		QNet:   QNetConfig{APIKey: "abc"},
		Server: ServerConfig{AdminToken: "supersecret"},
	}

	masked := cfg.MaskSensitiveValues()

	if masked.Gemini.APIKey != "AIza************" {
		t.Errorf("Unexpected masked Gemini key: %s", masked.Gemini.APIKey)
	}
	if masked.QNet.APIKey != "***" {
		t.Errorf("Unexpected masked Q-net key: %s", masked.QNet.APIKey)
	}
	if strings.Contains(masked.Server.AdminToken, "secret") {
		t.Errorf("Admin token not masked: %s", masked.Server.AdminToken)
	}
	if cfg.Gemini.APIKey != "AIzaSyExampleKey" {
		t.Error("Original config must not be modified")
	}
}

func TestWatchConfig(t *testing.T) {
	clearEnv(t)

	configPath := writeConfig(t, `
gemini:
  apikey: "k"
logging:
  level: "info"
`)

	reloaded := make(chan *Config, 1)
	err := WatchConfig(configPath, func(c *Config) {
		select {
		case reloaded <- c:
		default:
		}
	}, nil)
	if err != nil {
		t.Fatalf("Failed to watch config: %v", err)
	}

	if err := os.WriteFile(configPath, []byte("gemini:\n  apikey: \"k\"\nlogging:\n  level: \"debug\"\n"), 0o644); err != nil {
		t.Fatalf("Failed to rewrite config: %v", err)
	}

	select {
	case c := <-reloaded:
		if c.Logging.Level != "debug" {
			t.Errorf("Expected reloaded level 'debug', got '%s'", c.Logging.Level)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Timed out waiting for config reload")
	}
}

func TestWatchConfig_NoFile(t *testing.T) {
	clearEnv(t)

	if err := WatchConfig("", func(*Config) {}, nil); err == nil {
		t.Error("Expected error when there is no config file to watch")
	}
}
