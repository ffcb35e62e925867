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
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

var (
	// ErrMissingRequiredField is returned when a required configuration field is missing
	ErrMissingRequiredField = errors.New("missing required configuration field")
	// ErrInvalidConfigValue is returned when a configuration value is invalid
	ErrInvalidConfigValue = errors.New("invalid configuration value")
)

// Config represents the complete application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Gemini       GeminiConfig       `mapstructure:"gemini"`
	QNet         QNetConfig         `mapstructure:"qnet"`
	Aladin       AladinConfig       `mapstructure:"aladin"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Autocomplete AutocompleteConfig `mapstructure:"autocomplete"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AdminToken     string   `mapstructure:"admin_token"`
	HotReload      bool     `mapstructure:"hot_reload"`
	ShutdownSecs   int      `mapstructure:"shutdown_seconds"`
}

// GeminiConfig contains generative provider settings
type GeminiConfig struct {
	APIKey         string  `mapstructure:"apikey"`
	Endpoint       string  `mapstructure:"endpoint"`
	Model          string  `mapstructure:"model"`
	MaxTokens      int     `mapstructure:"max_tokens"`
	Temperature    float64 `mapstructure:"temperature"`
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	MaxRetries     int     `mapstructure:"max_retries"`
}

// QNetConfig contains Q-net national qualification API settings
type QNetConfig struct {
	APIKey         string `mapstructure:"apikey"`
	BaseURL        string `mapstructure:"base_url"`
	ListPath       string `mapstructure:"list_path"`
	SchedulePath   string `mapstructure:"schedule_path"`
	FeePath        string `mapstructure:"fee_path"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// AladinConfig contains book search API settings
type AladinConfig struct {
	TTBKey         string `mapstructure:"ttbkey"`
	BaseURL        string `mapstructure:"base_url"`
	MaxResults     int    `mapstructure:"max_results"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CacheConfig contains result cache settings
type CacheConfig struct {
	Backend    string       `mapstructure:"backend"`
	TTLSeconds int          `mapstructure:"ttl_seconds"`
	Redis      RedisConfig  `mapstructure:"redis"`
	SQLite     SQLiteConfig `mapstructure:"sqlite"`
}

// RedisConfig contains Redis connection settings
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// SQLiteConfig contains SQLite cache settings
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// AutocompleteConfig contains autocomplete settings
type AutocompleteConfig struct {
	MinQueryLength int      `mapstructure:"min_query_length"`
	MaxResults     int      `mapstructure:"max_results"`
	Catalog        []string `mapstructure:"catalog"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// MetricsConfig contains Prometheus settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed for field '%s': %s", e.Field, e.Message)
}

// Unwrap returns the sentinel category, ErrInvalidConfigValue unless set
func (e ValidationError) Unwrap() error {
	if e.Err == nil {
		return ErrInvalidConfigValue
	}
	return e.Err
}

// ValidationErrors collects every failed field so they are reported together
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	messages := make([]string, 0, len(e))
	for _, err := range e {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n%s", strings.Join(messages, "\n"))
}

// Unwrap exposes every field error to errors.Is and errors.As
func (e ValidationErrors) Unwrap() []error {
	out := make([]error, 0, len(e))
	for _, err := range e {
		out = append(out, err)
	}
	return out
}

// LoadOptions contains options for configuration loading
type LoadOptions struct {
	ConfigPath       string
	Environment      string
	ValidateRequired bool
}

// Load loads configuration from file and environment variables.
// Environment variables take precedence over config file values.
func Load(configPath string) (*Config, error) {
	return LoadWithOptions(LoadOptions{
		ConfigPath:       configPath,
		Environment:      getEnvironment(),
		ValidateRequired: true,
	})
}

// LoadWithOptions loads configuration with additional options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	hasFile, err := setConfigFile(v, opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to set config file: %w", err)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CERTHUB")

	if hasFile {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	setEnvironmentMappings(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if opts.ValidateRequired {
		if err := validateConfig(&config); err != nil {
			return nil, err
		}
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.admin_token", "")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.hot_reload", false)
	v.SetDefault("server.shutdown_seconds", 10)

	v.SetDefault("gemini.apikey", "")
	v.SetDefault("gemini.endpoint", "https://generativelanguage.googleapis.com/v1beta/openai/")
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.max_tokens", 8192)
	v.SetDefault("gemini.temperature", 0.4)
	v.SetDefault("gemini.timeout_seconds", 60)
	v.SetDefault("gemini.max_retries", 2)

	v.SetDefault("qnet.apikey", "")
	v.SetDefault("qnet.base_url", "http://openapi.q-net.or.kr/api/service/rest")
	v.SetDefault("qnet.list_path", "/InquiryListNationalQualifcationSVC/getList")
	v.SetDefault("qnet.schedule_path", "/InquiryTestInformationNTQSVC/getJMList")
	v.SetDefault("qnet.fee_path", "/InquiryTestInformationNTQSVC/getFeeList")
	v.SetDefault("qnet.timeout_seconds", 10)

	v.SetDefault("aladin.ttbkey", "")
	v.SetDefault("aladin.base_url", "http://www.aladin.co.kr/ttb/api/ItemSearch.aspx")
	v.SetDefault("aladin.max_results", 2)
	v.SetDefault("aladin.timeout_seconds", 10)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl_seconds", 1800)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", "certhub:search")
	v.SetDefault("cache.sqlite.path", "./search_cache.db")

	v.SetDefault("autocomplete.min_query_length", 2)
	v.SetDefault("autocomplete.max_results", 10)
	v.SetDefault("autocomplete.catalog", DefaultCatalog)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file", "./logs/certhub.log")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// setConfigFile picks the configuration file. It reports false when no file
// is present at the default locations so the service can run on env alone.
func setConfigFile(v *viper.Viper, configPath string) (bool, error) {
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return false, fmt.Errorf("config file specified by CONFIG_PATH does not exist: %s", envPath)
		}
		v.SetConfigFile(envPath)
		return true, nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return false, fmt.Errorf("config file does not exist: %s", configPath)
		}
		v.SetConfigFile(configPath)
		return true, nil
	}

	for _, path := range []string{"./configs/config.yaml", "./config.yaml"} {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			return true, nil
		}
	}

	return false, nil
}

// setEnvironmentMappings sets explicit environment variable mappings
func setEnvironmentMappings(v *viper.Viper) {
	envMappings := map[string]string{
		"GEMINI_API_KEY":  "gemini.apikey",
		"GEMINI_MODEL":    "gemini.model",
		"QNET_API_KEY":    "qnet.apikey",
		"ALADIN_TTB_KEY":  "aladin.ttbkey",
		"CACHE_BACKEND":   "cache.backend",
		"REDIS_ADDR":      "cache.redis.addr",
		"REDIS_PASSWORD":  "cache.redis.password",
		"ADMIN_TOKEN":     "server.admin_token",
		"PORT":            "server.port",
		"LOG_LEVEL":       "logging.level",
		"LOG_FORMAT":      "logging.format",
		"LOG_OUTPUT":      "logging.output",
		"SQLITE_DB_PATH":  "cache.sqlite.path",
		"ALLOWED_ORIGINS": "server.allowed_origins",
	}

	for envVar, configKey := range envMappings {
		if value := os.Getenv(envVar); value != "" {
			if configKey == "server.allowed_origins" {
				v.Set(configKey, strings.Split(value, ","))
				continue
			}
			v.Set(configKey, value)
		}
	}
}

// validateConfig validates the configuration for required fields and valid values
func validateConfig(config *Config) error {
	var errs ValidationErrors

	if config.Gemini.APIKey == "" {
		errs = append(errs, ValidationError{
			Field:   "gemini.apikey",
			Message: "Gemini API key is required. Set via config file or GEMINI_API_KEY environment variable",
			Err:     ErrMissingRequiredField,
		})
	}

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		errs = append(errs, ValidationError{
			Field:   "server.port",
			Message: "port must be between 1 and 65535",
		})
	}

	if config.Gemini.MaxTokens <= 0 {
		errs = append(errs, ValidationError{
			Field:   "gemini.max_tokens",
			Message: "max_tokens must be greater than 0",
		})
	}

	if config.Gemini.Temperature < 0 || config.Gemini.Temperature > 2 {
		errs = append(errs, ValidationError{
			Field:   "gemini.temperature",
			Message: "temperature must be between 0 and 2",
		})
	}

	for field, secs := range map[string]int{
		"gemini.timeout_seconds": config.Gemini.TimeoutSeconds,
		"qnet.timeout_seconds":   config.QNet.TimeoutSeconds,
		"aladin.timeout_seconds": config.Aladin.TimeoutSeconds,
	} {
		if secs <= 0 {
			errs = append(errs, ValidationError{
				Field:   field,
				Message: "timeout must be greater than 0",
			})
		}
	}

	if config.Cache.TTLSeconds <= 0 {
		errs = append(errs, ValidationError{
			Field:   "cache.ttl_seconds",
			Message: "ttl_seconds must be greater than 0",
		})
	}

	validBackends := []string{"memory", "redis", "sqlite"}
	if !slices.Contains(validBackends, config.Cache.Backend) {
		errs = append(errs, ValidationError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("cache backend must be one of: %s", strings.Join(validBackends, ", ")),
		})
	}

	if config.Cache.Backend == "redis" && config.Cache.Redis.Addr == "" {
		errs = append(errs, ValidationError{
			Field:   "cache.redis.addr",
			Message: "redis address is required when cache.backend is redis",
			Err:     ErrMissingRequiredField,
		})
	}

	if config.Cache.Backend == "sqlite" && config.Cache.SQLite.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "cache.sqlite.path",
			Message: "sqlite path is required when cache.backend is sqlite",
			Err:     ErrMissingRequiredField,
		})
	}

	if config.Autocomplete.MinQueryLength < 1 {
		errs = append(errs, ValidationError{
			Field:   "autocomplete.min_query_length",
			Message: "min_query_length must be at least 1",
		})
	}

	if config.Autocomplete.MaxResults <= 0 {
		errs = append(errs, ValidationError{
			Field:   "autocomplete.max_results",
			Message: "max_results must be greater than 0",
		})
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !slices.Contains(validLogLevels, config.Logging.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("log level must be one of: %s", strings.Join(validLogLevels, ", ")),
		})
	}

	validLogFormats := []string{"json", "text"}
	if !slices.Contains(validLogFormats, config.Logging.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("log format must be one of: %s", strings.Join(validLogFormats, ", ")),
		})
	}

	validLogOutputs := []string{"stdout", "stderr", "file"}
	if !slices.Contains(validLogOutputs, config.Logging.Output) {
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("log output must be one of: %s", strings.Join(validLogOutputs, ", ")),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// GeminiTimeout returns the generation call timeout
func (c *Config) GeminiTimeout() time.Duration {
	return time.Duration(c.Gemini.TimeoutSeconds) * time.Second
}

// QNetEnabled reports whether the Q-net key is configured
func (c *Config) QNetEnabled() bool {
	return c.QNet.APIKey != ""
}

// AladinEnabled reports whether the book search key is configured
func (c *Config) AladinEnabled() bool {
	return c.Aladin.TTBKey != ""
}

// MaskSensitiveValues returns a copy of the config with sensitive values masked
func (c *Config) MaskSensitiveValues() *Config {
	masked := *c

	if masked.Gemini.APIKey != "" {
		masked.Gemini.APIKey = maskValue(masked.Gemini.APIKey)
	}
	if masked.QNet.APIKey != "" {
		masked.QNet.APIKey = maskValue(masked.QNet.APIKey)
	}
	if masked.Aladin.TTBKey != "" {
		masked.Aladin.TTBKey = maskValue(masked.Aladin.TTBKey)
	}
	if masked.Cache.Redis.Password != "" {
		masked.Cache.Redis.Password = maskValue(masked.Cache.Redis.Password)
	}
	if masked.Server.AdminToken != "" {
		masked.Server.AdminToken = maskValue(masked.Server.AdminToken)
	}

	return &masked
}

// maskValue masks sensitive values, showing only the first 4 characters
func maskValue(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return value[:4] + strings.Repeat("*", len(value)-4)
}

// getEnvironment returns the current environment (development, production, etc.)
func getEnvironment() string {
	if env := os.Getenv("ENVIRONMENT"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "development"
}

// WatchConfig reloads the configuration whenever the file changes and hands
// the validated result to callback. Invalid reloads are reported to onError
// and the previous configuration stays in effect.
func WatchConfig(configPath string, callback func(*Config), onError func(error)) error {
	v := viper.New()

	hasFile, err := setConfigFile(v, configPath)
	if err != nil {
		return err
	}
	if !hasFile {
		return fmt.Errorf("%w: no config file to watch", ErrMissingRequiredField)
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
			return
		}

		config, err := LoadWithOptions(LoadOptions{
			ConfigPath:       v.ConfigFileUsed(),
			Environment:      getEnvironment(),
			ValidateRequired: true,
		})
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("failed to reload config %s: %w", e.Name, err))
			}
			return
		}

		callback(config)
	})
	v.WatchConfig()

	return nil
}
