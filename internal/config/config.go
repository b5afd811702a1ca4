package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API      APIConfig      `yaml:"api"`
	Sink     SinkConfig     `yaml:"sink"`
	RabbitMQ RabbitMQConfig `yaml:"rabbitmq"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	LogLevel string         `yaml:"log_level"`
}

type APIConfig struct {
	BaseURL       string        `yaml:"base_url"`
	APIKey        string        `yaml:"api_key"`
	PageSize      int           `yaml:"page_size"`
	ModifiedSince string        `yaml:"modified_since"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxPages      int           `yaml:"max_pages"`
	Retry         RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
}

// SinkConfig selects the document store by URI scheme: postgres://,
// mongodb:// or memory://.
type SinkConfig struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
}

type RabbitMQConfig struct {
	Enabled    bool   `yaml:"enabled"`
	URL        string `yaml:"url"`
	Exchange   string `yaml:"exchange"`
	RoutingKey string `yaml:"routing_key"`
	QueueName  string `yaml:"queue_name"`
}

type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

const maxRetryAttempts = 20

func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate reports settings a run cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.API.APIKey == "" {
		errs = append(errs, errors.New("api.api_key is required (set OTX_API_KEY)"))
	}
	if c.Sink.URI == "" {
		errs = append(errs, errors.New("sink.uri is required"))
	}
	if c.API.PageSize < 0 {
		errs = append(errs, errors.New("api.page_size must not be negative"))
	}
	if c.API.MaxPages < 0 {
		errs = append(errs, errors.New("api.max_pages must not be negative"))
	}
	if c.API.Retry.MaxAttempts < 1 || c.API.Retry.MaxAttempts > maxRetryAttempts {
		errs = append(errs, fmt.Errorf("api.retry.max_attempts must be between 1 and %d", maxRetryAttempts))
	}
	if c.API.Retry.InitialBackoff < 0 || c.API.Retry.MaxBackoff < 0 {
		errs = append(errs, errors.New("api.retry backoffs must not be negative"))
	}
	if c.API.Retry.MaxBackoff < c.API.Retry.InitialBackoff {
		errs = append(errs, errors.New("api.retry.max_backoff must not be less than initial_backoff"))
	}
	if c.RabbitMQ.Enabled && c.RabbitMQ.URL == "" {
		errs = append(errs, errors.New("rabbitmq.url is required when rabbitmq is enabled"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = "https://otx.alienvault.com/api/v1/pulses/subscribed"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 20 * time.Second
	}
	if c.API.Retry.MaxAttempts == 0 {
		c.API.Retry.MaxAttempts = 3
	}
	if c.API.Retry.InitialBackoff == 0 {
		c.API.Retry.InitialBackoff = 2 * time.Second
	}
	if c.API.Retry.MaxBackoff == 0 {
		c.API.Retry.MaxBackoff = 30 * time.Second
	}
	if c.Sink.Database == "" {
		c.Sink.Database = "api_testing"
	}
	if c.Sink.Collection == "" {
		c.Sink.Collection = "otx_pulses_raw"
	}
	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "pulse_etl"
	}
	if c.RabbitMQ.RoutingKey == "" {
		c.RabbitMQ.RoutingKey = "pulses"
	}
	if c.RabbitMQ.QueueName == "" {
		c.RabbitMQ.QueueName = "otx_pulses"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}
