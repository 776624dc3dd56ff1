package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/fluxorio/eventa/pkg/core"
)

// Config is the configuration of the eventa server and client binaries
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Client   ClientConfig   `yaml:"client" json:"client"`
	NATS     NATSConfig     `yaml:"nats" json:"nats"`
	Metrics  MetricsConfig  `yaml:"metrics" json:"metrics"`
	Tracing  TracingConfig  `yaml:"tracing" json:"tracing"`
	Log      LogConfig      `yaml:"log" json:"log"`
	Store    StoreConfig    `yaml:"store" json:"store"`
	Invoke   InvokeConfig   `yaml:"invoke" json:"invoke"`
	Executor ExecutorConfig `yaml:"executor" json:"executor"`
}

// ServerConfig configures the websocket endpoint
type ServerConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Path         string        `yaml:"path" json:"path"`
	ReadLimit    int64         `yaml:"read_limit" json:"read_limit"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	OutboxSize   int           `yaml:"outbox_size" json:"outbox_size"`
}

type ClientConfig struct {
	URL string `yaml:"url" json:"url"`
}

// NATSConfig enables relaying between server instances
type NATSConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url"`
	Subject string `yaml:"subject" json:"subject"`
	Name    string `yaml:"name" json:"name"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled" json:"enabled"`
	Exporter     string  `yaml:"exporter" json:"exporter"`
	Endpoint     string  `yaml:"endpoint" json:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate" json:"sampling_rate"`
	Environment  string  `yaml:"environment" json:"environment"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Pretty bool   `yaml:"pretty" json:"pretty"`
}

// StoreConfig configures the database behind the chat handlers
type StoreConfig struct {
	// Driver is one of sqlite3, pgx or postgres
	Driver          string        `yaml:"driver" json:"driver"`
	DSN             string        `yaml:"dsn" json:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// InvokeConfig bounds client calls. Zero means no timeout.
type InvokeConfig struct {
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// ExecutorConfig bounds the handlers running at once; requests beyond the
// bound are answered with REJECTED
type ExecutorConfig struct {
	MaxTasks int `yaml:"max_tasks" json:"max_tasks"`
}

// Default returns a configuration that runs a standalone server on :8080
// backed by a local sqlite file
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:         ":8080",
			Path:         "/ws",
			ReadLimit:    1 << 20,
			WriteTimeout: 10 * time.Second,
			OutboxSize:   256,
		},
		Client: ClientConfig{URL: "ws://localhost:8080/ws"},
		NATS: NATSConfig{
			URL:     "nats://127.0.0.1:4222",
			Subject: "eventa.events",
			Name:    "eventa",
		},
		Metrics: MetricsConfig{Enabled: true, Addr: ":9090"},
		Tracing: TracingConfig{
			Exporter:     "stdout",
			SamplingRate: 1.0,
			Environment:  "development",
		},
		Log: LogConfig{Level: "info"},
		Store: StoreConfig{
			Driver:          "sqlite3",
			DSN:             "file:eventa.db?_busy_timeout=5000",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Invoke:   InvokeConfig{Timeout: 30 * time.Second},
		Executor: ExecutorConfig{MaxTasks: 1000},
	}
}

// LoadConfig starts from Default, overlays the file at path when path is not
// empty, applies EVENTA_* environment overrides and validates the result
func LoadConfig(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := Load(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := ApplyEnvOverrides(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to apply env overrides: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func natsEnabled(c any) bool    { return c.(*Config).NATS.Enabled }
func metricsEnabled(c any) bool { return c.(*Config).Metrics.Enabled }
func tracingEnabled(c any) bool { return c.(*Config).Tracing.Enabled }

// Validate checks the configuration and reports every problem found
func (c *Config) Validate() error {
	return Validate(c,
		RequiredFields("Server.Addr", "Server.Path", "Client.URL", "Store.Driver", "Store.DSN"),
		RangeValidator("Server.OutboxSize", 1, 1<<20),
		RangeValidator("Server.ReadLimit", 1, 64<<20),
		RangeValidator("Executor.MaxTasks", 1, 1<<20),
		RangeValidator("Store.MaxOpenConns", 1, 1000),
		OneOfValidator("Store.Driver", "sqlite3", "pgx", "postgres"),
		When(natsEnabled, RequiredFields("NATS.URL", "NATS.Subject")),
		When(metricsEnabled, RequiredFields("Metrics.Addr")),
		When(tracingEnabled, OneOfValidator("Tracing.Exporter", "stdout", "zipkin", "otlphttp")),
		RangeValidator("Tracing.SamplingRate", 0, 1),
		ValidatorFunc(func(any) error {
			if c.Server.Path != "" && !strings.HasPrefix(c.Server.Path, "/") {
				return &FieldError{Field: "Server.Path", Problem: fmt.Sprintf("%q must start with /", c.Server.Path)}
			}
			return nil
		}),
		When(tracingEnabled, ValidatorFunc(func(any) error {
			if c.Tracing.Exporter != "stdout" && c.Tracing.Endpoint == "" {
				return &FieldError{Field: "Tracing.Endpoint", Problem: "exporter " + c.Tracing.Exporter + " needs an endpoint"}
			}
			return nil
		})),
		ValidatorFunc(func(any) error {
			if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
				return &FieldError{Field: "Log.Level", Problem: "invalid log level: " + err.Error()}
			}
			return nil
		}),
		ValidatorFunc(func(any) error {
			if c.Invoke.Timeout == 0 {
				return nil
			}
			if err := core.ValidateTimeout(c.Invoke.Timeout); err != nil {
				return &FieldError{Field: "Invoke.Timeout", Problem: "invalid invoke timeout: " + err.Error()}
			}
			return nil
		}),
	)
}
