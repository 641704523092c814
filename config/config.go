package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	serr "github.com/next-trace/scg-signal-bus/contract/errors"
)

// Broker kinds.
const (
	BrokerNone     = "none"
	BrokerMemory   = "memory"
	BrokerNATS     = "nats"
	BrokerRabbitMQ = "rabbitmq"
	BrokerKafka    = "kafka"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SIGNALD_"

// Config holds runtime parameters for signald.
type Config struct {
	HTTPAddr        string `json:"http_addr" yaml:"http_addr" toml:"http_addr"`
	LogLevel        string `json:"log_level" yaml:"log_level" toml:"log_level"`
	LogFormat       string `json:"log_format" yaml:"log_format" toml:"log_format"`
	ShutdownSeconds int    `json:"shutdown_seconds" yaml:"shutdown_seconds" toml:"shutdown_seconds"`

	Store    Store    `json:"store" yaml:"store" toml:"store"`
	Pool     Pool     `json:"pool" yaml:"pool" toml:"pool"`
	Dispatch Dispatch `json:"dispatch" yaml:"dispatch" toml:"dispatch"`
	Broker   Broker   `json:"broker" yaml:"broker" toml:"broker"`
}

// Store selects the database backing entities and the change log.
type Store struct {
	Driver string `json:"driver" yaml:"driver" toml:"driver"`
	DSN    string `json:"dsn" yaml:"dsn" toml:"dsn"`
}

// Pool sizes the asynchronous worker pool.
type Pool struct {
	Workers   int `json:"workers" yaml:"workers" toml:"workers"`
	QueueSize int `json:"queue_size" yaml:"queue_size" toml:"queue_size"`
}

// Dispatch tunes handler execution.
type Dispatch struct {
	// Sync runs the shipped handlers in the emitter's stack.
	Sync bool `json:"sync" yaml:"sync" toml:"sync"`
}

// Broker selects where notifications are published.
type Broker struct {
	Kind     string   `json:"kind" yaml:"kind" toml:"kind"`
	URL      string   `json:"url" yaml:"url" toml:"url"`
	Brokers  []string `json:"brokers" yaml:"brokers" toml:"brokers"`
	Exchange string   `json:"exchange" yaml:"exchange" toml:"exchange"`
	Prefix   string   `json:"prefix" yaml:"prefix" toml:"prefix"`
	ClientID string   `json:"client_id" yaml:"client_id" toml:"client_id"`

	// Kafka only.
	SASLMechanism string `json:"sasl_mechanism" yaml:"sasl_mechanism" toml:"sasl_mechanism"`
	Username      string `json:"username" yaml:"username" toml:"username"`
	Password      string `json:"password" yaml:"password" toml:"password"`
	TLS           bool   `json:"tls" yaml:"tls" toml:"tls"`
	Acks          string `json:"acks" yaml:"acks" toml:"acks"`
	Compression   string `json:"compression" yaml:"compression" toml:"compression"`
}

// Default returns the configuration used when nothing is specified.
func Default() Config {
	return Config{
		HTTPAddr:        ":9464",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownSeconds: 10,
		Store:           Store{Driver: "sqlite3", DSN: "signald.db"},
		Pool:            Pool{Workers: 4, QueueSize: 256},
		Broker:          Broker{Kind: BrokerNone, ClientID: "signald"},
	}
}

// ShutdownTimeout returns the drain budget on shutdown.
func (c Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownSeconds) * time.Second
}

// Load reads a configuration file based on its extension over Default().
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("load config: empty path: %w", serr.ErrConfigInvalid)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, &cfg)
	case ".json":
		err = json.Unmarshal(b, &cfg)
	case ".toml":
		err = toml.Unmarshal(b, &cfg)
	default:
		return cfg, fmt.Errorf("unsupported config extension %q: %w", ext, serr.ErrConfigInvalid)
	}

	if err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, errors.Join(serr.ErrConfigInvalid, err))
	}

	return cfg, nil
}

// FromEnv applies SIGNALD_* overrides from the process environment.
func FromEnv(cfg Config) (Config, error) { return ApplyEnv(cfg, os.LookupEnv) }

// ApplyEnv applies SIGNALD_* overrides resolved by lookup.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) (Config, error) {
	str := map[string]*string{
		"HTTP_ADDR":        &cfg.HTTPAddr,
		"LOG_LEVEL":        &cfg.LogLevel,
		"LOG_FORMAT":       &cfg.LogFormat,
		"STORE_DRIVER":     &cfg.Store.Driver,
		"STORE_DSN":        &cfg.Store.DSN,
		"BROKER_KIND":      &cfg.Broker.Kind,
		"BROKER_URL":       &cfg.Broker.URL,
		"BROKER_EXCHANGE":  &cfg.Broker.Exchange,
		"BROKER_PREFIX":    &cfg.Broker.Prefix,
		"BROKER_CLIENT_ID": &cfg.Broker.ClientID,

		"BROKER_SASL_MECHANISM": &cfg.Broker.SASLMechanism,
		"BROKER_USERNAME":       &cfg.Broker.Username,
		"BROKER_PASSWORD":       &cfg.Broker.Password,
		"BROKER_ACKS":           &cfg.Broker.Acks,
		"BROKER_COMPRESSION":    &cfg.Broker.Compression,
	}

	for name, dst := range str {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"SHUTDOWN_SECONDS": &cfg.ShutdownSeconds,
		"POOL_WORKERS":     &cfg.Pool.Workers,
		"POOL_QUEUE_SIZE":  &cfg.Pool.QueueSize,
	}

	var errs []error

	for name, dst := range ints {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}

		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			continue
		}

		*dst = n
	}

	bools := map[string]*bool{
		"DISPATCH_SYNC": &cfg.Dispatch.Sync,
		"BROKER_TLS":    &cfg.Broker.TLS,
	}

	for name, dst := range bools {
		v, ok := lookup(EnvPrefix + name)
		if !ok {
			continue
		}

		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
			continue
		}

		*dst = b
	}

	if v, ok := lookup(EnvPrefix + "BROKER_BROKERS"); ok {
		cfg.Broker.Brokers = splitList(v)
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("env overrides: %w", errors.Join(append([]error{serr.ErrConfigInvalid}, errs...)...))
	}

	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error

	if c.Pool.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pool.workers must be positive, got %d", c.Pool.Workers))
	}

	if c.Pool.QueueSize < 0 {
		errs = append(errs, fmt.Errorf("pool.queue_size must not be negative, got %d", c.Pool.QueueSize))
	}

	if c.ShutdownSeconds < 0 {
		errs = append(errs, fmt.Errorf("shutdown_seconds must not be negative, got %d", c.ShutdownSeconds))
	}

	switch c.Store.Driver {
	case "sqlite3", "pgx":
	default:
		errs = append(errs, fmt.Errorf("store.driver %q not supported", c.Store.Driver))
	}

	if c.Store.DSN == "" {
		errs = append(errs, errors.New("store.dsn required"))
	}

	// sync handlers write on a second connection while the save holds the sqlite write lock
	if c.Dispatch.Sync && c.Store.Driver == "sqlite3" {
		errs = append(errs, errors.New("dispatch.sync not supported with store.driver sqlite3"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q not supported", c.LogLevel))
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log_format %q not supported", c.LogFormat))
	}

	switch c.Broker.Kind {
	case BrokerNone, BrokerMemory, "":
	case BrokerNATS, BrokerRabbitMQ:
		if c.Broker.URL == "" {
			errs = append(errs, fmt.Errorf("broker.url required for %s", c.Broker.Kind))
		}
	case BrokerKafka:
		if len(c.Broker.Brokers) == 0 {
			errs = append(errs, errors.New("broker.brokers required for kafka"))
		}

		switch strings.ToUpper(c.Broker.SASLMechanism) {
		case "":
		case "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512":
			if c.Broker.Username == "" {
				errs = append(errs, fmt.Errorf("broker.username required for sasl %s", c.Broker.SASLMechanism))
			}
		default:
			errs = append(errs, fmt.Errorf("broker.sasl_mechanism %q not supported", c.Broker.SASLMechanism))
		}

		switch strings.ToLower(c.Broker.Acks) {
		case "", "all", "leader", "none":
		default:
			errs = append(errs, fmt.Errorf("broker.acks %q not supported", c.Broker.Acks))
		}

		switch strings.ToLower(c.Broker.Compression) {
		case "", "none", "gzip", "snappy", "lz4", "zstd":
		default:
			errs = append(errs, fmt.Errorf("broker.compression %q not supported", c.Broker.Compression))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.kind %q not supported", c.Broker.Kind))
	}

	if len(errs) == 0 {
		return nil
	}

	return fmt.Errorf("invalid config: %w", errors.Join(append([]error{serr.ErrConfigInvalid}, errs...)...))
}

func splitList(v string) []string {
	var out []string

	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}
