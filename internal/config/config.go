// Package config loads triage settings from a YAML file, a .env file and the environment.
// Precedence, lowest first: defaults, YAML file, environment.
package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every triage environment variable.
const EnvPrefix = "TRIAGE_"

// Broker kinds.
const (
	BrokerMemory = "memory"
	BrokerRedis  = "redis"
	BrokerAMQP   = "amqp"
)

// Session store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config is the complete triage configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Broker  BrokerConfig  `yaml:"broker"`
	Redis   RedisConfig   `yaml:"redis"`
	Session SessionConfig `yaml:"session"`
	LLM     LLMConfig     `yaml:"llm"`
	Tools   ToolsConfig   `yaml:"tools"`
	Graph   GraphConfig   `yaml:"graph"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig holds the HTTP listener.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// BrokerConfig selects the queue backend and consumer policy.
type BrokerConfig struct {
	Kind        string `yaml:"kind"`
	URL         string `yaml:"url"`
	Queue       string `yaml:"queue"`
	MaxAttempts int    `yaml:"max_attempts"`
	Replies     bool   `yaml:"replies"`
	Durable     bool   `yaml:"durable"`
}

// RedisConfig is shared by the Redis broker and session store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SessionConfig holds conversation memory settings.
type SessionConfig struct {
	Store        string        `yaml:"store"`
	TTL          time.Duration `yaml:"ttl"`
	MaxEntries   int           `yaml:"max_entries"`
	HistoryLimit int           `yaml:"history_limit"`

	// EncryptionKey is a base64 AES-256 key; when set, stored conversations are encrypted.
	EncryptionKey string `yaml:"encryption_key"`
	// MaskPII masks e-mail addresses and phone numbers in stored conversations.
	MaskPII bool `yaml:"mask_pii"`
}

// Key decodes the session encryption key. It returns nil when encryption is off.
func (s SessionConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("session.encryption_key: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("session.encryption_key must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// LLMConfig configures the OpenAI-compatible responder.
type LLMConfig struct {
	APIKey  string        `yaml:"api_key"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// ToolsConfig configures node tools.
type ToolsConfig struct {
	SearchAPIKey  string `yaml:"search_api_key"`
	MaxToolRounds int    `yaml:"max_tool_rounds"`
}

// GraphConfig configures workflow runs.
type GraphConfig struct {
	MaxSteps int `yaml:"max_steps"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig toggles the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8080"},
		Broker: BrokerConfig{
			Kind:        BrokerMemory,
			Queue:       "message_queue",
			MaxAttempts: 3,
			Replies:     true,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Session: SessionConfig{
			Store:        StoreMemory,
			TTL:          24 * time.Hour,
			MaxEntries:   10000,
			HistoryLimit: 50,
		},
		LLM: LLMConfig{
			Model:   "gpt-4o-mini",
			Timeout: 60 * time.Second,
		},
		Tools:   ToolsConfig{MaxToolRounds: 3},
		Graph:   GraphConfig{MaxSteps: 5},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Metrics: MetricsConfig{Enabled: true},
	}
}

// LoadDotEnv loads variables from .env files that exist; missing files are ignored.
func LoadDotEnv(paths ...string) error {
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load builds the configuration. An empty path skips the YAML file.
// ${VAR} references inside the file are expanded from the environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

type lookupFunc func(string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	var errs []error
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	// Vendor variables first so TRIAGE_ ones win.
	str("OPENAI_API_KEY", &c.LLM.APIKey)
	str("OPENAI_BASE_URL", &c.LLM.BaseURL)
	str("TAVILY_API_KEY", &c.Tools.SearchAPIKey)

	str(EnvPrefix+"ADDR", &c.Server.Addr)
	str(EnvPrefix+"BROKER", &c.Broker.Kind)
	str(EnvPrefix+"BROKER_URL", &c.Broker.URL)
	str(EnvPrefix+"QUEUE", &c.Broker.Queue)
	num(EnvPrefix+"MAX_ATTEMPTS", &c.Broker.MaxAttempts)
	flag(EnvPrefix+"REPLIES", &c.Broker.Replies)
	flag(EnvPrefix+"DURABLE", &c.Broker.Durable)
	str(EnvPrefix+"REDIS_ADDR", &c.Redis.Addr)
	str(EnvPrefix+"REDIS_PASSWORD", &c.Redis.Password)
	num(EnvPrefix+"REDIS_DB", &c.Redis.DB)
	str(EnvPrefix+"SESSION_STORE", &c.Session.Store)
	dur(EnvPrefix+"SESSION_TTL", &c.Session.TTL)
	num(EnvPrefix+"SESSION_MAX", &c.Session.MaxEntries)
	num(EnvPrefix+"HISTORY_LIMIT", &c.Session.HistoryLimit)
	str(EnvPrefix+"SESSION_KEY", &c.Session.EncryptionKey)
	flag(EnvPrefix+"MASK_PII", &c.Session.MaskPII)
	str(EnvPrefix+"LLM_API_KEY", &c.LLM.APIKey)
	str(EnvPrefix+"LLM_BASE_URL", &c.LLM.BaseURL)
	str(EnvPrefix+"MODEL", &c.LLM.Model)
	dur(EnvPrefix+"LLM_TIMEOUT", &c.LLM.Timeout)
	str(EnvPrefix+"SEARCH_API_KEY", &c.Tools.SearchAPIKey)
	num(EnvPrefix+"MAX_TOOL_ROUNDS", &c.Tools.MaxToolRounds)
	num(EnvPrefix+"MAX_STEPS", &c.Graph.MaxSteps)
	str(EnvPrefix+"LOG_LEVEL", &c.Logging.Level)
	str(EnvPrefix+"LOG_FORMAT", &c.Logging.Format)
	flag(EnvPrefix+"METRICS", &c.Metrics.Enabled)

	return errors.Join(errs...)
}

// Validate checks that the configuration is usable and reports every problem found.
func (c *Config) Validate() error {
	var errs []error

	switch c.Broker.Kind {
	case BrokerMemory, BrokerRedis:
	case BrokerAMQP:
		if c.Broker.URL == "" {
			errs = append(errs, errors.New("broker.url is required for the amqp broker"))
		}
	default:
		errs = append(errs, fmt.Errorf("broker.kind %q is not one of memory, redis, amqp", c.Broker.Kind))
	}
	if strings.TrimSpace(c.Broker.Queue) == "" {
		errs = append(errs, errors.New("broker.queue is required"))
	}
	if c.Broker.MaxAttempts < 1 {
		errs = append(errs, errors.New("broker.max_attempts must be at least 1"))
	}

	switch c.Session.Store {
	case StoreMemory, StoreRedis:
	default:
		errs = append(errs, fmt.Errorf("session.store %q is not one of memory, redis", c.Session.Store))
	}
	if c.Session.TTL < 0 {
		errs = append(errs, errors.New("session.ttl must not be negative"))
	}
	if c.Session.MaxEntries < 0 || c.Session.HistoryLimit < 0 {
		errs = append(errs, errors.New("session limits must not be negative"))
	}
	if _, err := c.Session.Key(); err != nil {
		errs = append(errs, err)
	}
	if (c.Broker.Kind == BrokerRedis || c.Session.Store == StoreRedis) && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required when redis is used"))
	}

	if c.Graph.MaxSteps < 1 {
		errs = append(errs, errors.New("graph.max_steps must be at least 1"))
	}
	if c.Tools.MaxToolRounds < 0 {
		errs = append(errs, errors.New("tools.max_tool_rounds must not be negative"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be positive"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format %q is not one of text, json", c.Logging.Format))
	}

	return errors.Join(errs...)
}

// Offline reports whether no language model is configured.
func (c *Config) Offline() bool {
	return c.LLM.APIKey == ""
}
