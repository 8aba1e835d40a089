package config

import (
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "message_queue", cfg.Broker.Queue)
	assert.Equal(t, 5, cfg.Graph.MaxSteps)
	assert.True(t, cfg.Offline())
}

func TestLoad_YAML(t *testing.T) {
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")
	path := writeFile(t, "triage.yaml", `
broker:
  kind: redis
  queue: intake
  max_attempts: 5
redis:
  addr: redis:6379
  password: ${TEST_REDIS_PASSWORD}
session:
  store: redis
  ttl: 2h
llm:
  model: gpt-4o
  timeout: 30s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BrokerRedis, cfg.Broker.Kind)
	assert.Equal(t, "intake", cfg.Broker.Queue)
	assert.Equal(t, 5, cfg.Broker.MaxAttempts)
	assert.Equal(t, "s3cret", cfg.Redis.Password)
	assert.Equal(t, 2*time.Hour, cfg.Session.TTL)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	// Untouched sections keep their defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "triage.yaml", "broker:\n  queue: from-file\n")
	t.Setenv("OPENAI_API_KEY", "sk-vendor")
	t.Setenv("TRIAGE_LLM_API_KEY", "sk-triage")
	t.Setenv("TAVILY_API_KEY", "tvly-key")
	t.Setenv("TRIAGE_QUEUE", "from-env")
	t.Setenv("TRIAGE_MAX_STEPS", "7")
	t.Setenv("TRIAGE_SESSION_TTL", "15m")
	t.Setenv("TRIAGE_REPLIES", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-triage", cfg.LLM.APIKey)
	assert.Equal(t, "tvly-key", cfg.Tools.SearchAPIKey)
	assert.Equal(t, "from-env", cfg.Broker.Queue)
	assert.Equal(t, 7, cfg.Graph.MaxSteps)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
	assert.False(t, cfg.Broker.Replies)
	assert.False(t, cfg.Offline())
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("TRIAGE_MAX_STEPS", "many")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRIAGE_MAX_STEPS")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown broker", func(c *Config) { c.Broker.Kind = "kafka" }, `broker.kind "kafka"`},
		{"amqp without url", func(c *Config) { c.Broker.Kind = BrokerAMQP }, "broker.url is required"},
		{"empty queue", func(c *Config) { c.Broker.Queue = " " }, "broker.queue is required"},
		{"zero steps", func(c *Config) { c.Graph.MaxSteps = 0 }, "graph.max_steps"},
		{"unknown store", func(c *Config) { c.Session.Store = "disk" }, `session.store "disk"`},
		{"redis without addr", func(c *Config) { c.Session.Store = StoreRedis; c.Redis.Addr = "" }, "redis.addr"},
		{"short session key", func(c *Config) { c.Session.EncryptionKey = "c2hvcnQ=" }, "32 bytes"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSessionKey(t *testing.T) {
	key, err := SessionConfig{}.Key()
	require.NoError(t, err)
	assert.Nil(t, key)

	raw := bytes.Repeat([]byte{7}, 32)
	key, err = SessionConfig{EncryptionKey: base64.StdEncoding.EncodeToString(raw)}.Key()
	require.NoError(t, err)
	assert.Equal(t, raw, key)

	_, err = SessionConfig{EncryptionKey: "not base64!"}.Key()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "TRIAGE_TEST_DOTENV=loaded\n")
	t.Cleanup(func() { os.Unsetenv("TRIAGE_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), path))
	assert.Equal(t, "loaded", os.Getenv("TRIAGE_TEST_DOTENV"))
}
