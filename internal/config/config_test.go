package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 500, cfg.Translation.ChunkSize)
	assert.Equal(t, "chat", cfg.QA.Backend)
	assert.Equal(t, "fitz", cfg.PDF.Engine)
	assert.Equal(t, "0.0.0.0:8090", cfg.Addr())
	assert.True(t, cfg.NeedsLLM())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "port", mutate: func(c *Config) { c.Server.Port = 0 }},
		{name: "database driver", mutate: func(c *Config) { c.Database.Driver = "mysql" }},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Database.Driver = "postgres" }},
		{name: "cache driver", mutate: func(c *Config) { c.Cache.Driver = "memcached" }},
		{name: "translation backend", mutate: func(c *Config) { c.Translation.Backend = "deepl" }},
		{name: "chunk size", mutate: func(c *Config) { c.Translation.ChunkSize = 0 }},
		{name: "qa backend", mutate: func(c *Config) { c.QA.Backend = "rag" }},
		{name: "qa reader", mutate: func(c *Config) { c.QA.Reader = "bm25" }},
		{name: "window", mutate: func(c *Config) { c.Conversation.MaxWindowTurns = -1 }},
		{name: "pdf engine", mutate: func(c *Config) { c.PDF.Engine = "poppler" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_YAMLOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9999
translation:
  backend: model
  chunk_size: 300
qa:
  backend: extractive
conversation:
  max_window_turns: 12
session:
  ttl: 30m
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "model", cfg.Translation.Backend)
	assert.Equal(t, 300, cfg.Translation.ChunkSize)
	assert.Equal(t, "extractive", cfg.QA.Backend)
	assert.Equal(t, 12, cfg.Conversation.MaxWindowTurns)
	assert.Equal(t, 30*time.Minute, cfg.Session.TTL)
	assert.False(t, cfg.NeedsLLM())

	// untouched defaults survive
	assert.Equal(t, "lexical", cfg.QA.Reader)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("server: [oops"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	require.NoError(t, os.WriteFile(invalid, []byte("qa:\n  backend: rag\n"), 0o644))
	_, err = Load(invalid)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/bills?sslmode=disable")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("OPENROUTER_API_KEY", "sk-or-env")
	t.Setenv("LLM_MODEL", "anthropic/claude-3.5-sonnet")
	t.Setenv("HF_API_TOKEN", "hf-env")
	t.Setenv("QA_BACKEND", "extractive")
	t.Setenv("TRANSLATION_BACKEND", "model")
	t.Setenv("PDF_ENGINE", "rsc")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "postgres://u:p@localhost:5432/bills?sslmode=disable", cfg.DatabaseDSN())
	assert.Equal(t, "redis", cfg.Cache.Driver)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Cache.Redis.URL)
	assert.Equal(t, "sk-or-env", cfg.LLM.APIKey)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.LLM.Model)
	assert.Equal(t, "hf-env", cfg.Translation.APIToken)
	assert.Equal(t, "hf-env", cfg.QA.APIToken)
	assert.Equal(t, "extractive", cfg.QA.Backend)
	assert.Equal(t, "model", cfg.Translation.Backend)
	assert.Equal(t, "rsc", cfg.PDF.Engine)
	assert.Equal(t, "debug", cfg.Observability.LogLevel)
}

func TestLoad_SQLiteAndMemoryURLs(t *testing.T) {
	t.Setenv("DATABASE_URL", "sqlite:/var/lib/bills.db")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/var/lib/bills.db", cfg.DatabaseDSN())

	t.Setenv("DATABASE_URL", "sqlite:///var/lib/bills.db")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/bills.db", cfg.DatabaseDSN())

	t.Setenv("DATABASE_URL", "memory")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Database.Driver)
}
