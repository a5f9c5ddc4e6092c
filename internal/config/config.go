// Package config provides unified configuration loading for the bill assistant.
// Supports YAML files, .env files, environment variables, and programmatic overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the bill assistant.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Cache         CacheConfig         `yaml:"cache"`
	LLM           LLMConfig           `yaml:"llm"`
	Translation   TranslationConfig   `yaml:"translation"`
	QA            QAConfig            `yaml:"qa"`
	Conversation  ConversationConfig  `yaml:"conversation"`
	Session       SessionConfig       `yaml:"session"`
	PDF           PDFConfig           `yaml:"pdf"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	ReadTimeout      time.Duration `yaml:"read_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	IdleTimeout      time.Duration `yaml:"idle_timeout"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	GracefulShutdown time.Duration `yaml:"graceful_shutdown"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
}

// DatabaseConfig holds session persistence settings.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"` // memory, sqlite or postgres
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite-specific settings.
type SQLiteConfig struct {
	Path         string `yaml:"path"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	JournalMode  string `yaml:"journal_mode"`
}

// PostgresConfig holds Postgres-specific settings.
type PostgresConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// CacheConfig holds translation cache settings.
type CacheConfig struct {
	Driver     string        `yaml:"driver"` // none, memory or redis
	TTL        time.Duration `yaml:"ttl"`    // 0 keeps entries until evicted
	MaxEntries int           `yaml:"max_entries"`
	Redis      RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis-specific settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
	Prefix   string `yaml:"prefix"`
}

// LLMConfig holds chat-completion API settings.
type LLMConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxRetries  int           `yaml:"max_retries"`
	Referer     string        `yaml:"referer"`
	Title       string        `yaml:"title"`
}

// TranslationConfig holds translator settings.
type TranslationConfig struct {
	Backend     string        `yaml:"backend"` // model or llm
	ChunkSize   int           `yaml:"chunk_size"`
	Temperature float64       `yaml:"temperature"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	APIToken    string        `yaml:"api_token"`
	Timeout     time.Duration `yaml:"timeout"`
}

// QAConfig holds question-answering backend settings.
type QAConfig struct {
	Backend  string        `yaml:"backend"` // chat or extractive
	Reader   string        `yaml:"reader"`  // lexical or http
	TopK     int           `yaml:"top_k"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	APIToken string        `yaml:"api_token"`
	Timeout  time.Duration `yaml:"timeout"`
}

// ConversationConfig holds transcript settings.
type ConversationConfig struct {
	SystemInstruction string `yaml:"system_instruction"`
	MaxWindowTurns    int    `yaml:"max_window_turns"` // 0 sends the whole transcript
}

// SessionConfig holds session lifecycle settings.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// PDFConfig holds extraction settings.
type PDFConfig struct {
	Engine  string `yaml:"engine"` // fitz or rsc
	MaxSize int64  `yaml:"max_size"`
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	ServiceName string `yaml:"service_name"`
}

// Load reads .env, then the YAML file at path (optional), then applies
// environment overrides and validates the result.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // a missing .env is fine

	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:             "0.0.0.0",
			Port:             8090,
			ReadTimeout:      30 * time.Second,
			WriteTimeout:     5 * time.Minute,
			IdleTimeout:      120 * time.Second,
			RequestTimeout:   5 * time.Minute,
			GracefulShutdown: 10 * time.Second,
			AllowedOrigins:   []string{"*"},
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			SQLite: SQLiteConfig{
				Path:         "/tmp/bill-assistant.db",
				MaxOpenConns: 1,
				JournalMode:  "WAL",
			},
			Postgres: PostgresConfig{
				MaxOpenConns:    25,
				MaxIdleConns:    5,
				ConnMaxLifetime: 5 * time.Minute,
			},
		},
		Cache: CacheConfig{
			Driver:     "memory",
			TTL:        24 * time.Hour,
			MaxEntries: 10000,
			Redis: RedisConfig{
				Addr:     "localhost:6379",
				PoolSize: 10,
				Prefix:   "ba:",
			},
		},
		LLM: LLMConfig{
			BaseURL:     "https://openrouter.ai/api/v1",
			Model:       "openai/gpt-4",
			Temperature: 0.5,
			Timeout:     120 * time.Second,
			MaxRetries:  3,
			Title:       "bill-assistant",
		},
		Translation: TranslationConfig{
			Backend:     "llm",
			ChunkSize:   500,
			Temperature: 0.5,
			BaseURL:     "https://api-inference.huggingface.co/models",
			Model:       "Helsinki-NLP/opus-mt-de-zh",
			Timeout:     60 * time.Second,
		},
		QA: QAConfig{
			Backend: "chat",
			Reader:  "lexical",
			TopK:    1,
			BaseURL: "https://api-inference.huggingface.co/models",
			Model:   "deepset/roberta-base-squad2",
			Timeout: 60 * time.Second,
		},
		Conversation: ConversationConfig{
			SystemInstruction: "你是一个中文助手，帮助用户理解上传的医院账单内容，用简体中文回答问题，语言要通俗易懂。",
		},
		Session: SessionConfig{
			TTL:           2 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		PDF: PDFConfig{
			Engine:  "fitz",
			MaxSize: 20 * 1024 * 1024,
		},
		Observability: ObservabilityConfig{
			LogLevel:    "info",
			LogFormat:   "json",
			ServiceName: "bill-assistant",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.Driver == "postgres" && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("postgres driver needs a dsn")
	}

	switch c.Cache.Driver {
	case "none", "memory", "redis":
	default:
		return fmt.Errorf("invalid cache driver: %s", c.Cache.Driver)
	}

	if c.Translation.Backend != "model" && c.Translation.Backend != "llm" {
		return fmt.Errorf("invalid translation backend: %s", c.Translation.Backend)
	}
	if c.Translation.ChunkSize < 1 {
		return fmt.Errorf("translation chunk_size must be positive")
	}

	if c.QA.Backend != "chat" && c.QA.Backend != "extractive" {
		return fmt.Errorf("invalid qa backend: %s", c.QA.Backend)
	}
	if c.QA.Reader != "lexical" && c.QA.Reader != "http" {
		return fmt.Errorf("invalid qa reader: %s", c.QA.Reader)
	}

	if c.Conversation.MaxWindowTurns < 0 {
		return fmt.Errorf("max_window_turns must not be negative")
	}

	if c.PDF.Engine != "fitz" && c.PDF.Engine != "rsc" {
		return fmt.Errorf("invalid pdf engine: %s", c.PDF.Engine)
	}

	return nil
}

// NeedsLLM reports whether any configured component calls the chat-completion API.
func (c *Config) NeedsLLM() bool {
	return c.QA.Backend == "chat" || c.Translation.Backend == "llm"
}

// DatabaseDSN returns the appropriate database connection string.
func (c *Config) DatabaseDSN() string {
	if c.Database.Driver == "sqlite" {
		return c.Database.SQLite.Path
	}
	return c.Database.Postgres.DSN
}

// Addr returns the host:port the HTTP server listens on.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}

	if v := os.Getenv("DATABASE_URL"); v != "" {
		switch {
		case v == "memory":
			cfg.Database.Driver = "memory"
		case strings.HasPrefix(v, "sqlite://"):
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite://")
		case strings.HasPrefix(v, "sqlite:"):
			cfg.Database.Driver = "sqlite"
			cfg.Database.SQLite.Path = strings.TrimPrefix(v, "sqlite:")
		case strings.HasPrefix(v, "postgres"):
			cfg.Database.Driver = "postgres"
			cfg.Database.Postgres.DSN = v
		}
	}

	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.Driver = "redis"
		cfg.Cache.Redis.URL = v
	}

	if v := os.Getenv("OPENROUTER_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}

	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.LLM.Model = v
	}

	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}

	if v := os.Getenv("HF_API_TOKEN"); v != "" {
		cfg.Translation.APIToken = v
		cfg.QA.APIToken = v
	}

	if v := os.Getenv("TRANSLATION_BACKEND"); v != "" {
		cfg.Translation.Backend = v
	}

	if v := os.Getenv("QA_BACKEND"); v != "" {
		cfg.QA.Backend = v
	}

	if v := os.Getenv("PDF_ENGINE"); v != "" {
		cfg.PDF.Engine = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
