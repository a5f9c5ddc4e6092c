// Package assistant is the public entry point for the hospital-bill assistant.
// It wires configuration into the extractor, translator, QA backend, session
// store and HTTP surfaces.
package assistant

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/spherical/bill-assistant/internal/api"
	"github.com/spherical/bill-assistant/internal/cache"
	"github.com/spherical/bill-assistant/internal/config"
	"github.com/spherical/bill-assistant/internal/domain"
	"github.com/spherical/bill-assistant/internal/llm"
	"github.com/spherical/bill-assistant/internal/observability"
	"github.com/spherical/bill-assistant/internal/pdf"
	"github.com/spherical/bill-assistant/internal/pipeline"
	"github.com/spherical/bill-assistant/internal/qa"
	"github.com/spherical/bill-assistant/internal/session"
	"github.com/spherical/bill-assistant/internal/storage"
	"github.com/spherical/bill-assistant/internal/translate"
)

// Re-export domain types for the public API
type (
	StreamEvent       = domain.StreamEvent
	EventType         = domain.EventType
	Turn              = domain.Turn
	Answer            = domain.Answer
	DocumentContext   = domain.DocumentContext
	ExtractedDocument = domain.ExtractedDocument
	ProcessingStats   = domain.ProcessingStats
	Config            = config.Config
)

// Event type constants
const (
	EventStart            = domain.EventStart
	EventChunkTranslating = domain.EventChunkTranslating
	EventChunkComplete    = domain.EventChunkComplete
	EventError            = domain.EventError
	EventComplete         = domain.EventComplete
)

// Client is the main entry point for the bill assistant library
type Client struct {
	cfg      *config.Config
	logger   *observability.Logger
	pipeline *pipeline.Service
	sessions *session.Manager
	store    *storage.Store
	cache    *cache.Translations
	pdf      *pdf.Validator
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	logger     *observability.Logger
	chat       domain.ChatCompleter
	translator domain.Translator
	extractor  domain.Extractor
}

// WithLogger sets the logger instead of building one from config.
func WithLogger(logger *observability.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithChatCompleter replaces the chat-completion client used for questions and LLM translation.
func WithChatCompleter(chat domain.ChatCompleter) Option {
	return func(o *options) { o.chat = chat }
}

// WithTranslator replaces the configured chunk translator.
func WithTranslator(t domain.Translator) Option {
	return func(o *options) { o.translator = t }
}

// WithExtractor replaces the configured PDF extractor.
func WithExtractor(e domain.Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// NewClient creates a client from .env, the optional YAML file at
// CONFIG_PATH and environment overrides.
func NewClient(opts ...Option) (*Client, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, domain.ConfigError("failed to load configuration", err)
	}
	return NewClientWithConfig(cfg, opts...)
}

// NewClientWithConfig creates a client with custom configuration
func NewClientWithConfig(cfg *config.Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, domain.ConfigError("invalid configuration", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{
			Level:       cfg.Observability.LogLevel,
			Format:      cfg.Observability.LogFormat,
			ServiceName: cfg.Observability.ServiceName,
		})
	}

	needsChat := cfg.QA.Backend == qa.BackendChat || (cfg.Translation.Backend == "llm" && o.translator == nil)
	if needsChat && o.chat == nil && cfg.LLM.APIKey == "" {
		return nil, domain.ConfigError("OPENROUTER_API_KEY not set", nil)
	}

	retry := &llm.RetryConfig{
		MaxRetries:     cfg.LLM.MaxRetries,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
	}

	extractor := o.extractor
	if extractor == nil {
		var err error
		extractor, err = pdf.New(cfg.PDF.Engine, cfg.PDF.MaxSize)
		if err != nil {
			return nil, err
		}
	}

	c := &Client{
		cfg:    cfg,
		logger: logger,
		pdf:    pdf.NewValidator(cfg.PDF.MaxSize),
	}

	var err error
	c.cache, err = newCache(cfg.Cache)
	if err != nil {
		return nil, err
	}

	translator := o.translator
	if translator == nil {
		translator = newTranslator(cfg, o.chat, retry)
	}
	translation := translate.NewService(translator,
		translate.WithChunkSize(cfg.Translation.ChunkSize),
		translate.WithCache(c.cache),
		translate.WithLogger(logger),
	)

	chat := o.chat
	if chat == nil && cfg.QA.Backend == qa.BackendChat {
		chat = llm.NewClient(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
			Referer:     cfg.LLM.Referer,
			Title:       cfg.LLM.Title,
			Retry:       retry,
		})
	}
	backend, err := qa.New(qa.Config{
		Backend:       cfg.QA.Backend,
		Reader:        cfg.QA.Reader,
		TopK:          cfg.QA.TopK,
		ReaderBaseURL: cfg.QA.BaseURL,
		ReaderModel:   cfg.QA.Model,
		APIToken:      cfg.QA.APIToken,
		Timeout:       cfg.QA.Timeout,
		Retry:         retry,
	}, chat)
	if err != nil {
		c.closeCache()
		return nil, err
	}

	if cfg.Database.Driver != "memory" {
		c.store, err = storage.Open(context.Background(), cfg.Database.Driver, cfg.DatabaseDSN(), storageOptions(cfg.Database))
		if err != nil {
			c.closeCache()
			return nil, domain.IOError("failed to open session store", err)
		}
	}

	c.sessions = session.NewManager(backend, session.Options{
		SystemInstruction: cfg.Conversation.SystemInstruction,
		MaxWindowTurns:    cfg.Conversation.MaxWindowTurns,
		TTL:               cfg.Session.TTL,
		SweepInterval:     cfg.Session.SweepInterval,
		Store:             c.store,
		Logger:            logger,
	})
	c.pipeline = pipeline.NewService(extractor, translation, c.sessions, logger)

	logger.Info().
		Str("pdf_engine", cfg.PDF.Engine).
		Str("translator", translator.Name()).
		Str("qa_backend", cfg.QA.Backend).
		Str("database", cfg.Database.Driver).
		Str("cache", cfg.Cache.Driver).
		Msg("Bill assistant initialized")
	return c, nil
}

func newTranslator(cfg *config.Config, chat domain.ChatCompleter, retry *llm.RetryConfig) domain.Translator {
	if cfg.Translation.Backend == "model" {
		return translate.NewModelTranslator(translate.ModelConfig{
			BaseURL:  cfg.Translation.BaseURL,
			Model:    cfg.Translation.Model,
			APIToken: cfg.Translation.APIToken,
			Timeout:  cfg.Translation.Timeout,
			Retry:    retry,
		})
	}

	model := cfg.LLM.Model
	if chat == nil {
		client := llm.NewClient(llm.Config{
			APIKey:      cfg.LLM.APIKey,
			Model:       cfg.LLM.Model,
			BaseURL:     cfg.LLM.BaseURL,
			Temperature: cfg.Translation.Temperature,
			Timeout:     cfg.LLM.Timeout,
			Referer:     cfg.LLM.Referer,
			Title:       cfg.LLM.Title,
			Retry:       retry,
		})
		chat, model = client, client.Model()
	}
	return translate.NewLLMTranslator(chat, model)
}

func newCache(cfg config.CacheConfig) (*cache.Translations, error) {
	var backend cache.Backend
	switch cfg.Driver {
	case "memory":
		backend = cache.NewMemory(cfg.MaxEntries)
	case "redis":
		rc, err := cache.NewRedis(context.Background(), cache.RedisConfig{
			URL:      cfg.Redis.URL,
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Prefix:   cfg.Redis.Prefix,
		})
		if err != nil {
			return nil, domain.ConfigError("failed to connect to redis", err)
		}
		backend = rc
	default:
		return nil, nil
	}
	return cache.NewTranslations(backend, cfg.TTL), nil
}

func storageOptions(cfg config.DatabaseConfig) storage.Options {
	if cfg.Driver == "sqlite" {
		return storage.Options{MaxOpenConns: cfg.SQLite.MaxOpenConns, JournalMode: cfg.SQLite.JournalMode}
	}
	return storage.Options{
		MaxOpenConns:    cfg.Postgres.MaxOpenConns,
		MaxIdleConns:    cfg.Postgres.MaxIdleConns,
		ConnMaxLifetime: cfg.Postgres.ConnMaxLifetime,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() *config.Config {
	return c.cfg
}

// Logger returns the client's logger.
func (c *Client) Logger() *observability.Logger {
	return c.logger
}

// Pipeline exposes the session pipeline for embedding callers.
func (c *Client) Pipeline() *pipeline.Service {
	return c.pipeline
}

// NewSession starts a conversation and returns its ID.
func (c *Client) NewSession(ctx context.Context) (string, error) {
	s, err := c.sessions.Create(ctx)
	if err != nil {
		return "", err
	}
	return s.ID, nil
}

// LoadPDF reads, validates and extracts the PDF at path into the session.
func (c *Client) LoadPDF(ctx context.Context, sessionID, path string) (ExtractedDocument, error) {
	if err := c.pdf.ValidatePDFPath(path); err != nil {
		return ExtractedDocument{}, err
	}
	data, err := c.pdf.ReadPDF(path)
	if err != nil {
		return ExtractedDocument{}, err
	}
	return c.pipeline.Upload(ctx, sessionID, path, data)
}

// ExtractFile extracts the PDF at path without creating a session.
func (c *Client) ExtractFile(ctx context.Context, path string) (ExtractedDocument, error) {
	if err := c.pdf.ValidatePDFPath(path); err != nil {
		return ExtractedDocument{}, err
	}
	data, err := c.pdf.ReadPDF(path)
	if err != nil {
		return ExtractedDocument{}, err
	}
	return c.pipeline.Extract(ctx, path, data)
}

// Translate translates the session's document and makes it the active
// context. Progress events go to eventCh when it is not nil; eventCh is not closed.
func (c *Client) Translate(ctx context.Context, sessionID string, eventCh chan<- StreamEvent) (DocumentContext, error) {
	return c.pipeline.Translate(ctx, sessionID, eventCh)
}

// TranslateText translates arbitrary text chunk by chunk.
func (c *Client) TranslateText(ctx context.Context, text string, eventCh chan<- StreamEvent) (string, ProcessingStats, error) {
	return c.pipeline.TranslateText(ctx, text, eventCh)
}

// Ask answers a question about the session's translated bill.
func (c *Client) Ask(ctx context.Context, sessionID, question string) (Answer, error) {
	return c.pipeline.Ask(ctx, sessionID, question)
}

// History returns the session transcript.
func (c *Client) History(ctx context.Context, sessionID string) ([]Turn, error) {
	return c.pipeline.History(ctx, sessionID)
}

// Reset clears the session transcript and keeps its document context.
func (c *Client) Reset(ctx context.Context, sessionID string) ([]Turn, error) {
	return c.pipeline.Reset(ctx, sessionID)
}

// Handler returns the HTTP API with readiness checks for the configured
// store and cache.
func (c *Client) Handler() http.Handler {
	checks := map[string]api.Check{}
	if c.store != nil {
		checks["storage"] = c.store.Ping
	}
	if c.cache != nil {
		if rc, ok := c.cache.Backend().(*cache.Redis); ok {
			checks["cache"] = rc.Ping
		}
	}
	return api.NewRouter(c.pipeline, api.RouterConfig{
		RequestTimeout: c.cfg.Server.RequestTimeout,
		AllowedOrigins: c.cfg.Server.AllowedOrigins,
		MaxUploadSize:  c.cfg.PDF.MaxSize,
		Checks:         checks,
	}, c.logger)
}

// Close stops the session janitor and releases the store and cache.
func (c *Client) Close() error {
	c.sessions.Close()

	var errs []error
	if c.store != nil {
		errs = append(errs, c.store.Close())
	}
	errs = append(errs, c.closeCache())
	return errors.Join(errs...)
}

func (c *Client) closeCache() error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Close()
}
