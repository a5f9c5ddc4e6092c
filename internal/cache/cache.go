// Package cache keeps translated chunks so a bill uploaded twice skips the model.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// ErrCacheMiss is returned by a Backend when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

// Backend is a byte store with per-entry TTL.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

// Key scopes a chunk to the translator and chunk size that produced it, so
// switching either never serves a stale translation.
func Key(translator string, chunkSize int, chunk string) string {
	h := sha256.New()
	h.Write([]byte(translator))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(chunkSize)))
	h.Write([]byte{0})
	h.Write([]byte(chunk))
	return "tr:" + translator + ":" + hex.EncodeToString(h.Sum(nil))
}

// Translations stores translated chunks in a Backend.
type Translations struct {
	backend Backend
	ttl     time.Duration
}

// NewTranslations wraps backend. A zero ttl keeps entries until the backend evicts them.
func NewTranslations(backend Backend, ttl time.Duration) *Translations {
	return &Translations{backend: backend, ttl: ttl}
}

// Lookup returns the cached translation of chunk. ok is false on a miss.
func (t *Translations) Lookup(ctx context.Context, translator string, chunkSize int, chunk string) (string, bool, error) {
	val, err := t.backend.Get(ctx, Key(translator, chunkSize, chunk))
	if errors.Is(err, ErrCacheMiss) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(val), true, nil
}

// Store records the translation of chunk.
func (t *Translations) Store(ctx context.Context, translator string, chunkSize int, chunk, translated string) error {
	return t.backend.Set(ctx, Key(translator, chunkSize, chunk), []byte(translated), t.ttl)
}

// Backend returns the underlying store.
func (t *Translations) Backend() Backend {
	return t.backend
}

// Close releases the backend.
func (t *Translations) Close() error {
	return t.backend.Close()
}
