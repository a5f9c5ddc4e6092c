//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestRedis_TranslationsRoundTrip(t *testing.T) {
	ctx := context.Background()

	container, err := tcredis.Run(ctx,
		"redis:7.4-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate redis: %v", err)
		}
	})

	url, err := container.ConnectionString(ctx)
	require.NoError(t, err)

	backend, err := NewRedis(ctx, RedisConfig{URL: url, Prefix: "test:"})
	require.NoError(t, err)
	require.NoError(t, backend.Ping(ctx))

	tr := NewTranslations(backend, time.Minute)
	defer tr.Close()

	_, ok, err := tr.Lookup(ctx, "llm", 500, "Gesamtbetrag 120 EUR")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tr.Store(ctx, "llm", 500, "Gesamtbetrag 120 EUR", "总金额 120 欧元"))
	got, ok, err := tr.Lookup(ctx, "llm", 500, "Gesamtbetrag 120 EUR")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "总金额 120 欧元", got)
}

func TestNewRedis_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := NewRedis(ctx, RedisConfig{Addr: "127.0.0.1:1"})
	assert.Error(t, err)
}
