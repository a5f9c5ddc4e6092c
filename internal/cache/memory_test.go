package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_GetSet(t *testing.T) {
	m := NewMemory(10)
	ctx := context.Background()

	_, err := m.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, m.Set(ctx, "k", []byte("账单"), 0))
	val, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "账单", string(val))
}

func TestMemory_ExpiredEntryIsDropped(t *testing.T) {
	m := NewMemory(10)
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "short", []byte("v"), time.Minute))
	now = now.Add(2 * time.Minute)

	_, err := m.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrCacheMiss)
	assert.Equal(t, 0, m.Len())
}

func TestMemory_EvictsLeastRecentlyUsed(t *testing.T) {
	m := NewMemory(2)
	ctx := context.Background()

	require.NoError(t, m.Set(ctx, "a", []byte("1"), 0))
	require.NoError(t, m.Set(ctx, "b", []byte("2"), 0))
	_, err := m.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, m.Set(ctx, "c", []byte("3"), 0))
	assert.Equal(t, 2, m.Len())

	_, err = m.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrCacheMiss)
	_, err = m.Get(ctx, "a")
	assert.NoError(t, err)

	// Overwriting never evicts
	require.NoError(t, m.Set(ctx, "c", []byte("4"), 0))
	assert.Equal(t, 2, m.Len())
}

func TestKey(t *testing.T) {
	k := Key("llm", 500, "Rechnung")
	assert.Equal(t, k, Key("llm", 500, "Rechnung"))
	assert.NotEqual(t, k, Key("llm", 400, "Rechnung"))
	assert.NotEqual(t, k, Key("model", 500, "Rechnung"))
	assert.NotEqual(t, k, Key("llm", 500, "Rechnung "))
	assert.Contains(t, k, "tr:llm:")
}

func TestTranslations_LookupStore(t *testing.T) {
	tr := NewTranslations(NewMemory(10), 0)
	ctx := context.Background()

	_, ok, err := tr.Lookup(ctx, "model", 500, "Zimmer 80 EUR")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tr.Store(ctx, "model", 500, "Zimmer 80 EUR", "房间 80 欧元"))
	got, ok, err := tr.Lookup(ctx, "model", 500, "Zimmer 80 EUR")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "房间 80 欧元", got)

	_, ok, err = tr.Lookup(ctx, "llm", 500, "Zimmer 80 EUR")
	require.NoError(t, err)
	assert.False(t, ok, "another translator never sees the entry")
	assert.NoError(t, tr.Close())
}
