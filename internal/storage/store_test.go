package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "bills.db"), Options{MaxOpenConns: 1, JournalMode: "WAL"})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "dsn", Options{})
	assert.Error(t, err)
}

func TestOpen_MigrateIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
	assert.NoError(t, store.Ping(context.Background()))
	assert.Equal(t, "sqlite", store.Driver())
}

func TestSqliteDSN(t *testing.T) {
	assert.Equal(t, "/tmp/a.db?_foreign_keys=on", sqliteDSN("/tmp/a.db"))
	assert.Equal(t, "file:a.db?cache=shared&_foreign_keys=on", sqliteDSN("file:a.db?cache=shared"))
	assert.Equal(t, "/var/lib/bills.db?_foreign_keys=on", sqliteDSN("sqlite:///var/lib/bills.db"))
	assert.Equal(t, "data/bills.db?_foreign_keys=on", sqliteDSN("sqlite://data/bills.db"))
	assert.Equal(t, "/tmp/a.db?_foreign_keys=on", sqliteDSN("sqlite:/tmp/a.db"))
	assert.Equal(t, ":memory:?_foreign_keys=on", sqliteDSN(":memory:"))
}

func TestOpen_SQLiteURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bills.db")
	store, err := Open(context.Background(), "sqlite", "sqlite://"+path, Options{})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.Sessions.Create(context.Background(), &Session{}))
	_, err = os.Stat(path)
	assert.NoError(t, err, "the URL resolves to the file path")
}

func TestOpen_InMemoryKeepsOneDatabase(t *testing.T) {
	store, err := Open(context.Background(), "sqlite", ":memory:", Options{MaxOpenConns: 8})
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	session := &Session{}
	require.NoError(t, store.Sessions.Create(ctx, session))
	got, err := store.Sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
}

func TestSessionRepository(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &Session{}
	require.NoError(t, store.Sessions.Create(ctx, session))
	assert.NotEqual(t, uuid.Nil, session.ID)

	got, err := store.Sessions.GetByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	_, err = store.Sessions.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	other := &Session{}
	require.NoError(t, store.Sessions.Create(ctx, other))
	time.Sleep(2 * time.Millisecond)
	require.NoError(t, store.Sessions.Touch(ctx, session.ID))

	list, err := store.Sessions.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, session.ID, list[0].ID, "touched session sorts first")

	assert.ErrorIs(t, store.Sessions.Touch(ctx, uuid.New()), ErrNotFound)
	assert.ErrorIs(t, store.Sessions.Delete(ctx, uuid.New()), ErrNotFound)
}

func TestTurnRepository_PreservesOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &Session{}
	require.NoError(t, store.Sessions.Create(ctx, session))

	contents := []struct{ role, content string }{
		{"system", "系统指令"},
		{"user", "这是账单内容：\n账单内容示例"},
		{"user", "多少钱？"},
		{"assistant", "120 欧元"},
	}
	for i, c := range contents {
		require.NoError(t, store.Turns.Append(ctx, &TurnRecord{SessionID: session.ID, Seq: i, Role: c.role, Content: c.content}))
	}

	turns, err := store.Turns.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	for i, c := range contents {
		assert.Equal(t, i, turns[i].Seq)
		assert.Equal(t, c.role, turns[i].Role)
		assert.Equal(t, c.content, turns[i].Content)
		assert.Equal(t, session.ID, turns[i].SessionID)
	}

	// Same position twice is rejected
	assert.Error(t, store.Turns.Append(ctx, &TurnRecord{SessionID: session.ID, Seq: 1, Role: "user", Content: "dup"}))
}

func TestStore_ResetTranscript(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &Session{}
	require.NoError(t, store.Sessions.Create(ctx, session))
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Turns.Append(ctx, &TurnRecord{SessionID: session.ID, Seq: i, Role: "user", Content: "x"}))
	}

	require.NoError(t, store.ResetTranscript(ctx, &TurnRecord{SessionID: session.ID, Seq: 7, Role: "system", Content: "新指令"}))

	turns, err := store.Turns.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, 0, turns[0].Seq)
	assert.Equal(t, "新指令", turns[0].Content)
}

func TestDocumentAndContextRepositories(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &Session{}
	require.NoError(t, store.Sessions.Create(ctx, session))

	_, err := store.Documents.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Contexts.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Documents.Put(ctx, &DocumentRecord{SessionID: session.ID, Name: "a.pdf", Pages: []string{"Seite 1", "Seite 2"}, Text: "Seite 1\nSeite 2\n"}))
	require.NoError(t, store.Documents.Put(ctx, &DocumentRecord{SessionID: session.ID, Name: "b.pdf", Pages: []string{"Neu"}, Text: "Neu\n"}))

	doc, err := store.Documents.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "b.pdf", doc.Name)
	assert.Equal(t, []string{"Neu"}, doc.Pages)

	require.NoError(t, store.Contexts.Put(ctx, &ContextRecord{SessionID: session.ID, Text: "A", SourceName: "a.pdf"}))
	require.NoError(t, store.Contexts.Put(ctx, &ContextRecord{SessionID: session.ID, Text: "B", SourceName: "b.pdf"}))

	rec, err := store.Contexts.Get(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", rec.Text)
	assert.Equal(t, "b.pdf", rec.SourceName)
}

func TestSessionRepository_DeleteCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	session := &Session{}
	require.NoError(t, store.Sessions.Create(ctx, session))
	require.NoError(t, store.Turns.Append(ctx, &TurnRecord{SessionID: session.ID, Seq: 0, Role: "system", Content: "s"}))
	require.NoError(t, store.Contexts.Put(ctx, &ContextRecord{SessionID: session.ID, Text: "t", SourceName: "n"}))

	require.NoError(t, store.Sessions.Delete(ctx, session.ID))

	turns, err := store.Turns.ListBySession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, turns)
	_, err = store.Contexts.Get(ctx, session.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
