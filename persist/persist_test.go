package persist_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslabs/nexus-go/persist"
)

type doc struct {
	Name  string   `json:"name"`
	Items []string `json:"items"`
}

func exerciseStore(t *testing.T, store persist.Store) {
	t.Helper()
	ctx := context.Background()

	var got doc
	err := store.Load(ctx, &got)
	require.ErrorIs(t, err, persist.ErrNotFound)

	require.NoError(t, store.Save(ctx, doc{Name: "first", Items: []string{"a"}}))
	require.NoError(t, store.Save(ctx, doc{Name: "second", Items: []string{"a", "b"}}))

	require.NoError(t, store.Load(ctx, &got))
	assert.Equal(t, "second", got.Name)
	assert.Equal(t, []string{"a", "b"}, got.Items)
}

func TestFileStore(t *testing.T) {
	store, err := persist.NewFileStore(filepath.Join(t.TempDir(), "nested", "doc.json"))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestSQLiteDocument(t *testing.T) {
	db, err := persist.OpenSQLite(filepath.Join(t.TempDir(), "nexus.db"))
	require.NoError(t, err)
	defer db.Close()

	exerciseStore(t, db.Document("patterns"))

	// Documents are independent rows.
	var other doc
	err = db.Document("skills").Load(context.Background(), &other)
	assert.ErrorIs(t, err, persist.ErrNotFound)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, persist.NewMemory())
}
