package storage

import (
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	rel, err := store.SaveStream("uploads/run-1.xlsx", strings.NewReader("payload"))
	require.NoError(t, err)
	assert.Equal(t, "uploads/run-1.xlsx", rel)

	f, err := store.Open(rel)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, store.Delete(rel))
	require.NoError(t, store.Delete(rel))
	_, err = store.Open(rel)
	assert.Error(t, err)
}

func TestLocalStorageRejectsEscapes(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	for _, p := range []string{"../evil.txt", "a/../../evil.txt", "/etc/passwd", ""} {
		_, err := store.Save(p, []byte("x"))
		assert.True(t, errors.Is(err, ErrOutsideBase), p)
	}
	assert.Equal(t, "", store.Path("../x"))
}

func TestLocalStorageCleanupOlderThan(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("results/old.xlsx", []byte("old"))
	require.NoError(t, err)
	_, err = store.Save("results/new.xlsx", []byte("new"))
	require.NoError(t, err)
	past := time.Now().Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(store.Path("results/old.xlsx"), past, past))

	deleted, err := store.CleanupOlderThan(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"results/old.xlsx"}, deleted)
	_, err = os.Stat(store.Path("results/new.xlsx"))
	assert.NoError(t, err)
}
