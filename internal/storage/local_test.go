package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/Paradox-Developer-Foundation/PackageManager/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestLocalStore_SaveOpenStat(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	content := []byte("paradox mod archive")
	n, err := store.Save(ctx, "1-mod-1.0.zip", bytes.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), n)

	info, err := store.Stat(ctx, "1-mod-1.0.zip")
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), info.Size)

	rc, err := store.Open(ctx, "1-mod-1.0.zip")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	assert.Equal(t, []string{"1-mod-1.0.zip"}, listDir(t, store.Root()))
}

func TestLocalStore_NotExist(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Open(context.Background(), "missing.zip")
	assert.True(t, errors.Is(err, ErrNotExist))

	_, err = store.Stat(context.Background(), "missing.zip")
	assert.True(t, errors.Is(err, ErrNotExist))
}

func TestLocalStore_InvalidName(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../escape.zip", "a/b.zip", `a\b.zip`} {
		_, err := store.Save(context.Background(), name, bytes.NewReader(nil), 0)
		assert.True(t, errors.Is(err, ErrInvalidName), "name %q", name)
	}
}

type failingReader struct {
	n int
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.n > 0 {
		r.n--
		p[0] = 'x'
		return 1, nil
	}
	return 0, errors.New("connection reset")
}

func TestLocalStore_SaveFailureLeavesNoFile(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "broken.zip", &failingReader{n: 3}, -1)
	require.Error(t, err)
	assert.Empty(t, listDir(t, store.Root()))
}

func TestLocalStore_SaveCancelled(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = store.Save(ctx, "cancelled.zip", bytes.NewReader([]byte("data")), 4)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, listDir(t, store.Root()))
}

func TestLocalStore_SizeMismatch(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "short.zip", bytes.NewReader([]byte("abc")), 10)
	require.Error(t, err)
	_, statErr := os.Stat(filepath.Join(store.Root(), "short.zip"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestNew_Local(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "files")
	store, err := New(context.Background(), &config.StorageConfig{Type: "local", Path: dir})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
	assert.DirExists(t, dir)

	_, err = New(context.Background(), &config.StorageConfig{Type: "ftp"})
	assert.Error(t, err)
}
