package local

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectWritesAndOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	first, err := store.PutObject(context.Background(), "exports/task-1.json", "application/json", bytes.NewReader([]byte("v1")))
	require.NoError(t, err)
	second, err := store.PutObject(context.Background(), "exports/task-1.json", "application/json", bytes.NewReader([]byte("v2")))
	require.NoError(t, err)
	require.Equal(t, first, second)

	data, err := os.ReadFile(filepath.Join(dir, "exports", "task-1.json"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.json", "application/json", bytes.NewReader([]byte("x")))
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "  ", "application/json", bytes.NewReader([]byte("x")))
	require.Error(t, err)
}

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()

	_, err := New(Config{})
	require.Error(t, err)
}

func TestResolveReturnsFileURI(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "exports", "task-1.json"), store.Resolve("exports/task-1.json"))
}
