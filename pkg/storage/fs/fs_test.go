package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/filetransfer/pkg/storage"
	storagetesting "github.com/marmos91/filetransfer/pkg/storage/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendSuite(t *testing.T) {
	suite := &storagetesting.BackendTestSuite{
		NewBackend: func(t *testing.T) storage.Backend {
			b, err := New(context.Background(), t.TempDir())
			require.NoError(t, err)
			return b
		},
	}
	suite.Run(t)
}

func TestNewCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "files")

	b, err := New(context.Background(), root)
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.True(t, filepath.IsAbs(b.Root()))
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(context.Background(), "")
	assert.Error(t, err)
}

func TestListSkipsDirectoriesAndTempFiles(t *testing.T) {
	root := t.TempDir()
	b, err := New(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, os.Mkdir(filepath.Join(root, "subdir"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, storage.TempPrefix+"abc"), []byte("partial"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "noext"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0644))

	names, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "noext"}, names)
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	root := t.TempDir()
	b, err := New(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, b.Write(context.Background(), "a.bin", []byte("content")))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.bin", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(root, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestReadDirectoryIsNotFound(t *testing.T) {
	root := t.TempDir()
	b, err := New(context.Background(), root)
	require.NoError(t, err)
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir"), 0755))

	_, err = b.Read(context.Background(), "dir")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, b.Remove(context.Background(), "dir"), storage.ErrNotFound)
}

func TestSharedRootBetweenInstances(t *testing.T) {
	root := t.TempDir()
	first, err := New(context.Background(), root)
	require.NoError(t, err)
	second, err := New(context.Background(), root)
	require.NoError(t, err)

	require.NoError(t, first.Write(context.Background(), "shared.txt", []byte("hi")))

	data, err := second.Read(context.Background(), "shared.txt")
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}
