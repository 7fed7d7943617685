package testing

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"sync"
	"testing"

	"github.com/marmos91/filetransfer/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// BackendTestSuite checks the storage.Backend contract. It is shared by every
// backend implementation so they all behave identically from the server's
// point of view.
//
// Usage:
//
//	func TestMyBackend(t *testing.T) {
//	    suite := &storagetesting.BackendTestSuite{
//	        NewBackend: func(t *testing.T) storage.Backend {
//	            return mybackend.New()
//	        },
//	    }
//	    suite.Run(t)
//	}
type BackendTestSuite struct {
	// NewBackend returns a fresh, empty backend for each subtest. The suite
	// closes it when the subtest ends.
	NewBackend func(t *testing.T) storage.Backend
}

func (suite *BackendTestSuite) Run(t *testing.T) {
	t.Run("EmptyList", suite.testEmptyList)
	t.Run("RoundTrip", suite.testRoundTrip)
	t.Run("ListReflectsWrites", suite.testListReflectsWrites)
	t.Run("Overwrite", suite.testOverwrite)
	t.Run("NotFound", suite.testNotFound)
	t.Run("InvalidNames", suite.testInvalidNames)
	t.Run("ConcurrentWrites", suite.testConcurrentWrites)
	t.Run("CancelledContext", suite.testCancelledContext)
}

func (suite *BackendTestSuite) backend(t *testing.T) storage.Backend {
	t.Helper()
	b := suite.NewBackend(t)
	require.NotNil(t, b)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func (suite *BackendTestSuite) testEmptyList(t *testing.T) {
	b := suite.backend(t)

	names, err := b.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func (suite *BackendTestSuite) testRoundTrip(t *testing.T) {
	sizes := []int{0, 1, 4096, 11 << 20}

	for _, size := range sizes {
		t.Run(fmt.Sprintf("%dB", size), func(t *testing.T) {
			if size > 1<<20 && testing.Short() {
				t.Skip("large round trip skipped in short mode")
			}

			b := suite.backend(t)
			ctx := context.Background()
			name := fmt.Sprintf("file-%d.bin", size)
			data := RandomBytes(t, size)

			mustWrite(t, b, name, data)

			got, err := b.Read(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, len(data), len(got))
			assert.True(t, bytes.Equal(data, got), "content must round-trip byte for byte")
		})
	}
}

func (suite *BackendTestSuite) testListReflectsWrites(t *testing.T) {
	b := suite.backend(t)
	ctx := context.Background()

	mustWrite(t, b, "b.txt", []byte("b"))
	mustWrite(t, b, "a.txt", []byte("a"))
	mustWrite(t, b, "c", []byte("c"))

	names, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt", "c"}, names)

	require.NoError(t, b.Remove(ctx, "b.txt"))

	names, err = b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "c"}, names)
}

func (suite *BackendTestSuite) testOverwrite(t *testing.T) {
	b := suite.backend(t)
	ctx := context.Background()

	mustWrite(t, b, "same.txt", []byte("first version, longer"))
	mustWrite(t, b, "same.txt", []byte("second"))

	got, err := b.Read(ctx, "same.txt")
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))

	names, err := b.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"same.txt"}, names)
}

func (suite *BackendTestSuite) testNotFound(t *testing.T) {
	b := suite.backend(t)
	ctx := context.Background()

	_, err := b.Read(ctx, "missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	err = b.Remove(ctx, "missing.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	mustWrite(t, b, "once.txt", []byte("x"))
	require.NoError(t, b.Remove(ctx, "once.txt"))
	assert.ErrorIs(t, b.Remove(ctx, "once.txt"), storage.ErrNotFound)

	_, err = b.Read(ctx, "once.txt")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func (suite *BackendTestSuite) testInvalidNames(t *testing.T) {
	b := suite.backend(t)
	ctx := context.Background()

	for _, name := range []string{"", "..", "dir/file", storage.TempPrefix + "x"} {
		_, err := b.Read(ctx, name)
		assert.ErrorIs(t, err, storage.ErrInvalidName, "Read(%q)", name)

		err = b.Write(ctx, name, []byte("x"))
		assert.ErrorIs(t, err, storage.ErrInvalidName, "Write(%q)", name)

		err = b.Remove(ctx, name)
		assert.ErrorIs(t, err, storage.ErrInvalidName, "Remove(%q)", name)
	}

	names, err := b.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "rejected writes must not create files")
}

func (suite *BackendTestSuite) testConcurrentWrites(t *testing.T) {
	b := suite.backend(t)
	ctx := context.Background()

	const writers = 16
	var wg sync.WaitGroup
	errs := make(chan error, writers)

	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("w-%02d.bin", i)
			errs <- b.Write(ctx, name, bytes.Repeat([]byte{byte(i)}, 1024))
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	names, err := b.List(ctx)
	require.NoError(t, err)
	assert.Len(t, names, writers)

	for i := 0; i < writers; i++ {
		got, err := b.Read(ctx, fmt.Sprintf("w-%02d.bin", i))
		require.NoError(t, err)
		assert.Equal(t, bytes.Repeat([]byte{byte(i)}, 1024), got)
	}
}

func (suite *BackendTestSuite) testCancelledContext(t *testing.T) {
	b := suite.backend(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Error(t, b.Write(ctx, "late.txt", []byte("x")))

	names, err := b.List(context.Background())
	require.NoError(t, err)
	assert.NotContains(t, names, "late.txt")
}

func mustWrite(t *testing.T, b storage.Backend, name string, data []byte) {
	t.Helper()
	require.NoError(t, b.Write(context.Background(), name, data), "Write(%q) should succeed", name)
}

// RandomBytes returns size bytes of random data.
func RandomBytes(t testing.TB, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	return data
}
