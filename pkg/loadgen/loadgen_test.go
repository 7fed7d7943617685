package loadgen

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/filetransfer/internal/logger"
	"github.com/marmos91/filetransfer/pkg/client"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/marmos91/filetransfer/pkg/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.SetLevel("ERROR")
	os.Exit(m.Run())
}

func startServer(t *testing.T, capacity int) (string, *memory.Backend) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	backend := memory.New()
	srv, err := server.New(server.Config{Capacity: capacity}, backend, server.WithListener(ln))
	require.NoError(t, err)

	go func() { _ = srv.Serve(context.Background()) }()

	select {
	case <-srv.Ready():
	case <-time.After(5 * time.Second):
		t.Fatal("server did not become ready")
	}

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
	})

	return ln.Addr().String(), backend
}

func smallVolumes() []Volume {
	return []Volume{
		{Name: "small.bin", Size: 4 << 10},
		{Name: "medium.bin", Size: 256 << 10},
	}
}

func TestGenerateFiles(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "volumes")
	volumes := smallVolumes()

	require.NoError(t, GenerateFiles(dir, volumes))

	for _, v := range volumes {
		info, err := os.Stat(filepath.Join(dir, v.Name))
		require.NoError(t, err)
		assert.Equal(t, v.Size, info.Size())
	}

	// Files with the expected size are left untouched.
	path := filepath.Join(dir, volumes[0].Name)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, GenerateFiles(dir, volumes))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	// A truncated file is regenerated.
	require.NoError(t, os.Truncate(path, 10))
	require.NoError(t, GenerateFiles(dir, volumes))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, volumes[0].Size, info.Size())
}

func TestMegabyteVolume(t *testing.T) {
	v := MegabyteVolume(50)
	assert.Equal(t, "50MB.bin", v.Name)
	assert.Equal(t, int64(50<<20), v.Size)
}

func TestRunnerMatrix(t *testing.T) {
	addr, backend := startServer(t, 3)

	runner, err := NewRunner(Config{
		Client:         client.Config{Addr: addr},
		Dir:            t.TempDir(),
		Volumes:        smallVolumes(),
		ClientCounts:   []int{1, 4},
		ServerPoolSize: 3,
		Cleanup:        true,
	})
	require.NoError(t, err)

	results, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 2*2*2)
	require.NoError(t, Failures(results))

	// download scenarios come first, as in the default matrix
	assert.Equal(t, OperationDownload, results[0].Operation)
	assert.Equal(t, OperationUpload, results[len(results)-1].Operation)

	for _, r := range results {
		assert.Equal(t, r.Clients, r.ClientSuccess, "%s %s", r.Operation, r.Volume)
		assert.Zero(t, r.ClientFail)
		assert.Equal(t, r.ClientSuccess, r.ServerSuccess)
		assert.Equal(t, 3, r.ServerPoolSize)
		assert.Positive(t, r.AvgThroughput)
		assert.Positive(t, r.AvgClientTime)
	}

	names, err := backend.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names, "cleanup removes uploaded volumes")
}

func TestRunScenarioCountsFailures(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	dir := t.TempDir()
	volume := Volume{Name: "tiny.bin", Size: 128}
	require.NoError(t, GenerateFiles(dir, []Volume{volume}))

	runner, err := NewRunner(Config{
		Client: client.Config{Addr: addr, DialTimeout: time.Second},
		Dir:    dir,
	})
	require.NoError(t, err)

	res, err := runner.RunScenario(context.Background(), OperationUpload, volume, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.ClientFail)
	assert.Zero(t, res.ClientSuccess)
	assert.Zero(t, res.AvgThroughput)
	assert.Error(t, Failures([]Result{res}))
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(Config{Operations: []string{"rename"}})
	assert.ErrorContains(t, err, "unknown operation")

	_, err = NewRunner(Config{ClientCounts: []int{0}})
	assert.ErrorContains(t, err, "client count must be positive")
}

func TestAppendResultsContinuesNumbering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")

	results := []Result{
		{Operation: OperationUpload, Volume: "10MB.bin", Clients: 5, ServerPoolSize: 2,
			AvgClientTime: 1500 * time.Millisecond, AvgThroughput: 1234.567, ClientSuccess: 4, ClientFail: 1,
			ServerSuccess: 4, ServerFail: 1},
		{Operation: OperationDownload, Volume: "50MB.bin", Clients: 1, ServerPoolSize: 2,
			AvgClientTime: 250 * time.Millisecond, AvgThroughput: 10, ClientSuccess: 1, ServerSuccess: 1},
	}

	first, last, err := AppendResults(path, results)
	require.NoError(t, err)
	assert.Equal(t, 1, first)
	assert.Equal(t, 2, last)

	first, last, err = AppendResults(path, results[:1])
	require.NoError(t, err)
	assert.Equal(t, 3, first)
	assert.Equal(t, 3, last)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, strings.Join(reportHeader, ","), lines[0])
	assert.Equal(t, "1,upload,10MB.bin,5,2,1.50,1234.57,4,1,4,1", lines[1])
	assert.Equal(t, "2,download,50MB.bin,1,2,0.25,10.00,1,0,1,0", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "3,upload,"))
}

func TestAppendResultsUnparsableRowRestarts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(reportHeader, ",")+"\nx,upload\n"), 0644))

	first, _, err := AppendResults(path, []Result{{Operation: OperationUpload, Volume: "v"}})
	require.NoError(t, err)
	assert.Equal(t, 1, first)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(content), "no,operation"), "header written once")
}

func TestAppendResultsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	first, last, err := AppendResults(path, nil)
	require.NoError(t, err)
	assert.Zero(t, first)
	assert.Zero(t, last)
	assert.NoFileExists(t, path)
}
