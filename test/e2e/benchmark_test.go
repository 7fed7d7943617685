package e2e

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/marmos91/filetransfer/pkg/client"
	"github.com/marmos91/filetransfer/pkg/loadgen"
	"github.com/marmos91/filetransfer/pkg/server"
	"github.com/marmos91/filetransfer/pkg/storage"
	storagefs "github.com/marmos91/filetransfer/pkg/storage/fs"
	storagememory "github.com/marmos91/filetransfer/pkg/storage/memory"
)

// BenchmarkE2E measures upload and download throughput over loopback for each
// in-process storage backend.
func BenchmarkE2E(b *testing.B) {
	storageTypes := []StorageType{StorageMemory, StorageFilesystem}
	sizes := []FileSize{Size500KB, Size10MB}

	for _, storageType := range storageTypes {
		b.Run(string(storageType), func(b *testing.B) {
			addr := setupBenchmarkServer(b, storageType)

			for _, size := range sizes {
				content := make([]byte, size.Bytes)
				if _, err := rand.Read(content); err != nil {
					b.Fatalf("Failed to generate content: %v", err)
				}

				b.Run("Upload/"+size.Name, func(b *testing.B) {
					benchmarkUpload(b, addr, content)
				})
				b.Run("Download/"+size.Name, func(b *testing.B) {
					benchmarkDownload(b, addr, content)
				})
			}

			b.Run("List", func(b *testing.B) {
				benchmarkList(b, addr)
			})
		})
	}
}

func benchmarkUpload(b *testing.B, addr string, content []byte) {
	c := client.New(client.Config{Addr: addr})
	defer c.Close()
	ctx := context.Background()

	b.SetBytes(int64(len(content)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.Add(ctx, fmt.Sprintf("upload_%d.bin", i%8), content); err != nil {
			b.Fatalf("Upload failed: %v", err)
		}
	}
}

func benchmarkDownload(b *testing.B, addr string, content []byte) {
	c := client.New(client.Config{Addr: addr})
	defer c.Close()
	ctx := context.Background()

	if _, err := c.Add(ctx, "download.bin", content); err != nil {
		b.Fatalf("Seed upload failed: %v", err)
	}

	b.SetBytes(int64(len(content)))
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.Get(ctx, "download.bin"); err != nil {
			b.Fatalf("Download failed: %v", err)
		}
	}
}

func benchmarkList(b *testing.B, addr string) {
	c := client.New(client.Config{Addr: addr})
	defer c.Close()
	ctx := context.Background()

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := c.List(ctx); err != nil {
			b.Fatalf("List failed: %v", err)
		}
	}
}

// setupBenchmarkServer starts a thread-strategy server and returns its address.
func setupBenchmarkServer(b *testing.B, storageType StorageType) string {
	b.Helper()

	var (
		backend storage.Backend
		err     error
	)
	switch storageType {
	case StorageMemory:
		backend = storagememory.New()
	case StorageFilesystem:
		backend, err = storagefs.New(context.Background(), b.TempDir())
	default:
		b.Fatalf("Unsupported benchmark storage: %s", storageType)
	}
	if err != nil {
		b.Fatalf("Failed to create backend: %v", err)
	}

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		b.Fatalf("Failed to listen: %v", err)
	}

	srv, err := server.New(server.Config{Capacity: 8}, backend, server.WithListener(listener))
	if err != nil {
		b.Fatalf("Failed to create server: %v", err)
	}
	go func() { _ = srv.Serve(context.Background()) }()
	<-srv.Ready()

	b.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Stop(ctx)
		_ = backend.Close()
	})

	return listener.Addr().String()
}

// TestStressRun drives every configuration with the load generator and
// appends the report.
func TestStressRun(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping stress run in short mode")
	}

	report := filepath.Join(t.TempDir(), "results.csv")

	runOnAllConfigs(t, func(t *testing.T, tc *TestContext) {
		runner, err := loadgen.NewRunner(loadgen.Config{
			Client:         client.Config{Addr: tc.Addr},
			Dir:            tc.CreateTempDir("ftserver-volumes-*"),
			Volumes:        []loadgen.Volume{loadgen.MegabyteVolume(1), loadgen.MegabyteVolume(2)},
			ClientCounts:   []int{1, 5},
			ServerPoolSize: 4,
			Cleanup:        true,
		})
		if err != nil {
			t.Fatalf("Failed to create runner: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		results, err := runner.Run(ctx)
		if err != nil {
			t.Fatalf("Stress run failed: %v", err)
		}
		if err := loadgen.Failures(results); err != nil {
			t.Fatalf("Stress run had failures: %v", err)
		}

		first, last, err := loadgen.AppendResults(report, results)
		if err != nil {
			t.Fatalf("Failed to append results: %v", err)
		}
		t.Logf("%s: report rows %d to %d", tc.Config, first, last)
	})
}
