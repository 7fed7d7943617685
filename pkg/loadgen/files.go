package loadgen

import (
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/filetransfer/internal/logger"
)

const megabyte = 1 << 20

// Volume is a generated payload file used by a stress run.
type Volume struct {
	// Name is the local file name, also used as the volume column of the report.
	Name string

	// Size is the file size in bytes.
	Size int64
}

// DefaultVolumes are the 10, 50 and 100 MB payloads.
var DefaultVolumes = []Volume{
	MegabyteVolume(10),
	MegabyteVolume(50),
	MegabyteVolume(100),
}

// MegabyteVolume returns a volume named "<mb>MB.bin".
func MegabyteVolume(mb int) Volume {
	return Volume{
		Name: fmt.Sprintf("%dMB.bin", mb),
		Size: int64(mb) * megabyte,
	}
}

// GenerateFiles creates every volume in dir filled with random bytes.
// Files that already exist with the expected size are kept.
func GenerateFiles(dir string, volumes []Volume) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create volume directory: %w", err)
	}

	for _, v := range volumes {
		path := filepath.Join(dir, v.Name)

		if info, err := os.Stat(path); err == nil && info.Size() == v.Size {
			logger.Debug("Volume %s already present", path)
			continue
		}

		logger.Info("Generating %s (%d bytes)", path, v.Size)
		if err := writeRandom(path, v.Size); err != nil {
			return fmt.Errorf("failed to generate %s: %w", v.Name, err)
		}
	}

	return nil
}

func writeRandom(path string, size int64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if _, err := io.CopyN(f, rand.Reader, size); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return err
	}

	return f.Close()
}
