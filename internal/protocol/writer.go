package protocol

import (
	"io"
)

// DefaultChunkSize is the I/O chunk used for socket reads and writes.
const DefaultChunkSize = 1 << 20

// WriteChunked writes data to w in slices of at most chunkSize bytes.
// Short writes are retried from the first unwritten byte until everything
// is flushed or w returns an error.
func WriteChunked(w io.Writer, data []byte, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	written := 0
	for written < len(data) {
		end := written + chunkSize
		if end > len(data) {
			end = len(data)
		}

		n, err := w.Write(data[written:end])
		written += n
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, io.ErrShortWrite
		}
	}

	return written, nil
}
