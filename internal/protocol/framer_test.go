package protocol

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedChunks feeds data in the given chunk sizes and returns the frames seen.
func feedChunks(t *testing.T, f *Framer, data []byte, sizes []int) [][]byte {
	t.Helper()

	var frames [][]byte
	pos := 0
	for _, n := range sizes {
		if pos >= len(data) {
			break
		}
		end := pos + n
		if end > len(data) {
			end = len(data)
		}
		frame, ok, err := f.Feed(data[pos:end])
		require.NoError(t, err)
		if ok {
			frames = append(frames, append([]byte(nil), frame...))
		}
		pos = end
	}
	require.Equal(t, len(data), pos, "chunk sizes must cover the input")
	return frames
}

func TestFramerSingleChunk(t *testing.T) {
	f := NewFramer(0)

	frame, ok, err := f.Feed([]byte("LIST" + Terminator))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LIST", string(frame))
	assert.Equal(t, 0, f.Pending())
}

func TestFramerIncomplete(t *testing.T) {
	f := NewFramer(0)

	_, ok, err := f.Feed([]byte("GET a.txt\r\n"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, len("GET a.txt\r\n"), f.Pending())

	frame, ok, err := f.Feed([]byte("\r\n"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "GET a.txt", string(frame))
}

func TestFramerTerminatorSplitAtEveryOffset(t *testing.T) {
	msg := []byte("GET file.bin" + Terminator)

	for split := 1; split < len(msg); split++ {
		f := NewFramer(0)
		frames := feedChunks(t, f, msg, []int{split, len(msg)})
		require.Len(t, frames, 1, "split at %d", split)
		assert.Equal(t, "GET file.bin", string(frames[0]), "split at %d", split)
	}
}

func TestFramerByteAtATime(t *testing.T) {
	msg := []byte("ADD x.bin aGVsbG8=" + Terminator)
	sizes := make([]int, len(msg))
	for i := range sizes {
		sizes[i] = 1
	}

	frames := feedChunks(t, NewFramer(0), msg, sizes)
	require.Len(t, frames, 1)
	assert.Equal(t, "ADD x.bin aGVsbG8=", string(frames[0]))
}

func TestFramerRandomChunking(t *testing.T) {
	body := bytes.Repeat([]byte("QUJDRA=="), 4096)
	msg := append(append([]byte("ADD big.bin "), body...), Terminator...)
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 50; round++ {
		var sizes []int
		for total := 0; total < len(msg); {
			n := 1 + rng.Intn(5000)
			sizes = append(sizes, n)
			total += n
		}

		frames := feedChunks(t, NewFramer(0), msg, sizes)
		require.Len(t, frames, 1)
		assert.Equal(t, msg[:len(msg)-len(Terminator)], frames[0])
	}
}

func TestFramerDiscardsTrailingBytes(t *testing.T) {
	f := NewFramer(0)

	frame, ok, err := f.Feed([]byte("LIST" + Terminator + "GET a"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "LIST", string(frame))
	assert.Equal(t, 0, f.Pending())
}

func TestFramerReusableAfterFrame(t *testing.T) {
	f := NewFramer(0)

	first, ok, err := f.Feed([]byte("GET a" + Terminator))
	require.NoError(t, err)
	require.True(t, ok)

	second, ok, err := f.Feed([]byte("GET b" + Terminator))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "GET a", string(first), "earlier frame must not be overwritten")
	assert.Equal(t, "GET b", string(second))
}

func TestFramerMaxSize(t *testing.T) {
	f := NewFramer(8)

	frame, ok, err := f.Feed([]byte("12345678\r\n\r\n"))
	require.NoError(t, err, "frame of exactly maxSize is accepted")
	require.True(t, ok)
	assert.Equal(t, "12345678", string(frame))

	_, ok, err = f.Feed([]byte("12345678\r\n"))
	require.NoError(t, err, "partial terminator within the bound is not an error")
	assert.False(t, ok)

	_, ok, err = f.Feed([]byte("xy"))
	require.Error(t, err)
	assert.False(t, ok)
	assert.Equal(t, ErrTransport, CodeOf(err))
	assert.False(t, IsRecoverable(err))
	assert.Equal(t, 0, f.Pending())
}

func TestFramerReset(t *testing.T) {
	f := NewFramer(0)
	_, _, _ = f.Feed([]byte("partial"))
	f.Reset()
	assert.Equal(t, 0, f.Pending())
}
