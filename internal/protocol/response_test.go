package protocol

import (
	"bytes"
	"crypto/rand"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeResponse(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{
			name: "list",
			resp: ListResponse([]string{"a.txt", "b.bin"}),
			want: `{"status":"OK","data":["a.txt","b.bin"]}`,
		},
		{
			name: "empty list",
			resp: ListResponse(nil),
			want: `{"status":"OK","data":[]}`,
		},
		{
			name: "file",
			resp: FileResponse("a.txt", []byte("hello")),
			want: `{"status":"OK","data_namafile":"a.txt","data_file":"aGVsbG8="}`,
		},
		{
			name: "empty file",
			resp: FileResponse("empty.bin", nil),
			want: `{"status":"OK","data_namafile":"empty.bin","data_file":""}`,
		},
		{
			name: "message",
			resp: MessageResponse("File a.txt deleted"),
			want: `{"status":"OK","data":"File a.txt deleted"}`,
		},
		{
			name: "error",
			resp: ErrorResponse("File missing.txt not found"),
			want: `{"status":"ERROR","data":"File missing.txt not found"}`,
		},
		{
			name: "no html escaping",
			resp: ErrorResponse("a<b>&c"),
			want: `{"status":"ERROR","data":"a<b>&c"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := EncodeResponse(tt.resp)
			require.NoError(t, err)
			assert.Equal(t, tt.want+Terminator, string(out))
		})
	}
}

func TestEncodeResponseHasSingleTerminator(t *testing.T) {
	content := make([]byte, 64*1024)
	_, err := rand.Read(content)
	require.NoError(t, err)

	out, err := EncodeResponse(FileResponse("r.bin", content))
	require.NoError(t, err)

	assert.True(t, bytes.HasSuffix(out, []byte(Terminator)))
	assert.Equal(t, 1, bytes.Count(out, []byte(Terminator)))
}

func TestDecodeResponse(t *testing.T) {
	content := []byte{0, 1, 2, 3, 254, 255}

	for _, resp := range []Response{
		ListResponse([]string{"a", "b"}),
		ListResponse(nil),
		FileResponse("x.bin", content),
		MessageResponse("File x.bin uploaded (6 bytes)"),
		ErrorResponse("File missing.txt not found"),
	} {
		out, err := EncodeResponse(resp)
		require.NoError(t, err)

		decoded, err := DecodeResponse(bytes.TrimSuffix(out, []byte(Terminator)))
		require.NoError(t, err)
		assert.Equal(t, resp.Status, decoded.Status)
		assert.Equal(t, resp.Kind, decoded.Kind)

		switch resp.Kind {
		case KindList:
			assert.ElementsMatch(t, resp.Files, decoded.Files)
		case KindFile:
			assert.Equal(t, resp.Filename, decoded.Filename)
			assert.Equal(t, resp.Content, decoded.Content)
		case KindMessage:
			assert.Equal(t, resp.Message, decoded.Message)
		}
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	_, err := DecodeResponse([]byte("not json"))
	assert.Error(t, err)

	_, err = DecodeResponse([]byte(`{"status":"MAYBE","data":"x"}`))
	assert.Error(t, err)

	_, err = DecodeResponse([]byte(`{"status":"OK","data_namafile":"a","data_file":"%%%"}`))
	assert.Error(t, err)
}

func TestErrorResponseFor(t *testing.T) {
	resp := ErrorResponseFor(NewStorageError("File a not found", errors.New("enoent")))
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "File a not found", resp.Message)

	resp = ErrorResponseFor(errors.New("boom"))
	assert.Equal(t, "boom", resp.Message)
}

type shortWriter struct {
	buf   bytes.Buffer
	max   int
	calls int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	w.calls++
	if len(p) > w.max {
		p = p[:w.max]
	}
	return w.buf.Write(p)
}

func TestWriteChunkedRetriesShortWrites(t *testing.T) {
	data := []byte(strings.Repeat("abcdefgh", 100))
	w := &shortWriter{max: 7}

	n, err := WriteChunked(w, data, 64)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)
	assert.Equal(t, data, w.buf.Bytes())
	assert.Greater(t, w.calls, len(data)/64)
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errors.New("broken pipe")
	}
	n := len(p)
	if n > w.after {
		n = w.after
	}
	w.after -= n
	return n, nil
}

func TestWriteChunkedStopsOnError(t *testing.T) {
	n, err := WriteChunked(&failingWriter{after: 10}, make([]byte, 100), 4)
	require.Error(t, err)
	assert.Equal(t, 10, n)
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "protocol", ErrProtocol.String())
	assert.Equal(t, "payload", ErrPayload.String())
	assert.Equal(t, "storage", ErrStorage.String())
	assert.Equal(t, "transport", ErrTransport.String())
	assert.Equal(t, ErrTransport, CodeOf(errors.New("eof")))
}
