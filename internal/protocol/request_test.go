package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		command Command
		args    []string
	}{
		{name: "list", frame: "LIST", command: CommandList},
		{name: "list lower case", frame: "list", command: CommandList},
		{name: "list trailing space", frame: "LIST ", command: CommandList},
		{name: "get", frame: "GET a.txt", command: CommandGet, args: []string{"a.txt"}},
		{name: "get mixed case", frame: "gEt a.txt", command: CommandGet, args: []string{"a.txt"}},
		{name: "delete", frame: "DELETE a.txt", command: CommandDelete, args: []string{"a.txt"}},
		{name: "add", frame: "ADD a.txt aGVsbG8=", command: CommandAdd, args: []string{"a.txt", "aGVsbG8="}},
		{name: "upload alias", frame: "upload a.txt aGVsbG8=", command: CommandAdd, args: []string{"a.txt", "aGVsbG8="}},
		{name: "add empty payload", frame: "ADD empty.bin ", command: CommandAdd, args: []string{"empty.bin", ""}},
		{name: "add payload verbatim", frame: "ADD a.txt not base64 at all", command: CommandAdd, args: []string{"a.txt", "not base64 at all"}},
		{name: "leading whitespace", frame: "\r\n  GET a.txt", command: CommandGet, args: []string{"a.txt"}},
		{name: "trailing newline", frame: "GET a.txt\r\n", command: CommandGet, args: []string{"a.txt"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.frame))
			require.NoError(t, err)
			assert.Equal(t, tt.command, req.Command)
			assert.Equal(t, tt.args, req.Args)
			assert.Len(t, req.Args, req.Command.Arity())
		})
	}
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		message string
	}{
		{name: "empty", frame: "", message: "empty request"},
		{name: "whitespace only", frame: " \r\n", message: "empty request"},
		{name: "unknown verb", frame: "RENAME a b", message: `unrecognized request "RENAME"`},
		{name: "get missing name", frame: "GET", message: "GET requires a filename"},
		{name: "delete missing name", frame: "DELETE ", message: "DELETE requires a filename"},
		{name: "add missing payload", frame: "ADD a.txt", message: "ADD requires filename and content"},
		{name: "upload missing everything", frame: "UPLOAD", message: "UPLOAD requires filename and content"},
		{name: "list extra", frame: "LIST foo", message: `LIST takes no arguments, got unexpected argument "foo"`},
		{name: "get extra", frame: "GET a b", message: `GET takes one filename, got unexpected argument "b"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRequest([]byte(tt.frame))
			require.Error(t, err)

			var perr *Error
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, ErrProtocol, perr.Code)
			assert.Equal(t, tt.message, perr.Message)
			assert.True(t, IsRecoverable(err))
		})
	}
}

func TestFormatRequestRoundTrip(t *testing.T) {
	reqs := []Request{
		NewListRequest(),
		NewGetRequest("a.txt"),
		NewDeleteRequest("b.txt"),
		NewAddRequest("c.bin", []byte{0, 1, 2, 255}),
		NewAddRequest("empty.bin", nil),
	}

	for _, req := range reqs {
		t.Run(req.String(), func(t *testing.T) {
			wire := FormatRequest(req)

			frame, ok, err := NewFramer(0).Feed(wire)
			require.NoError(t, err)
			require.True(t, ok)

			parsed, err := ParseRequest(frame)
			require.NoError(t, err)
			assert.Equal(t, req.Command, parsed.Command)
			assert.Equal(t, req.Filename(), parsed.Filename())
			assert.Equal(t, req.Payload(), parsed.Payload())
		})
	}
}

func TestRequestString(t *testing.T) {
	assert.Equal(t, "LIST", NewListRequest().String())
	assert.Equal(t, "GET a.txt", NewGetRequest("a.txt").String())
	assert.Equal(t, "ADD a.bin (8 base64 bytes)", NewAddRequest("a.bin", []byte("hello")).String())
}
