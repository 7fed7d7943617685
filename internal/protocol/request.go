package protocol

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// Command is the closed set of operations a request can name.
type Command int

const (
	CommandList Command = iota
	CommandGet
	CommandDelete
	CommandAdd
)

func (c Command) String() string {
	switch c {
	case CommandList:
		return "LIST"
	case CommandGet:
		return "GET"
	case CommandDelete:
		return "DELETE"
	case CommandAdd:
		return "ADD"
	default:
		return fmt.Sprintf("Command(%d)", int(c))
	}
}

// Arity is the exact number of arguments the command takes.
func (c Command) Arity() int {
	switch c {
	case CommandGet, CommandDelete:
		return 1
	case CommandAdd:
		return 2
	default:
		return 0
	}
}

// verbs maps wire verbs (upper-cased) to commands. UPLOAD is an alias of ADD.
var verbs = map[string]Command{
	"LIST":   CommandList,
	"GET":    CommandGet,
	"DELETE": CommandDelete,
	"ADD":    CommandAdd,
	"UPLOAD": CommandAdd,
}

// Request is a parsed request. Args has exactly Command.Arity() entries:
// GET and DELETE carry the file name, ADD carries the file name followed by
// the base64 payload exactly as received.
type Request struct {
	Command Command
	Args    []string
}

func (r Request) Filename() string {
	if len(r.Args) == 0 {
		return ""
	}
	return r.Args[0]
}

// Payload returns the base64 content of an ADD request.
func (r Request) Payload() string {
	if r.Command != CommandAdd || len(r.Args) < 2 {
		return ""
	}
	return r.Args[1]
}

// String renders the request for logs. Payloads are summarized by length.
func (r Request) String() string {
	switch r.Command {
	case CommandList:
		return "LIST"
	case CommandAdd:
		return fmt.Sprintf("ADD %s (%d base64 bytes)", r.Filename(), len(r.Payload()))
	default:
		return fmt.Sprintf("%s %s", r.Command, r.Filename())
	}
}

func NewListRequest() Request {
	return Request{Command: CommandList}
}

func NewGetRequest(name string) Request {
	return Request{Command: CommandGet, Args: []string{name}}
}

func NewDeleteRequest(name string) Request {
	return Request{Command: CommandDelete, Args: []string{name}}
}

// NewAddRequest base64-encodes data into an ADD request.
func NewAddRequest(name string, data []byte) Request {
	return Request{Command: CommandAdd, Args: []string{name, base64.StdEncoding.EncodeToString(data)}}
}

// FormatRequest renders r in wire form, terminator included.
func FormatRequest(r Request) []byte {
	size := len(r.Command.String()) + len(Terminator)
	for _, a := range r.Args {
		size += len(a) + 1
	}

	var b strings.Builder
	b.Grow(size)
	b.WriteString(r.Command.String())
	for _, a := range r.Args {
		b.WriteByte(' ')
		b.WriteString(a)
	}
	b.WriteString(Terminator)
	return []byte(b.String())
}

// ParseRequest parses one frame into a Request.
//
// Leading whitespace and trailing CR/LF are ignored. The verb is matched
// case-insensitively. For ADD/UPLOAD everything after the space following the
// file name is the payload, verbatim, and may be empty. Any arity mismatch is
// rejected before the request reaches storage.
func ParseRequest(frame []byte) (Request, error) {
	line := strings.TrimLeft(string(frame), " \t\r\n")
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Request{}, NewProtocolError("empty request")
	}

	verb, rest, _ := strings.Cut(line, " ")
	cmd, ok := verbs[strings.ToUpper(verb)]
	if !ok {
		return Request{}, NewProtocolError("unrecognized request %q", truncate(verb, 32))
	}

	switch cmd {
	case CommandList:
		if extra := strings.Fields(rest); len(extra) > 0 {
			return Request{}, NewProtocolError("LIST takes no arguments, got unexpected argument %q", truncate(extra[0], 64))
		}
		return Request{Command: CommandList}, nil

	case CommandGet, CommandDelete:
		fields := strings.Fields(rest)
		switch {
		case len(fields) == 0:
			return Request{}, NewProtocolError("%s requires a filename", cmd)
		case len(fields) > 1:
			return Request{}, NewProtocolError("%s takes one filename, got unexpected argument %q", cmd, truncate(fields[1], 64))
		}
		return Request{Command: cmd, Args: []string{fields[0]}}, nil

	case CommandAdd:
		name, payload, hasPayload := strings.Cut(rest, " ")
		if name == "" || !hasPayload {
			return Request{}, NewProtocolError("%s requires filename and content", strings.ToUpper(verb))
		}
		return Request{Command: CommandAdd, Args: []string{name, payload}}, nil
	}

	return Request{}, NewProtocolError("unrecognized request %q", truncate(verb, 32))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
