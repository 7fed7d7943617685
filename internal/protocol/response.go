package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
)

// Status is the outcome carried by every response.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// ResponseKind selects which payload variant a Response carries.
type ResponseKind int

const (
	KindMessage ResponseKind = iota
	KindList
	KindFile
)

// Response is a structured reply. Exactly one payload variant is set,
// according to Kind.
type Response struct {
	Status   Status
	Kind     ResponseKind
	Files    []string
	Filename string
	Content  []byte
	Message  string
}

func ListResponse(names []string) Response {
	if names == nil {
		names = []string{}
	}
	return Response{Status: StatusOK, Kind: KindList, Files: names}
}

func FileResponse(name string, content []byte) Response {
	return Response{Status: StatusOK, Kind: KindFile, Filename: name, Content: content}
}

func MessageResponse(msg string) Response {
	return Response{Status: StatusOK, Kind: KindMessage, Message: msg}
}

func ErrorResponse(msg string) Response {
	return Response{Status: StatusError, Kind: KindMessage, Message: msg}
}

// ErrorResponseFor renders a classified error as an ERROR response.
func ErrorResponseFor(err error) Response {
	var perr *Error
	if errors.As(err, &perr) {
		return ErrorResponse(perr.Message)
	}
	return ErrorResponse(err.Error())
}

func (r Response) IsOK() bool {
	return r.Status == StatusOK
}

type listBody struct {
	Status Status   `json:"status"`
	Data   []string `json:"data"`
}

type messageBody struct {
	Status Status `json:"status"`
	Data   string `json:"data"`
}

// EncodeResponse renders r as JSON followed by the terminator. File content
// is base64-encoded into the data_file field.
func EncodeResponse(r Response) ([]byte, error) {
	var buf bytes.Buffer

	switch r.Kind {
	case KindList:
		files := r.Files
		if files == nil {
			files = []string{}
		}
		if err := encodeJSON(&buf, listBody{Status: r.Status, Data: files}); err != nil {
			return nil, err
		}

	case KindFile:
		name, err := marshalString(r.Filename)
		if err != nil {
			return nil, err
		}
		// Base64 output never needs JSON escaping, so it is written directly.
		encodedLen := base64.StdEncoding.EncodedLen(len(r.Content))
		buf.Grow(len(`{"status":"","data_namafile":,"data_file":""}`) + len(r.Status) + len(name) + encodedLen + len(Terminator))
		buf.WriteString(`{"status":"`)
		buf.WriteString(string(r.Status))
		buf.WriteString(`","data_namafile":`)
		buf.Write(name)
		buf.WriteString(`,"data_file":"`)
		encoded := make([]byte, encodedLen)
		base64.StdEncoding.Encode(encoded, r.Content)
		buf.Write(encoded)
		buf.WriteString(`"}`)

	case KindMessage:
		if err := encodeJSON(&buf, messageBody{Status: r.Status, Data: r.Message}); err != nil {
			return nil, err
		}

	default:
		return nil, fmt.Errorf("unknown response kind %d", r.Kind)
	}

	buf.WriteString(Terminator)
	return buf.Bytes(), nil
}

func encodeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	// Encoder appends a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}

func marshalString(s string) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeJSON(&buf, s); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type wireResponse struct {
	Status       Status          `json:"status"`
	Data         json.RawMessage `json:"data"`
	DataNamafile *string         `json:"data_namafile"`
	DataFile     *string         `json:"data_file"`
}

// DecodeResponse parses a response frame (terminator excluded).
func DecodeResponse(frame []byte) (Response, error) {
	var w wireResponse
	if err := json.Unmarshal(frame, &w); err != nil {
		return Response{}, fmt.Errorf("decode response: %w", err)
	}

	if w.Status != StatusOK && w.Status != StatusError {
		return Response{}, fmt.Errorf("decode response: unknown status %q", w.Status)
	}

	if w.DataFile != nil {
		content, err := base64.StdEncoding.DecodeString(*w.DataFile)
		if err != nil {
			return Response{}, fmt.Errorf("decode response: data_file: %w", err)
		}
		name := ""
		if w.DataNamafile != nil {
			name = *w.DataNamafile
		}
		return Response{Status: w.Status, Kind: KindFile, Filename: name, Content: content}, nil
	}

	trimmed := bytes.TrimSpace(w.Data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var files []string
		if err := json.Unmarshal(trimmed, &files); err != nil {
			return Response{}, fmt.Errorf("decode response: data: %w", err)
		}
		return Response{Status: w.Status, Kind: KindList, Files: files}, nil
	}

	var msg string
	if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
		if err := json.Unmarshal(trimmed, &msg); err != nil {
			return Response{}, fmt.Errorf("decode response: data: %w", err)
		}
	}
	return Response{Status: w.Status, Kind: KindMessage, Message: msg}, nil
}
