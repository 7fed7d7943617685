package server

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/filetransfer/internal/protocol"
	"github.com/marmos91/filetransfer/pkg/metrics"
	"github.com/marmos91/filetransfer/pkg/storage"
)

// Dispatcher maps parsed requests to storage operations.
//
// Dispatch never fails: every error is classified and rendered as an ERROR
// response. Invalid input is rejected before any storage call.
type Dispatcher struct {
	backend storage.Backend
	metrics metrics.ServerMetrics
}

func NewDispatcher(backend storage.Backend, m metrics.ServerMetrics) *Dispatcher {
	if m == nil {
		m = metrics.NewNoopServerMetrics()
	}
	return &Dispatcher{backend: backend, metrics: m}
}

// Dispatch executes req and returns its response.
func (d *Dispatcher) Dispatch(ctx context.Context, req protocol.Request) protocol.Response {
	command := req.Command.String()

	d.metrics.RecordRequestStart(command)
	defer d.metrics.RecordRequestEnd(command)

	start := time.Now()
	resp, err := d.dispatch(ctx, req)
	duration := time.Since(start)

	if err != nil {
		d.metrics.RecordRequest(command, string(protocol.StatusError), protocol.CodeOf(err).String(), duration)
		return protocol.ErrorResponseFor(err)
	}

	d.metrics.RecordRequest(command, string(protocol.StatusOK), "", duration)
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req protocol.Request) (protocol.Response, error) {
	switch req.Command {
	case protocol.CommandList:
		return d.list(ctx)
	case protocol.CommandGet:
		return d.get(ctx, req.Filename())
	case protocol.CommandDelete:
		return d.delete(ctx, req.Filename())
	case protocol.CommandAdd:
		return d.add(ctx, req.Filename(), req.Payload())
	default:
		return protocol.Response{}, protocol.NewProtocolError("unrecognized request")
	}
}

func (d *Dispatcher) list(ctx context.Context) (protocol.Response, error) {
	names, err := d.backend.List(ctx)
	if err != nil {
		return protocol.Response{}, protocol.NewStorageError(fmt.Sprintf("failed to list files: %v", err), err)
	}
	return protocol.ListResponse(names), nil
}

func (d *Dispatcher) get(ctx context.Context, name string) (protocol.Response, error) {
	data, err := d.backend.Read(ctx, name)
	if err != nil {
		return protocol.Response{}, storageError(name, err)
	}

	d.metrics.RecordBytesTransferred(metrics.DirectionOut, int64(len(data)))
	return protocol.FileResponse(name, data), nil
}

func (d *Dispatcher) add(ctx context.Context, name, payload string) (protocol.Response, error) {
	if err := storage.ValidateName(name); err != nil {
		return protocol.Response{}, storageError(name, err)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return protocol.Response{}, protocol.NewPayloadError(fmt.Sprintf("invalid base64 payload: %v", err), err)
	}

	if err := d.backend.Write(ctx, name, data); err != nil {
		return protocol.Response{}, storageError(name, err)
	}

	d.metrics.RecordBytesTransferred(metrics.DirectionIn, int64(len(data)))
	return protocol.MessageResponse(fmt.Sprintf("File %s uploaded (%d bytes)", name, len(data))), nil
}

func (d *Dispatcher) delete(ctx context.Context, name string) (protocol.Response, error) {
	if err := d.backend.Remove(ctx, name); err != nil {
		return protocol.Response{}, storageError(name, err)
	}
	return protocol.MessageResponse(fmt.Sprintf("File %s deleted", name)), nil
}

// storageError classifies a backend error for name.
func storageError(name string, err error) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return protocol.NewStorageError(fmt.Sprintf("File %s not found", name), err)
	case errors.Is(err, storage.ErrInvalidName):
		return &protocol.Error{Code: protocol.ErrProtocol, Message: fmt.Sprintf("invalid filename %q", name), Err: err}
	default:
		return protocol.NewStorageError(fmt.Sprintf("failed to access %s: %v", name, err), err)
	}
}
