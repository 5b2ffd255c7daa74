package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/me/controlnode/pkg/model"
)

// maxRPCBody bounds a single JSON-RPC request.
const maxRPCBody = 1 << 20

var tracer = otel.Tracer("github.com/me/controlnode/internal/server")

// rpcMethod handles one JSON-RPC method. A returned error that is (or wraps)
// a *model.SchedulerError is sent to the caller verbatim.
type rpcMethod func(ctx context.Context, p params) (any, error)

// handleRPC decodes one JSON-RPC call, dispatches it and writes the response.
// POST /jsonrpc
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRPCBody))
	if err != nil {
		writeRPC(w, model.RPCResponse{Error: &model.SchedulerError{Type: model.ErrTypeParseError, Msg: err.Error()}})
		return
	}

	var req model.RPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeRPC(w, model.RPCResponse{Error: &model.SchedulerError{Type: model.ErrTypeParseError, Msg: err.Error()}})
		return
	}

	result, schedErr := s.dispatch(r.Context(), req)
	resp := model.RPCResponse{ID: req.ID}
	if schedErr != nil {
		resp.Error = schedErr
	} else {
		resp.Result = result
	}
	writeRPC(w, resp)
}

// dispatch runs a decoded call inside a span and records its outcome.
func (s *Server) dispatch(ctx context.Context, req model.RPCRequest) (any, *model.SchedulerError) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "rpc."+req.Method)
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", req.Method))

	method, ok := s.methods[req.Method]
	if !ok {
		s.observe("unknown", string(model.ErrTypeMethodNotFound), start)
		span.SetStatus(codes.Error, "method not found")
		return nil, &model.SchedulerError{Type: model.ErrTypeMethodNotFound, Msg: req.Method}
	}

	result, err := method(ctx, params(req.Params))
	if err != nil {
		schedErr := toSchedulerError(err)
		s.observe(req.Method, string(schedErr.Type), start)
		span.SetStatus(codes.Error, schedErr.Error())

		level := s.logger.Debug
		if schedErr.Type == model.ErrTypeStorageError || schedErr.Type == model.ErrTypeInternal {
			level = s.logger.Error
		}
		level("rpc failed",
			"method", req.Method,
			"error", err,
			"request_id", RequestIDFromContext(ctx),
		)
		return nil, schedErr
	}

	s.observe(req.Method, "ok", start)
	return result, nil
}

func (s *Server) observe(method, outcome string, start time.Time) {
	if s.metrics != nil {
		s.metrics.ObserveRPC(method, outcome, time.Since(start))
	}
}

// toSchedulerError maps any error onto the wire error shape.
func toSchedulerError(err error) *model.SchedulerError {
	var se *model.SchedulerError
	if errors.As(err, &se) {
		return se
	}
	return &model.SchedulerError{Type: model.ErrTypeInternal, Msg: err.Error()}
}

// storageError tags a plain store failure as StorageError and passes
// scheduler errors through.
func storageError(err error) error {
	var se *model.SchedulerError
	if errors.As(err, &se) {
		return err
	}
	return model.NewStorageError(err)
}
