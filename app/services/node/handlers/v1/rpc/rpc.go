// Package rpc implements the JSON-RPC 2.0 surface wallets and operator
// tooling use to talk to the node.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	v1 "github.com/ancourn/kaldr1-sub002/business/web/v1"
	"github.com/ancourn/kaldr1-sub002/foundation/keystore"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/audit"
	"github.com/ancourn/kaldr1-sub002/foundation/ledger/state"
	"github.com/ancourn/kaldr1-sub002/foundation/metrics"
	"github.com/ancourn/kaldr1-sub002/foundation/web"
	"go.uber.org/zap"
)

// JSON-RPC 2.0 error codes.
const (
	errCodeParse          = -32700
	errCodeInvalidRequest = -32600
	errCodeMethodNotFound = -32601
	errCodeInvalidParams  = -32602
	errCodeExecution      = -32000
)

// maxBodyBytes bounds how much of a request body the dispatcher will read.
const maxBodyBytes = 1 << 20

// Handlers manages the JSON-RPC endpoint.
type Handlers struct {
	Log      *zap.SugaredLogger
	State    *state.State
	Keystore *keystore.KeyStore
	Audit    *audit.Audit
	Metrics  *metrics.Metrics
}

// request is one JSON-RPC 2.0 call.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
}

// response is the reply for one call. Result is omitted on failure and
// Error is omitted on success.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// methodFunc executes one RPC method against the node.
type methodFunc func(ctx context.Context, params json.RawMessage) (any, *rpcError)

// Dispatch decodes a JSON-RPC request or batch and routes each call to its
// method handler. Protocol level failures are still HTTP 200 with an error
// object, per the JSON-RPC 2.0 spec.
func (h Handlers) Dispatch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return v1.NewRequestError(err, http.StatusBadRequest)
	}

	trimmed := bytes.TrimLeft(body, " \t\r\n")
	if len(trimmed) == 0 {
		return web.Respond(ctx, w, errResponse(nil, errCodeInvalidRequest, "empty request"), http.StatusOK)
	}

	// A batch is an array of requests answered by an array of responses.
	if trimmed[0] == '[' {
		var reqs []request
		if err := json.Unmarshal(trimmed, &reqs); err != nil {
			return web.Respond(ctx, w, errResponse(nil, errCodeParse, "parse error"), http.StatusOK)
		}
		if len(reqs) == 0 {
			return web.Respond(ctx, w, errResponse(nil, errCodeInvalidRequest, "empty batch"), http.StatusOK)
		}

		resps := make([]response, len(reqs))
		for i, req := range reqs {
			resps[i] = h.call(ctx, req)
		}
		return web.Respond(ctx, w, resps, http.StatusOK)
	}

	var req request
	if err := json.Unmarshal(trimmed, &req); err != nil {
		return web.Respond(ctx, w, errResponse(nil, errCodeParse, "parse error"), http.StatusOK)
	}

	return web.Respond(ctx, w, h.call(ctx, req), http.StatusOK)
}

// call routes one decoded request to its method handler and shapes the
// response.
func (h Handlers) call(ctx context.Context, req request) response {
	started := time.Now()

	if req.Method == "" {
		return errResponse(req.ID, errCodeInvalidRequest, "method is required")
	}

	fn, exists := h.methods()[req.Method]
	if !exists {
		h.record(req.Method, "method_not_found", started)
		return errResponse(req.ID, errCodeMethodNotFound, fmt.Sprintf("the method %s does not exist/is not available", req.Method))
	}

	result, rpcErr := fn(ctx, req.Params)
	if rpcErr != nil {
		h.record(req.Method, "error", started)
		h.Log.Infow("rpc call failed", "method", req.Method, "code", rpcErr.Code, "message", rpcErr.Message)
		return response{JSONRPC: "2.0", Error: rpcErr, ID: req.ID}
	}

	h.record(req.Method, "ok", started)
	return response{JSONRPC: "2.0", Result: result, ID: req.ID}
}

func (h Handlers) record(method string, status string, started time.Time) {
	if h.Metrics != nil {
		h.Metrics.RecordRPCRequest(method, status, time.Since(started))
	}
}

func errResponse(id json.RawMessage, code int, message string) response {
	return response{
		JSONRPC: "2.0",
		Error:   &rpcError{Code: code, Message: message},
		ID:      id,
	}
}

func invalidParams(err error) *rpcError {
	return &rpcError{Code: errCodeInvalidParams, Message: err.Error()}
}

func execError(err error) *rpcError {
	return &rpcError{Code: errCodeExecution, Message: err.Error()}
}

// decodePositional unmarshals the leading positional params into the
// provided destinations. Fewer params than destinations is an error,
// extras are ignored.
func decodePositional(params json.RawMessage, dst ...any) error {
	if len(dst) == 0 {
		return nil
	}
	if len(params) == 0 {
		return errors.New("missing params")
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(params, &raw); err != nil {
		return fmt.Errorf("params must be an array: %w", err)
	}
	if len(raw) < len(dst) {
		return fmt.Errorf("expected %d params, got %d", len(dst), len(raw))
	}

	for i, d := range dst {
		if err := json.Unmarshal(raw[i], d); err != nil {
			return fmt.Errorf("param %d: %w", i, err)
		}
	}

	return nil
}
