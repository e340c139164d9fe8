package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "github.com/copyleftdev/descent/internal/errors"
	"github.com/copyleftdev/descent/internal/objectives"
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcError carries a JSON-RPC error code out of a method handler.
type rpcError struct {
	code int
	err  error
}

func (e *rpcError) Error() string { return e.err.Error() }

func (e *rpcError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &rpcError{code: codeInvalidParams, err: fmt.Errorf(format, args...)}
}

// decodeParams accepts params either as an object or as a one-element array
// holding the object.
func decodeParams(raw json.RawMessage, dst interface{}) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return invalidParams("missing required parameters")
	}
	if raw[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
			return invalidParams("missing required parameters")
		}
		raw = list[0]
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return invalidParams("invalid parameter format, expected object: %v", err)
	}
	return nil
}

type jobParams struct {
	JobID string `json:"job_id"`
}

func (p *jobParams) decode(raw json.RawMessage) error {
	if err := decodeParams(raw, p); err != nil {
		return err
	}
	if p.JobID == "" {
		return invalidParams("job_id is required")
	}
	return nil
}

// handleJSONRPC handles JSON-RPC 2.0 requests
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var request rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondWithError(w, codeParseError, "Parse error", nil)
		return
	}
	if request.JSONRPC != "2.0" || request.Method == "" {
		s.respondWithError(w, codeInvalidRequest, "Invalid Request", request.ID)
		return
	}

	var (
		result interface{}
		err    error
	)
	switch request.Method {
	case "solver.start":
		var req SolveRequest
		if err = decodeParams(request.Params, &req); err == nil {
			if result, err = s.start(&req); err != nil {
				err = &rpcError{code: codeInvalidParams, err: err}
			}
		}
	case "solver.status":
		var p jobParams
		if err = p.decode(request.Params); err == nil {
			result, err = s.jobView(p.JobID)
		}
	case "solver.cancel":
		var p jobParams
		if err = p.decode(request.Params); err == nil {
			if _, err = s.cancelJob(p.JobID); err == nil {
				result, err = s.jobView(p.JobID)
			}
		}
	case "objectives.list":
		result = objectives.All()
	default:
		s.respondWithError(w, codeMethodNotFound, "Method not found", request.ID)
		return
	}

	if err != nil {
		code := codeServerError
		var re *rpcError
		if errors.As(err, &re) {
			code = re.code
		}
		failure := apperrors.Wrap(err, "").WithOperation(request.Method).WithComponent("rpc")
		if code == codeServerError && apperrors.StatusOf(failure) >= http.StatusInternalServerError {
			s.logServerError(failure, map[string]interface{}{"rpc_method": request.Method})
		}
		s.respondWithError(w, code, err.Error(), request.ID)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      request.ID,
		"result":  result,
	})
}

// respondWithError sends a JSON-RPC 2.0 error response
func (s *Server) respondWithError(w http.ResponseWriter, code int, message string, id interface{}) {
	s.logger.Warn("JSON-RPC error", map[string]interface{}{
		"code":    code,
		"message": message,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"jsonrpc": "2.0",
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
		"id": id,
	})
}
