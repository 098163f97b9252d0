// Package rpctest provides an in-process fake of the NEAR JSON-RPC endpoint for tests.
package rpctest

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/luxfi/gasreplay/pkg/near"
)

// Handler answers one method call. Returning an *Error produces a JSON-RPC error.
type Handler func(params json.RawMessage) (interface{}, error)

// ViewHandler answers one call_function query with decoded JSON args.
type ViewHandler func(args json.RawMessage) (interface{}, error)

// Error is returned by handlers to produce a JSON-RPC error response.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Name    string      `json:"name,omitempty"`
	Cause   *Cause      `json:"cause,omitempty"`
}

// Cause mirrors the node's error cause object
type Cause struct {
	Name string `json:"name"`
}

func (e *Error) Error() string {
	return e.Message
}

// Request is one recorded call
type Request struct {
	Method string
	Params json.RawMessage
}

// Server is a fake JSON-RPC endpoint backed by httptest.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]Handler
	queries  map[string]Handler
	views    map[string]ViewHandler
	requests []Request
}

// NewServer starts a fake endpoint; callers must Close it.
func NewServer() *Server {
	s := &Server{
		handlers: make(map[string]Handler),
		queries:  make(map[string]Handler),
		views:    make(map[string]ViewHandler),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Handle registers a handler for a top-level method
func (s *Server) Handle(method string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = h
}

// HandleQuery registers a handler for a query request_type
func (s *Server) HandleQuery(requestType string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[requestType] = h
}

// HandleView registers a handler for call_function on account.method. The returned
// value is JSON-encoded into the result bytes.
func (s *Server) HandleView(accountID, method string, h ViewHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[accountID+"/"+method] = h
}

// Requests returns the recorded calls of one method, or all calls when method is empty.
func (s *Server) Requests(method string) []Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Request
	for _, r := range s.requests {
		if method == "" || r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	Version string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	var req request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.requests = append(s.requests, Request{Method: req.Method, Params: req.Params})
	s.mu.Unlock()

	result, err := s.dispatch(req.Method, req.Params)

	resp := response{Version: "2.0", ID: req.ID}
	if err != nil {
		rerr, ok := err.(*Error)
		if !ok {
			rerr = &Error{Code: -32000, Message: "Server error", Data: err.Error()}
		}
		resp.Error = rerr
	} else {
		resp.Result = result
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (s *Server) dispatch(method string, params json.RawMessage) (interface{}, error) {
	s.mu.Lock()
	h, ok := s.handlers[method]
	s.mu.Unlock()
	if ok {
		return h(params)
	}
	if method == "query" {
		return s.dispatchQuery(params)
	}
	return nil, &Error{Code: -32601, Message: "Method not found", Data: method}
}

func (s *Server) dispatchQuery(params json.RawMessage) (interface{}, error) {
	var q struct {
		RequestType string `json:"request_type"`
		AccountID   string `json:"account_id"`
		MethodName  string `json:"method_name"`
		ArgsBase64  string `json:"args_base64"`
	}
	if err := json.Unmarshal(params, &q); err != nil {
		return nil, &Error{Code: -32602, Message: "Invalid params", Data: err.Error()}
	}

	s.mu.Lock()
	qh, hasQuery := s.queries[q.RequestType]
	vh, hasView := s.views[q.AccountID+"/"+q.MethodName]
	s.mu.Unlock()

	if q.RequestType == "call_function" && hasView {
		args, err := base64.StdEncoding.DecodeString(q.ArgsBase64)
		if err != nil {
			return nil, &Error{Code: -32602, Message: "Invalid params", Data: err.Error()}
		}
		value, err := vh(args)
		if err != nil {
			return nil, err
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, err
		}
		return near.CallResult{Result: near.Bytes(encoded), Logs: []string{}}, nil
	}
	if hasQuery {
		return qh(params)
	}
	return nil, &Error{
		Code:    -32000,
		Message: "Server error",
		Name:    "HANDLER_ERROR",
		Cause:   &Cause{Name: "UNKNOWN_ACCOUNT"},
		Data:    fmt.Sprintf("no fake for %s %s.%s", q.RequestType, q.AccountID, q.MethodName),
	}
}
