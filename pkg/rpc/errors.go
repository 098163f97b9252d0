package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/rpc/v2/json2"
)

// Error is a JSON-RPC error returned by the node.
type Error struct {
	Method  string
	Code    int
	Message string
	Data    interface{}

	// Name and Cause carry the node's error taxonomy, e.g. HANDLER_ERROR and
	// UNKNOWN_TRANSACTION, when present.
	Name  string
	Cause string
}

func newError(method string, jerr *json2.Error, body []byte) *Error {
	e := &Error{
		Method:  method,
		Code:    int(jerr.Code),
		Message: jerr.Message,
		Data:    jerr.Data,
	}

	var detail struct {
		Error struct {
			Name  string `json:"name"`
			Cause struct {
				Name string `json:"name"`
			} `json:"cause"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &detail); err == nil {
		e.Name = detail.Error.Name
		e.Cause = detail.Error.Cause.Name
	}
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: rpc error %d: %s", e.Method, e.Code, e.Message)
	if e.Cause != "" {
		fmt.Fprintf(&b, " (%s)", e.Cause)
	}
	if e.Data != nil {
		fmt.Fprintf(&b, ": %v", e.Data)
	}
	return b.String()
}

// QueryError is a contract-level failure reported inside a query result.
type QueryError struct {
	Message string
	Logs    []string
}

func (e *QueryError) Error() string {
	return "query failed: " + e.Message
}

// ErrorLogs returns the diagnostic log lines attached to err, if any.
func ErrorLogs(err error) []string {
	var qerr *QueryError
	if errors.As(err, &qerr) {
		return qerr.Logs
	}
	return nil
}

// IsCause reports whether err is an *Error with the given cause name.
func IsCause(err error, cause string) bool {
	var rerr *Error
	return errors.As(err, &rerr) && rerr.Cause == cause
}
