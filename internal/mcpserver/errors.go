package mcpserver

import (
	stderrors "errors"

	kberrors "github.com/ragit-kb/ragit/internal/errors"
)

// JSON-RPC error codes, plus a small block of ragit-specific ones in the
// server error range the protocol reserves for implementations.
const (
	errCodeInvalidParams = -32602
	errCodeInternalError = -32603
	errCodeUnavailable   = -32010
)

// mcpError is the value returned to the MCP client in place of a bare Go
// error, matching what the SDK expects a tool handler's error to carry.
type mcpError struct {
	Code    int
	Message string
}

func (e *mcpError) Error() string {
	return e.Message
}

func newInvalidParamsError(msg string) *mcpError {
	return &mcpError{Code: errCodeInvalidParams, Message: msg}
}

func newUnavailableError(msg string) *mcpError {
	return &mcpError{Code: errCodeUnavailable, Message: msg}
}

// mapError turns an internal error into an mcpError, preserving the
// KBError's suggestion text when one is present.
func mapError(err error) *mcpError {
	if err == nil {
		return nil
	}
	var kbErr *kberrors.KBError
	if stderrors.As(err, &kbErr) {
		msg := kbErr.Message
		if kbErr.Suggestion != "" {
			msg = msg + " (" + kbErr.Suggestion + ")"
		}
		return &mcpError{Code: errCodeInternalError, Message: msg}
	}
	return &mcpError{Code: errCodeInternalError, Message: err.Error()}
}
