package provider

import (
	"fmt"
	"strings"
)

// JSON-RPC / EIP-1193 error codes used by the provider.
const (
	ErrorCodeUserRejected      = 4001
	ErrorCodeUnauthorized      = 4100
	ErrorCodeUnsupportedMethod = 4200
	ErrorCodeUnsupportedChain  = 4902

	ErrorCodeInvalidRequest = -32600
	ErrorCodeMethodNotFound = -32601
	ErrorCodeInvalidParams  = -32602
	ErrorCodeInternal       = -32603
)

// Error is the canonical structured error shape. Every failure leaving
// a public entry point is serialized into this form; no unstructured
// error ever crosses the boundary.
type Error struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

func errInvalidRequest(message string, data interface{}) *Error {
	return &Error{Code: ErrorCodeInvalidRequest, Message: message, Data: data}
}

func errInvalidParams(message string) *Error {
	return &Error{Code: ErrorCodeInvalidParams, Message: message}
}

func errUnauthorized() *Error {
	return &Error{Code: ErrorCodeUnauthorized, Message: "method requires prior authorization via eth_requestAccounts"}
}

func errUnsupportedMethod(method string) *Error {
	return &Error{Code: ErrorCodeUnsupportedMethod, Message: fmt.Sprintf("method %s is not supported", method)}
}

// Serialize normalizes any error into the structured shape. Structured
// errors pass through unchanged, everything else becomes an internal
// error carrying the original message.
func Serialize(err error) *Error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(*Error); ok {
		return perr
	}
	return &Error{Code: ErrorCodeInternal, Message: err.Error()}
}

// User rejection messages, method specific.
const (
	deniedMessageSignature     = "User denied message signature"
	deniedAccountAuthorization = "User denied account authorization"
	deniedTransactionSignature = "User denied transaction signature"
)

// translateRejection inspects a relay failure exactly once: a message
// containing "denied" or "rejected" (any casing) becomes a canonical
// user-rejected error with the given method specific message; anything
// else propagates unchanged.
func translateRejection(err error, message string) error {
	if err == nil {
		return nil
	}
	lowered := strings.ToLower(err.Error())
	if strings.Contains(lowered, "denied") || strings.Contains(lowered, "rejected") {
		return &Error{Code: ErrorCodeUserRejected, Message: message}
	}
	return err
}
