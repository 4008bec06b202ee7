package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// AppError is the unified dagflow error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details identifies the offending node, edge or field.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an *AppError with the same code, so
// errors.Is(err, &AppError{Code: ErrCodeCycle}) matches any cycle error.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Code returns the code of the first AppError in err's chain, or "" if none.
func Code(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// HasCode reports whether err's chain contains an AppError with the given code.
func HasCode(err error, code ErrorCode) bool {
	return stderrors.Is(err, &AppError{Code: code})
}

// IsRetryable reports whether err should be retried. Errors that are not
// AppErrors are considered retryable; the caller decides the attempt budget.
func IsRetryable(err error) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Retryable
	}
	return true
}

// --- Common Error Constructors ---

// MissingNode reports an edge whose endpoint names no node.
func MissingNode(from, to, missing string) *AppError {
	return &AppError{
		Code:    ErrCodeMissingNode,
		Message: fmt.Sprintf("edge %s -> %s references missing node %q", from, to, missing),
		Details: map[string]any{"from": from, "to": to, "node": missing},
	}
}

// SelfLoop reports an edge from a node to itself.
func SelfLoop(node string) *AppError {
	return &AppError{
		Code:    ErrCodeSelfLoop,
		Message: fmt.Sprintf("edge %s -> %s is a self-loop", node, node),
		Details: map[string]any{"from": node, "to": node},
	}
}

// GateNever reports a gate whose outgoing edge carries the never condition.
func GateNever(gate, to string) *AppError {
	return &AppError{
		Code:    ErrCodeGateNever,
		Message: fmt.Sprintf("gate %q has outgoing edge to %q with condition \"never\"", gate, to),
		Details: map[string]any{"node": gate, "from": gate, "to": to},
	}
}

// Cycle reports a cycle found through the given path of node ids.
func Cycle(path []string) *AppError {
	return &AppError{
		Code:    ErrCodeCycle,
		Message: fmt.Sprintf("cycle detected: %s", strings.Join(path, " -> ")),
		Details: map[string]any{"path": path},
	}
}

// DuplicateNode reports two nodes sharing an id.
func DuplicateNode(id string) *AppError {
	return &AppError{
		Code:    ErrCodeDuplicateNode,
		Message: fmt.Sprintf("node id %q is declared more than once", id),
		Details: map[string]any{"node": id},
	}
}

// InvalidGraph reports a schema violation in a graph document.
func InvalidGraph(message string) *AppError {
	return New(ErrCodeInvalidGraph, message)
}

// InvalidNodeID reports a string that does not match the node id grammar.
func InvalidNodeID(value string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidNodeID,
		Message: fmt.Sprintf("invalid node id %q: must match ^[a-zA-Z][a-zA-Z0-9_]*$", value),
		Details: map[string]any{"value": value},
	}
}

// TaskFailed wraps a task runner failure for the given node.
func TaskFailed(node string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeTaskFailed,
		Message:   fmt.Sprintf("task %q failed", node),
		Retryable: true,
		Details:   map[string]any{"node": node},
		Cause:     cause,
	}
}

// GateFailed wraps a gate evaluation failure for the given node.
func GateFailed(node string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeGateFailed,
		Message: fmt.Sprintf("gate %q could not be evaluated", node),
		Details: map[string]any{"node": node},
		Cause:   cause,
	}
}

// NodeFailed wraps a failure of a structural or collect node hook.
func NodeFailed(node, kind string, cause error) *AppError {
	return &AppError{
		Code:    ErrCodeNodeFailed,
		Message: fmt.Sprintf("%s node %q failed", kind, node),
		Details: map[string]any{"node": node, "kind": kind},
		Cause:   cause,
	}
}

// Timeout reports a node that exceeded its deadline.
func Timeout(node string) *AppError {
	return &AppError{
		Code:      ErrCodeTimeout,
		Message:   fmt.Sprintf("node %q exceeded its timeout", node),
		Retryable: true,
		Details:   map[string]any{"node": node},
	}
}

// NotFound creates a new AppError for a resource that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s %q was not found", resource, id),
		Details: details,
	}
}

// Storage wraps a store failure.
func Storage(operation string, cause error) *AppError {
	return &AppError{
		Code:      ErrCodeStorage,
		Message:   fmt.Sprintf("store operation %s failed", operation),
		Retryable: true,
		Details:   map[string]any{"operation": operation},
		Cause:     cause,
	}
}

// Internal creates a new AppError for an unexpected error.
func Internal(cause error) *AppError {
	return &AppError{
		Code:    ErrCodeInternal,
		Message: "an unexpected error occurred",
		Cause:   cause,
	}
}
