package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Structural validation errors
const (
	// ErrCodeMissingNode indicates an edge endpoint that names no node.
	ErrCodeMissingNode ErrorCode = "EDGE_REFERENCES_MISSING_NODE"
	// ErrCodeSelfLoop indicates an edge whose endpoints are the same node.
	ErrCodeSelfLoop ErrorCode = "SELF_LOOP"
	// ErrCodeGateNever indicates a gate whose outgoing edge can never be taken.
	ErrCodeGateNever ErrorCode = "GATE_HAS_NEVER_CONDITION"
	// ErrCodeCycle indicates the edge relation is not acyclic.
	ErrCodeCycle ErrorCode = "CYCLE_DETECTED"
	// ErrCodeDuplicateNode indicates two nodes share an id.
	ErrCodeDuplicateNode ErrorCode = "DUPLICATE_NODE_ID"
)

// Schema and decoding errors
const (
	// ErrCodeInvalidGraph indicates a graph document that violates the schema.
	ErrCodeInvalidGraph ErrorCode = "INVALID_GRAPH"
	// ErrCodeInvalidNodeID indicates a string that is not a legal node id.
	ErrCodeInvalidNodeID ErrorCode = "INVALID_NODE_ID"
)

// Execution errors
const (
	// ErrCodeTaskFailed indicates a task runner reported failure.
	ErrCodeTaskFailed ErrorCode = "TASK_FAILED"
	// ErrCodeGateFailed indicates a gate could not be evaluated.
	ErrCodeGateFailed ErrorCode = "GATE_FAILED"
	// ErrCodeNodeFailed indicates a fanout, fanin or collect hook failed.
	ErrCodeNodeFailed ErrorCode = "NODE_FAILED"
	// ErrCodeTimeout indicates a node exceeded its deadline.
	ErrCodeTimeout ErrorCode = "TIMEOUT"
)

// Expression errors
const (
	// ErrCodeExprSyntax indicates an expression that does not parse.
	ErrCodeExprSyntax ErrorCode = "EXPRESSION_SYNTAX"
	// ErrCodeExprRuntime indicates an expression that failed while evaluating.
	ErrCodeExprRuntime ErrorCode = "EXPRESSION_RUNTIME"
	// ErrCodeExprType indicates an expression that did not yield a boolean.
	ErrCodeExprType ErrorCode = "EXPRESSION_TYPE"
)

// Infrastructure errors
const (
	// ErrCodeNotFound indicates the requested resource was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeStorage indicates the definition or run store failed.
	ErrCodeStorage ErrorCode = "STORAGE_ERROR"
	// ErrCodeInvalidConfig indicates a configuration value that cannot be used.
	ErrCodeInvalidConfig ErrorCode = "INVALID_CONFIG"
	// ErrCodeInternal indicates an unexpected internal error.
	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeTaskFailed: true,
	ErrCodeTimeout:    true,
	ErrCodeStorage:    true,
	ErrCodeInternal:   false,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
