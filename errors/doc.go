// Package errors provides the structured error type shared by every dagflow
// package. Each error carries a machine-readable code, a human-readable
// message, optional details identifying the offending node or edge, and an
// optional cause.
//
// Structural validation, expression evaluation, task execution and storage
// all report through AppError so callers can branch on Code(err) instead of
// matching message text.
package errors
