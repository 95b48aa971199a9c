// Copyright 2025 The Municipal Agent Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package mcp

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode represents a category of execution error.
type ErrorCode string

const (
	// ErrorCodeSpawnFailed indicates a worker executable could not be started.
	ErrorCodeSpawnFailed ErrorCode = "SPAWN_FAILED"
	// ErrorCodeHandshakeFailed indicates the MCP handshake did not complete.
	ErrorCodeHandshakeFailed ErrorCode = "HANDSHAKE_FAILED"
	// ErrorCodeNotConnected indicates a call was issued before connect.
	ErrorCodeNotConnected ErrorCode = "NOT_CONNECTED"
	// ErrorCodeTimeout indicates a call exceeded its deadline.
	ErrorCodeTimeout ErrorCode = "TIMEOUT"
	// ErrorCodeProtocol indicates the worker returned an explicit JSON-RPC error.
	ErrorCodeProtocol ErrorCode = "PROTOCOL"
	// ErrorCodeMalformedResponse indicates an unparseable response line.
	ErrorCodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"
	// ErrorCodeConnectionClosed indicates the worker closed its stdout.
	ErrorCodeConnectionClosed ErrorCode = "CONNECTION_CLOSED"
	// ErrorCodeToolNotFound indicates the tool name is not in the registry.
	ErrorCodeToolNotFound ErrorCode = "TOOL_NOT_FOUND"
	// ErrorCodeWorkerUnavailable indicates the owning worker has no live connection.
	ErrorCodeWorkerUnavailable ErrorCode = "WORKER_UNAVAILABLE"
	// ErrorCodePathValidation indicates a path argument escaped the sandbox.
	ErrorCodePathValidation ErrorCode = "PATH_VALIDATION"
	// ErrorCodeNotReady indicates the manager is not in the Ready state.
	ErrorCodeNotReady ErrorCode = "NOT_READY"
)

// ExecError is the typed error returned by the execution runtime.
type ExecError struct {
	// Code is the error category.
	Code ErrorCode
	// Worker is the worker name the error relates to, if any.
	Worker string
	// Message is the primary error message.
	Message string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ExecError) Error() string {
	if e.Worker != "" {
		return fmt.Sprintf("%s: worker %q: %s", e.Code, e.Worker, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ExecError) Unwrap() error {
	return e.Cause
}

// CodeOf extracts the ErrorCode from an error chain. Returns an empty code
// for errors that are not ExecErrors.
func CodeOf(err error) ErrorCode {
	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.Code
	}
	return ""
}

// IsClientFault reports whether the error was caused by the caller rather
// than the service (used by the façade to avoid logging client errors as
// server faults).
func IsClientFault(err error) bool {
	switch CodeOf(err) {
	case ErrorCodeToolNotFound, ErrorCodePathValidation:
		return true
	}
	return false
}

// ErrSpawn creates an error for a worker that could not be started.
func ErrSpawn(worker string, cause error) *ExecError {
	return &ExecError{
		Code:    ErrorCodeSpawnFailed,
		Worker:  worker,
		Message: fmt.Sprintf("failed to start worker process: %v", cause),
		Cause:   cause,
	}
}

// ErrHandshake creates an error for a failed MCP handshake.
func ErrHandshake(worker string, cause error) *ExecError {
	return &ExecError{
		Code:    ErrorCodeHandshakeFailed,
		Worker:  worker,
		Message: fmt.Sprintf("handshake failed: %v", cause),
		Cause:   cause,
	}
}

// ErrNotConnected creates an error for a call issued before connect.
func ErrNotConnected(worker string) *ExecError {
	return &ExecError{
		Code:    ErrorCodeNotConnected,
		Worker:  worker,
		Message: "not connected",
	}
}

// ErrTimeout creates an error for a call that exceeded its deadline.
func ErrTimeout(worker string, bound time.Duration) *ExecError {
	return &ExecError{
		Code:    ErrorCodeTimeout,
		Worker:  worker,
		Message: fmt.Sprintf("call timed out after %s", bound),
	}
}

// ErrProtocol creates an error for an explicit JSON-RPC error response.
func ErrProtocol(worker, remoteMessage string) *ExecError {
	return &ExecError{
		Code:    ErrorCodeProtocol,
		Worker:  worker,
		Message: remoteMessage,
	}
}

// ErrMalformedResponse creates an error for an unparseable response line.
func ErrMalformedResponse(worker string, cause error) *ExecError {
	return &ExecError{
		Code:    ErrorCodeMalformedResponse,
		Worker:  worker,
		Message: fmt.Sprintf("invalid JSON response: %v", cause),
		Cause:   cause,
	}
}

// ErrConnectionClosed creates an error for a worker whose stdio pipes are
// no longer usable. cause, when non-nil, is the read or write error that
// surfaced the closure.
func ErrConnectionClosed(worker string, cause error) *ExecError {
	msg := "connection closed"
	if cause != nil {
		msg = fmt.Sprintf("connection closed: %v", cause)
	}
	return &ExecError{
		Code:    ErrorCodeConnectionClosed,
		Worker:  worker,
		Message: msg,
		Cause:   cause,
	}
}

// ErrToolNotFound creates an error for an unregistered tool name.
func ErrToolNotFound(tool string) *ExecError {
	return &ExecError{
		Code:    ErrorCodeToolNotFound,
		Message: fmt.Sprintf("tool %q not found in registry", tool),
	}
}

// ErrWorkerUnavailable creates an error for a registered tool whose worker
// has no live connection.
func ErrWorkerUnavailable(worker string) *ExecError {
	return &ExecError{
		Code:    ErrorCodeWorkerUnavailable,
		Worker:  worker,
		Message: "worker is not available",
	}
}

// ErrPathValidation wraps a sandbox violation.
func ErrPathValidation(cause error) *ExecError {
	return &ExecError{
		Code:    ErrorCodePathValidation,
		Message: fmt.Sprintf("path validation failed: %v", cause),
		Cause:   cause,
	}
}

// ErrNotReady creates an error for an operation attempted outside the
// Ready state.
func ErrNotReady(state ManagerState) *ExecError {
	return &ExecError{
		Code:    ErrorCodeNotReady,
		Message: fmt.Sprintf("manager is %s", state),
	}
}
