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

package api

import (
	"encoding/json"

	"github.com/blolt/municipal-agent/internal/mcp"
)

// ExecuteRequest is the body of POST /execute.
type ExecuteRequest struct {
	// ToolName is the registered tool to invoke.
	ToolName string `json:"tool_name"`

	// Arguments are forwarded to the tool verbatim, after sandbox path
	// rewriting for filesystem tools.
	Arguments map[string]any `json:"arguments"`

	// Timeout, in seconds, overrides the worker's configured timeout for
	// this call when positive.
	Timeout int `json:"timeout,omitempty"`
}

// ExecuteResponse is the body of POST /execute. Tool failures are reported
// in-band: the endpoint answers 200 with status "error" rather than a 5xx.
type ExecuteResponse struct {
	// Status is "success" or "error".
	Status string `json:"status"`

	// Output is the raw tool result, present on success.
	Output json.RawMessage `json:"output,omitempty"`

	// Error describes the failure, present on error.
	Error *ErrorInfo `json:"error,omitempty"`

	// ExecutionTimeMS is the wall-clock duration of the execution.
	ExecutionTimeMS int64 `json:"execution_time_ms"`
}

// ErrorInfo is a machine-readable execution failure.
type ErrorInfo struct {
	// Code is a stable error code such as TIMEOUT or TOOL_NOT_FOUND.
	Code string `json:"code"`

	// Message is a human-readable description.
	Message string `json:"message"`
}

// ToolListResponse is the body of GET /tools.
type ToolListResponse struct {
	Tools []mcp.ToolDefinition `json:"tools"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	// Status is "healthy" once the worker fleet is initialized,
	// "initializing" before that.
	Status string `json:"status"`

	// Version is the running service version.
	Version string `json:"version"`

	// MCPServers maps worker name to "running" or "stopped".
	MCPServers map[string]string `json:"mcp_servers"`
}
