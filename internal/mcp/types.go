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
	"encoding/json"
	"time"
)

// ProtocolVersion is the MCP protocol revision sent during the handshake.
const ProtocolVersion = "2024-11-05"

// clientName and clientVersion identify this client in the handshake.
const (
	clientName    = "municipal-agent-execution"
	clientVersion = "0.1.0"
)

// WorkerConfig is the immutable descriptor for one MCP worker. Created from
// static configuration at startup; never mutated.
type WorkerConfig struct {
	// Name is the unique identifier for this worker.
	Name string

	// Command is the executable to run.
	Command string

	// Args are the command-line arguments.
	Args []string

	// Env are environment variable overrides merged onto the process
	// environment.
	Env map[string]string

	// Timeout bounds each protocol call (defaults to 30s).
	Timeout time.Duration

	// Description is a human-readable summary of the worker.
	Description string
}

// ToolDefinition represents an MCP tool discovered from a worker.
// Maps to the MCP protocol's Tool schema.
type ToolDefinition struct {
	// Name is the unique identifier for this tool.
	Name string `json:"name"`

	// Description explains what the tool does.
	Description string `json:"description"`

	// InputSchema defines the expected input parameters using JSON Schema.
	InputSchema json.RawMessage `json:"inputSchema"`
}

// request is an outbound JSON-RPC request. Requests carry an id and expect
// a matching response.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// notification is an outbound JSON-RPC notification: no id, no response.
type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// response is an inbound JSON-RPC response line, either a result or an
// error. Parsed eagerly so malformed messages are caught at the boundary.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

// rpcError is the error member of a JSON-RPC response.
type rpcError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// initializeParams is the payload of the initialize handshake request.
type initializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      clientInfo     `json:"clientInfo"`
}

type clientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// initializeResult carries the fields of the handshake response that are
// read for logging. Presence is checked but not strictly validated.
type initializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// listToolsResult is the result shape of a tools/list call.
type listToolsResult struct {
	Tools []ToolDefinition `json:"tools"`
}

// callToolParams is the params shape of a tools/call request.
type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}
