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

/*
Package mcp implements the Model Context Protocol (MCP) tool execution
runtime for the execution service.

MCP workers are subprocesses that expose named tools over newline-delimited
JSON-RPC 2.0 on stdin/stdout. This package handles worker lifecycle, the
connection handshake, tool discovery, and tool-call routing.

The implementation consists of several components:

  - Runtime: OS-level worker lifecycle (spawn, graceful stop, forced kill)
  - Client: per-worker protocol connection (handshake, framed requests)
  - Manager: fleet initialization, the tool routing table, and unified
    list/execute operations
  - Watcher: config-file hot reload

# Worker lifecycle

	rt := mcp.NewRuntime(logger)
	mgr := mcp.NewManager(mcp.ManagerConfig{
	    Runtime: rt,
	    Sandbox: sandbox.NewGuard("/tmp/execution-sandbox"),
	    Logger:  logger,
	})

	err := mgr.Initialize(ctx, []mcp.WorkerConfig{{
	    Name:    "filesystem",
	    Command: "npx",
	    Args:    []string{"-y", "@modelcontextprotocol/server-filesystem"},
	    Timeout: 30 * time.Second,
	}})

A worker that fails to spawn or complete its handshake is logged and
excluded from the fleet; the remaining workers initialize normally.

# Tool invocation

	result, err := mgr.ExecuteTool(ctx, "read_file", map[string]any{
	    "path": "notes/today.md",
	}, 0)

Path-like arguments of filesystem tools are validated against the sandbox
root and rewritten to absolute form before the call reaches a worker.

# Connection model

Each worker connection carries at most one in-flight request: responses are
matched to requests by reading the next stdout line, so Call serializes
per worker (concurrent calls to different workers proceed independently).
A call that times out poisons the line ordering; the client therefore moves
to the failed state and stops its worker rather than risk handing a stale
response to a later call.
*/
package mcp
