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
	"net/http"
	"time"

	"github.com/blolt/municipal-agent/internal/log"
	"github.com/blolt/municipal-agent/internal/mcp"
)

// handleHealth reports liveness and per-worker status. Always 200: a
// degraded fleet is visible in the body, not the status code.
func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	status := "initializing"
	if r.manager.State() == mcp.ManagerReady {
		status = "healthy"
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     status,
		Version:    r.config.Version,
		MCPServers: r.manager.ServerStatus(),
	})
}

// handleTools aggregates tool definitions across the worker fleet.
func (r *Router) handleTools(w http.ResponseWriter, req *http.Request) {
	tools, err := r.manager.ListAllTools(req.Context())
	if err != nil {
		if mcp.CodeOf(err) == mcp.ErrorCodeNotReady {
			writeError(w, http.StatusServiceUnavailable, "worker fleet is not initialized")
			return
		}
		r.logger.Error("failed to list tools", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list tools")
		return
	}

	if tools == nil {
		tools = []mcp.ToolDefinition{}
	}
	writeJSON(w, http.StatusOK, ToolListResponse{Tools: tools})
}

// handleExecute routes one tool execution. Execution failures answer 200
// with an in-band error envelope; 503 is reserved for the uninitialized
// fleet and 4xx for requests that never reach a worker.
func (r *Router) handleExecute(w http.ResponseWriter, req *http.Request) {
	var body ExecuteRequest
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if body.ToolName == "" {
		writeError(w, http.StatusBadRequest, "tool_name is required")
		return
	}

	var override time.Duration
	if body.Timeout > 0 {
		override = time.Duration(body.Timeout) * time.Second
	}

	start := time.Now()
	output, err := r.manager.ExecuteTool(req.Context(), body.ToolName, body.Arguments, override)
	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		if mcp.CodeOf(err) == mcp.ErrorCodeNotReady {
			writeError(w, http.StatusServiceUnavailable, "worker fleet is not initialized")
			return
		}

		logger := log.WithRequestID(r.logger, RequestIDFromContext(req.Context()))
		logger.Warn("tool execution failed",
			"tool", body.ToolName,
			"service", ServiceFromContext(req.Context()),
			"error", err,
		)
		writeJSON(w, http.StatusOK, ExecuteResponse{
			Status: "error",
			Error: &ErrorInfo{
				Code:    string(mcp.CodeOf(err)),
				Message: err.Error(),
			},
			ExecutionTimeMS: elapsed,
		})
		return
	}

	writeJSON(w, http.StatusOK, ExecuteResponse{
		Status:          "success",
		Output:          output,
		ExecutionTimeMS: elapsed,
	})
}
