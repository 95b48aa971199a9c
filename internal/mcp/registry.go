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
	"context"
	"log/slog"
)

// buildRegistry queries every connected client for its tools and returns the
// tool-name to worker-name routing table.
//
// Clients are iterated in the given order (the configured order), and a tool
// name declared by two workers is owned by the last one processed: the
// collision is logged as a warning, not an error. A client whose tools/list
// fails contributes zero tools; the failure never aborts the rebuild.
func buildRegistry(ctx context.Context, clients []*Client, logger *slog.Logger) map[string]string {
	registry := make(map[string]string)

	for _, client := range clients {
		tools, err := client.ListTools(ctx)
		if err != nil {
			logger.Error("failed to list tools from worker",
				"server", client.ServerName(),
				"error", err,
			)
			continue
		}

		for _, tool := range tools {
			if previous, exists := registry[tool.Name]; exists {
				logger.Warn("tool name collision, overwriting owner",
					"tool", tool.Name,
					"previous", previous,
					"server", client.ServerName(),
				)
				toolCollisions.Inc()
			}
			registry[tool.Name] = client.ServerName()
			logger.Debug("registered tool",
				"tool", tool.Name,
				"server", client.ServerName(),
			)
		}
	}

	logger.Info("tool registry built", "tools", len(registry))
	return registry
}
