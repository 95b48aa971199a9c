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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// newHealthCommand creates the 'health' command.
func newHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show daemon and worker fleet health",
		Example: `  # Example 1: Check daemon health
  execctl health

  # Example 2: Get health as JSON
  execctl health --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealth(cmd.Context())
		},
	}
}

func runHealth(ctx context.Context) error {
	data, err := newAPIClient().get(ctx, "/health")
	if err != nil {
		return err
	}

	if outputJSON {
		fmt.Println(string(data))
		return nil
	}

	var resp struct {
		Status     string            `json:"status"`
		Version    string            `json:"version"`
		MCPServers map[string]string `json:"mcp_servers"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	fmt.Printf("Status:  %s\n", resp.Status)
	fmt.Printf("Version: %s\n", resp.Version)

	if len(resp.MCPServers) == 0 {
		fmt.Println("\nNo MCP workers configured.")
		return nil
	}

	names := make([]string, 0, len(resp.MCPServers))
	for name := range resp.MCPServers {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("\nWorkers:")
	for _, name := range names {
		fmt.Printf("  %-20s %s\n", name, resp.MCPServers[name])
	}
	return nil
}
