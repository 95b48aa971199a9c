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

	"github.com/spf13/cobra"
)

// newToolsCommand creates the 'tools' command.
func newToolsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List tools aggregated across the worker fleet",
		Example: `  # Example 1: List available tools
  execctl tools

  # Example 2: Extract tool names for scripting
  execctl tools --json | jq -r '.tools[].name'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTools(cmd.Context())
		},
	}
}

func runTools(ctx context.Context) error {
	data, err := newAPIClient().get(ctx, "/tools")
	if err != nil {
		return err
	}

	if outputJSON {
		fmt.Println(string(data))
		return nil
	}

	var resp struct {
		Tools []struct {
			Name        string `json:"name"`
			Description string `json:"description"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if len(resp.Tools) == 0 {
		fmt.Println("No tools available.")
		return nil
	}

	for _, tool := range resp.Tools {
		fmt.Printf("%-28s %s\n", tool.Name, tool.Description)
	}
	return nil
}
