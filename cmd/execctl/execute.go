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

// newExecuteCommand creates the 'execute' command.
func newExecuteCommand() *cobra.Command {
	var (
		argsJSON string
		timeout  int
	)

	cmd := &cobra.Command{
		Use:   "execute <tool>",
		Short: "Execute a tool by name",
		Args:  cobra.ExactArgs(1),
		Example: `  # Example 1: Read a file from the sandbox
  execctl execute read_file --args '{"path":"notes/a.txt"}'

  # Example 2: Execute with a 60 second timeout
  execctl execute search_files --args '{"pattern":"*.md"}' --timeout 60`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExecute(cmd.Context(), args[0], argsJSON, timeout)
		},
	}

	cmd.Flags().StringVar(&argsJSON, "args", "{}", "Tool arguments as a JSON object")
	cmd.Flags().IntVar(&timeout, "timeout", 0, "Per-call timeout in seconds (0 uses the worker default)")

	return cmd
}

func runExecute(ctx context.Context, tool, argsJSON string, timeout int) error {
	var arguments map[string]any
	if err := json.Unmarshal([]byte(argsJSON), &arguments); err != nil {
		return fmt.Errorf("invalid --args: %w", err)
	}

	body := map[string]any{
		"tool_name": tool,
		"arguments": arguments,
	}
	if timeout > 0 {
		body["timeout"] = timeout
	}

	data, err := newAPIClient().post(ctx, "/execute", body)
	if err != nil {
		return err
	}

	if outputJSON {
		fmt.Println(string(data))
		return nil
	}

	var resp struct {
		Status string          `json:"status"`
		Output json.RawMessage `json:"output"`
		Error  *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		ExecutionTimeMS int64 `json:"execution_time_ms"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status != "success" {
		if resp.Error != nil {
			return fmt.Errorf("%s: %s", resp.Error.Code, resp.Error.Message)
		}
		return fmt.Errorf("execution failed")
	}

	pretty, err := json.MarshalIndent(resp.Output, "", "  ")
	if err != nil {
		fmt.Println(string(resp.Output))
	} else {
		fmt.Println(string(pretty))
	}
	fmt.Printf("\nCompleted in %dms\n", resp.ExecutionTimeMS)
	return nil
}
