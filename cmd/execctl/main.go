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

// Command execctl is an operator CLI for the execution daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected via ldflags at build time)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	root := &cobra.Command{
		Use:   "execctl",
		Short: "Control and inspect the tool execution daemon",
		Long: `execctl talks to a running execd instance over its HTTP API.

Commands:
  health    Show daemon and worker fleet health
  tools     List tools aggregated across the worker fleet
  execute   Execute a tool by name
  token     Mint a service token for API access`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
	}

	root.PersistentFlags().StringVar(&daemonURL, "url", defaultDaemonURL(), "Base URL of the execution daemon")
	root.PersistentFlags().StringVar(&bearerToken, "token", os.Getenv("EXECD_TOKEN"), "Service token for authenticated endpoints")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print raw JSON responses")

	root.AddCommand(newHealthCommand())
	root.AddCommand(newToolsCommand())
	root.AddCommand(newExecuteCommand())
	root.AddCommand(newTokenCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defaultDaemonURL() string {
	if url := os.Getenv("EXECD_URL"); url != "" {
		return url
	}
	return "http://localhost:8002"
}
