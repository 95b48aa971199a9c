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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/blolt/municipal-agent/internal/auth"
)

// newTokenCommand creates the 'token' command.
func newTokenCommand() *cobra.Command {
	var (
		service string
		secret  string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a service token for API access",
		Long: `Mint a short-lived HS256 service token signed with the shared secret.

The secret must match the daemon's SERVICE_AUTH_SECRET, and the service
name must be on the daemon's allow list.`,
		Example: `  # Example 1: Mint a token for one hour
  execctl token --service orchestration-service

  # Example 2: Use the token with other commands
  export EXECD_TOKEN=$(execctl token --service orchestration-service)
  execctl tools`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("SERVICE_AUTH_SECRET")
			}
			if secret == "" {
				return fmt.Errorf("no signing secret: set --secret or SERVICE_AUTH_SECRET")
			}

			token, err := auth.GenerateToken(service, []byte(secret), ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "Service name to embed as the token subject")
	cmd.Flags().StringVar(&secret, "secret", "", "Signing secret (defaults to SERVICE_AUTH_SECRET)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("service")

	return cmd
}
