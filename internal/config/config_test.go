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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	s, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8002, s.Port)
	assert.Equal(t, "execution-service", s.ServiceName)
	assert.Equal(t, "/tmp/execution-sandbox", s.SandboxDirectory)
	assert.Equal(t, 30, s.DefaultTimeout)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("PORT", "9100")
	t.Setenv("SANDBOX_DIRECTORY", "/srv/sandbox")
	t.Setenv("ALLOWED_SERVICES", "orchestrator-service, context-service")
	t.Setenv("DEFAULT_TIMEOUT", "10")

	s, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 9100, s.Port)
	assert.Equal(t, "/srv/sandbox", s.SandboxDirectory)
	assert.Equal(t, []string{"orchestrator-service", "context-service"}, s.AllowedServices)
	assert.Equal(t, 10, s.DefaultTimeout)
}

func TestFromEnv_InvalidPort(t *testing.T) {
	t.Setenv("PORT", "not-a-port")

	_, err := FromEnv()
	assert.Error(t, err)
}

func TestLoadWorkers(t *testing.T) {
	path := writeWorkersFile(t, `
defaults:
  timeout: 15
workers:
  - name: filesystem
    command: npx
    args: ["-y", "@modelcontextprotocol/server-filesystem"]
    description: Filesystem tools
  - name: knowledge-graph
    command: python3
    args: ["kg_server.py"]
    env:
      GRAPH_URL: bolt://localhost:7687
    timeout: 60
`)

	workers, err := LoadWorkers(path, 30)
	require.NoError(t, err)
	require.Len(t, workers, 2)

	// Configured order preserved
	assert.Equal(t, "filesystem", workers[0].Name)
	assert.Equal(t, "knowledge-graph", workers[1].Name)

	// File-level default applied to the first, explicit timeout kept on the second
	assert.Equal(t, 15, workers[0].Timeout)
	assert.Equal(t, 60, workers[1].Timeout)
	assert.Equal(t, "bolt://localhost:7687", workers[1].Env["GRAPH_URL"])
}

func TestLoadWorkers_FallbackDefaultTimeout(t *testing.T) {
	path := writeWorkersFile(t, `
workers:
  - name: echo
    command: cat
`)

	workers, err := LoadWorkers(path, 30)
	require.NoError(t, err)
	require.Len(t, workers, 1)
	assert.Equal(t, 30, workers[0].Timeout)
}

func TestLoadWorkers_DuplicateName(t *testing.T) {
	path := writeWorkersFile(t, `
workers:
  - name: fs
    command: cat
  - name: fs
    command: cat
`)

	_, err := LoadWorkers(path, 30)
	assert.ErrorContains(t, err, "duplicate worker name")
}

func TestLoadWorkers_NullEntry(t *testing.T) {
	path := writeWorkersFile(t, `
workers:
  - name: fs
    command: cat
  - null
`)

	_, err := LoadWorkers(path, 30)
	assert.ErrorContains(t, err, "worker entry 1 is null")
}

func TestLoadWorkers_MissingFile(t *testing.T) {
	_, err := LoadWorkers(filepath.Join(t.TempDir(), "missing.yaml"), 30)
	assert.Error(t, err)
}

func TestWorkerEntry_Validate(t *testing.T) {
	tests := []struct {
		name    string
		entry   WorkerEntry
		wantErr string
	}{
		{
			name:  "valid",
			entry: WorkerEntry{Name: "fs-server", Command: "npx", Args: []string{"-y", "pkg"}},
		},
		{
			name:    "missing name",
			entry:   WorkerEntry{Command: "npx"},
			wantErr: "worker name is required",
		},
		{
			name:    "name starts with digit",
			entry:   WorkerEntry{Name: "1fs", Command: "npx"},
			wantErr: "invalid worker name",
		},
		{
			name:    "missing command",
			entry:   WorkerEntry{Name: "fs"},
			wantErr: "command is required",
		},
		{
			name:    "shell injection in arg",
			entry:   WorkerEntry{Name: "fs", Command: "npx", Args: []string{"a; rm -rf /"}},
			wantErr: "unsafe pattern",
		},
		{
			name:    "bad env key",
			entry:   WorkerEntry{Name: "fs", Command: "npx", Env: map[string]string{"1BAD": "x"}},
			wantErr: "invalid environment variable key",
		},
		{
			name:    "negative timeout",
			entry:   WorkerEntry{Name: "fs", Command: "npx", Timeout: -1},
			wantErr: "timeout must be non-negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestRedactEnv(t *testing.T) {
	env := map[string]string{
		"API_KEY":   "s3cr3t",
		"GRAPH_URL": "bolt://localhost:7687",
	}

	redacted := RedactEnv(env)
	assert.Equal(t, "***REDACTED***", redacted["API_KEY"])
	assert.Equal(t, "bolt://localhost:7687", redacted["GRAPH_URL"])
}

func writeWorkersFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mcp_workers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
