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
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blolt/municipal-agent/internal/sandbox"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(ManagerConfig{
		Sandbox: sandbox.NewGuard(t.TempDir()),
		Logger:  testLogger(),
	})
	t.Cleanup(m.Shutdown)
	return m
}

func TestManagerLifecycle(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, ManagerUninitialized, m.State())

	configs := []WorkerConfig{
		fakeWorkerConfig("files", map[string]string{"FAKE_WORKER_TOOLS": "read_file,write_file"}),
		fakeWorkerConfig("utils", map[string]string{"FAKE_WORKER_TOOLS": "echo_args"}),
	}
	require.NoError(t, m.Initialize(context.Background(), configs))
	require.Equal(t, ManagerReady, m.State())

	tools, err := m.ListAllTools(context.Background())
	require.NoError(t, err)
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"read_file", "write_file", "echo_args"}, names)

	status := m.ServerStatus()
	assert.Equal(t, "running", status["files"])
	assert.Equal(t, "running", status["utils"])

	result, err := m.ExecuteTool(context.Background(), "echo_args", map[string]any{"message": "hi"}, 0)
	require.NoError(t, err)
	assert.Contains(t, string(result), "called echo_args")

	m.Shutdown()
	assert.Equal(t, ManagerUninitialized, m.State())
	status = m.ServerStatus()
	assert.Equal(t, "stopped", status["files"])
	assert.Equal(t, "stopped", status["utils"])
}

func TestManagerInitializeTwice(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("solo", nil),
	}))

	err := m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("solo", nil),
	})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNotReady, CodeOf(err))
}

func TestManagerWorkerFailureIsolation(t *testing.T) {
	m := newTestManager(t)

	broken := fakeWorkerConfig("broken", map[string]string{"FAKE_WORKER_MODE": "no-init"})
	broken.Timeout = time.Second

	// One worker refusing its handshake must not abort fleet startup.
	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		broken,
		fakeWorkerConfig("healthy", map[string]string{"FAKE_WORKER_TOOLS": "echo_args"}),
	}))
	require.Equal(t, ManagerReady, m.State())

	tools, err := m.ListAllTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "echo_args", tools[0].Name)

	_, err = m.ExecuteTool(context.Background(), "echo_args", nil, 0)
	assert.NoError(t, err)
}

func TestManagerToolCollisionLastWins(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("first", map[string]string{"FAKE_WORKER_TOOLS": "shared_tool,only_first"}),
		fakeWorkerConfig("second", map[string]string{"FAKE_WORKER_TOOLS": "shared_tool"}),
	}))

	m.mu.RLock()
	owner := m.registry["shared_tool"]
	m.mu.RUnlock()
	assert.Equal(t, "second", owner)

	// Non-colliding tools keep their original owner.
	m.mu.RLock()
	owner = m.registry["only_first"]
	m.mu.RUnlock()
	assert.Equal(t, "first", owner)
}

func TestManagerExecuteUnknownTool(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("known", nil),
	}))

	_, err := m.ExecuteTool(context.Background(), "no_such_tool", nil, 0)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeToolNotFound, CodeOf(err))
	assert.True(t, IsClientFault(err))
}

func TestManagerExecuteBeforeInitialize(t *testing.T) {
	m := newTestManager(t)

	_, err := m.ExecuteTool(context.Background(), "echo_args", nil, 0)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNotReady, CodeOf(err))

	_, err = m.ListAllTools(context.Background())
	require.Error(t, err)
	assert.Equal(t, ErrorCodeNotReady, CodeOf(err))
}

func TestManagerSandboxRewrite(t *testing.T) {
	root := t.TempDir()
	m := NewManager(ManagerConfig{
		Sandbox: sandbox.NewGuard(root),
		Logger:  testLogger(),
	})
	t.Cleanup(m.Shutdown)

	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("fs", map[string]string{"FAKE_WORKER_TOOLS": "read_file,write_file"}),
	}))

	// Relative paths are rewritten to sandbox-absolute before forwarding;
	// the fake worker echoes its arguments back.
	result, err := m.ExecuteTool(context.Background(), "read_file", map[string]any{
		"path": "notes/a.txt",
	}, 0)
	require.NoError(t, err)

	var decoded struct {
		Arguments map[string]any `json:"arguments"`
	}
	require.NoError(t, json.Unmarshal(result, &decoded))

	got, ok := decoded.Arguments["path"].(string)
	require.True(t, ok)
	assert.True(t, filepath.IsAbs(got))
	assert.Equal(t, "a.txt", filepath.Base(got))
}

func TestManagerSandboxRejectsEscape(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("fs", map[string]string{"FAKE_WORKER_TOOLS": "read_file"}),
	}))

	_, err := m.ExecuteTool(context.Background(), "read_file", map[string]any{
		"path": "../../etc/passwd",
	}, 0)
	require.Error(t, err)
	assert.Equal(t, ErrorCodePathValidation, CodeOf(err))
	assert.True(t, IsClientFault(err))
}

func TestManagerTimeoutOverride(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("sluggish", nil),
	}))

	// An override shorter than any worker roundtrip bounds the call.
	start := time.Now()
	_, err := m.ExecuteTool(context.Background(), "echo_args", nil, time.Nanosecond)
	require.Error(t, err)
	assert.Equal(t, ErrorCodeTimeout, CodeOf(err))
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestManagerTimeoutOverrideExtends(t *testing.T) {
	m := newTestManager(t)

	slow := fakeWorkerConfig("slow", map[string]string{
		"FAKE_WORKER_CALL_DELAY_MS": "2000",
	})
	slow.Timeout = 500 * time.Millisecond
	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{slow}))

	// An override longer than the worker's configured timeout replaces
	// it, so a reply slower than the configured bound still succeeds.
	result, err := m.ExecuteTool(context.Background(), "echo_args", nil, 10*time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(result), "called echo_args")
}

func TestManagerReload(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.Initialize(context.Background(), []WorkerConfig{
		fakeWorkerConfig("old", map[string]string{"FAKE_WORKER_TOOLS": "old_tool"}),
	}))

	require.NoError(t, m.Reload(context.Background(), []WorkerConfig{
		fakeWorkerConfig("new", map[string]string{"FAKE_WORKER_TOOLS": "new_tool"}),
	}))
	require.Equal(t, ManagerReady, m.State())

	tools, err := m.ListAllTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "new_tool", tools[0].Name)

	status := m.ServerStatus()
	assert.Contains(t, status, "new")
	assert.NotContains(t, status, "old")
}
