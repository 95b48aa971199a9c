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
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRuntimeStartStop(t *testing.T) {
	r := NewRuntime(testLogger())
	t.Cleanup(r.StopAll)

	stdout, stdin, err := r.Start(fakeWorkerConfig("alpha", nil))
	require.NoError(t, err)
	require.NotNil(t, stdout)
	require.NotNil(t, stdin)

	assert.True(t, r.IsRunning("alpha"))

	r.Stop("alpha")
	assert.False(t, r.IsRunning("alpha"))
}

func TestRuntimeStartBadCommand(t *testing.T) {
	r := NewRuntime(testLogger())

	_, _, err := r.Start(WorkerConfig{
		Name:    "missing",
		Command: "/nonexistent/binary-that-does-not-exist",
	})
	require.Error(t, err)
	assert.Equal(t, ErrorCodeSpawnFailed, CodeOf(err))
	assert.False(t, r.IsRunning("missing"))
}

func TestRuntimeStopUnknownIsNoop(t *testing.T) {
	r := NewRuntime(testLogger())
	r.Stop("never-started")
}

func TestRuntimeStopAll(t *testing.T) {
	r := NewRuntime(testLogger())

	for _, name := range []string{"one", "two", "three"} {
		_, _, err := r.Start(fakeWorkerConfig(name, nil))
		require.NoError(t, err)
	}

	r.StopAll()

	for _, name := range []string{"one", "two", "three"} {
		assert.False(t, r.IsRunning(name), name)
	}
}

func TestRuntimeIsRunningAfterExit(t *testing.T) {
	r := NewRuntime(testLogger())
	t.Cleanup(r.StopAll)

	_, stdin, err := r.Start(fakeWorkerConfig("short", nil))
	require.NoError(t, err)

	// The fake worker exits when stdin closes.
	require.NoError(t, stdin.Close())

	assert.Eventually(t, func() bool {
		return !r.IsRunning("short")
	}, 5*time.Second, 20*time.Millisecond)
}
