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
	"log/slog"
	"sync"
	"time"

	"github.com/blolt/municipal-agent/internal/sandbox"
)

// ManagerState is the lifecycle state of the connection manager.
type ManagerState string

const (
	// ManagerUninitialized is the state before Initialize (and after
	// Shutdown completes).
	ManagerUninitialized ManagerState = "uninitialized"
	// ManagerInitializing means worker connections are being established.
	ManagerInitializing ManagerState = "initializing"
	// ManagerReady means the fleet is initialized and serving.
	ManagerReady ManagerState = "ready"
	// ManagerShuttingDown means Shutdown is in progress.
	ManagerShuttingDown ManagerState = "shutting_down"
)

// filesystemTools is the fixed set of tool names whose path-like arguments
// are validated and rewritten by the sandbox guard before forwarding.
var filesystemTools = map[string]bool{
	"read_file":           true,
	"read_text_file":      true,
	"read_media_file":     true,
	"write_file":          true,
	"edit_file":           true,
	"create_directory":    true,
	"list_directory":      true,
	"move_file":           true,
	"search_files":        true,
	"get_file_info":       true,
	"delete_file":         true,
	"delete_directory":    true,
	"read_multiple_files": true,
}

// Manager owns a fleet of protocol clients, one per configured worker, and
// routes tool executions to the owning worker. Each Manager owns its
// Runtime and clients exclusively.
type Manager struct {
	runtime *Runtime
	guard   *sandbox.Guard
	logger  *slog.Logger

	// mu guards the fields below. Worker and registry maps are written
	// only during Initialize and Shutdown; lookups take the read lock.
	mu      sync.RWMutex
	state   ManagerState
	configs []WorkerConfig
	clients map[string]*Client
	// ordered holds connected clients in configured order, the iteration
	// order for registry rebuilds and aggregation.
	ordered  []*Client
	registry map[string]string
}

// ManagerConfig configures the connection manager.
type ManagerConfig struct {
	// Runtime is the worker process runtime. A fresh one is created when
	// nil; runtimes must never be shared between managers.
	Runtime *Runtime

	// Sandbox validates filesystem tool arguments.
	Sandbox *sandbox.Guard

	// Logger is used for structured logging (optional).
	Logger *slog.Logger
}

// NewManager creates a connection manager in the uninitialized state.
func NewManager(cfg ManagerConfig) *Manager {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runtime := cfg.Runtime
	if runtime == nil {
		runtime = NewRuntime(logger)
	}
	return &Manager{
		runtime:  runtime,
		guard:    cfg.Sandbox,
		logger:   logger,
		state:    ManagerUninitialized,
		clients:  make(map[string]*Client),
		registry: make(map[string]string),
	}
}

// State returns the manager's current lifecycle state.
func (m *Manager) State() ManagerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Initialize connects to every configured worker and builds the tool
// routing table. A worker that fails to connect (or to list its tools) is
// logged and excluded; one worker's failure never aborts initialization of
// the others.
func (m *Manager) Initialize(ctx context.Context, configs []WorkerConfig) error {
	m.mu.Lock()
	if m.state != ManagerUninitialized {
		state := m.state
		m.mu.Unlock()
		return ErrNotReady(state)
	}
	m.state = ManagerInitializing
	m.configs = configs
	m.mu.Unlock()

	m.logger.Info("initializing mcp connections", "workers", len(configs))

	clients := make(map[string]*Client, len(configs))
	ordered := make([]*Client, 0, len(configs))

	for _, config := range configs {
		client := NewClient(config, m.runtime, m.logger)
		if err := client.Connect(ctx); err != nil {
			m.logger.Error("failed to initialize worker, excluding from fleet",
				"server", config.Name,
				"error", err,
			)
			continue
		}
		clients[config.Name] = client
		ordered = append(ordered, client)
	}

	registry := buildRegistry(ctx, ordered, m.logger)

	m.mu.Lock()
	m.clients = clients
	m.ordered = ordered
	m.registry = registry
	m.state = ManagerReady
	m.mu.Unlock()

	connectedWorkers.Set(float64(len(clients)))
	m.logger.Info("connection manager initialized",
		"connected", len(clients),
		"tools", len(registry),
	)
	return nil
}

// ListAllTools re-queries every connected worker live and aggregates the
// results. A single worker's failure is logged and its tools omitted; the
// aggregate still succeeds.
func (m *Manager) ListAllTools(ctx context.Context) ([]ToolDefinition, error) {
	m.mu.RLock()
	if m.state != ManagerReady {
		state := m.state
		m.mu.RUnlock()
		return nil, ErrNotReady(state)
	}
	ordered := m.ordered
	m.mu.RUnlock()

	all := make([]ToolDefinition, 0)
	for _, client := range ordered {
		tools, err := client.ListTools(ctx)
		if err != nil {
			m.logger.Error("failed to get tools from worker",
				"server", client.ServerName(),
				"error", err,
			)
			continue
		}
		all = append(all, tools...)
	}
	return all, nil
}

// ExecuteTool routes one tool execution to the owning worker. For
// filesystem tools, path-like arguments are validated against the sandbox
// and rewritten to absolute form before forwarding; a validation failure
// fails the call without reaching any worker. timeoutOverride, when
// positive, replaces the worker's configured timeout for this call; it may
// be longer or shorter than the configured value.
func (m *Manager) ExecuteTool(ctx context.Context, name string, arguments map[string]any, timeoutOverride time.Duration) (json.RawMessage, error) {
	start := time.Now()
	result, server, err := m.executeTool(ctx, name, arguments, timeoutOverride)
	recordExecution(name, server, time.Since(start).Seconds(), err)
	return result, err
}

func (m *Manager) executeTool(ctx context.Context, name string, arguments map[string]any, timeoutOverride time.Duration) (json.RawMessage, string, error) {
	m.mu.RLock()
	if m.state != ManagerReady {
		state := m.state
		m.mu.RUnlock()
		return nil, "", ErrNotReady(state)
	}
	server, registered := m.registry[name]
	client := m.clients[server]
	m.mu.RUnlock()

	if arguments == nil {
		arguments = map[string]any{}
	}

	if filesystemTools[name] {
		if err := m.rewritePathArguments(name, arguments); err != nil {
			return nil, server, err
		}
	}

	if !registered {
		return nil, "", ErrToolNotFound(name)
	}
	if client == nil {
		return nil, server, ErrWorkerUnavailable(server)
	}

	m.logger.Info("executing tool", "tool", name, "server", server)
	result, err := client.CallTool(ctx, name, arguments, timeoutOverride)
	return result, server, err
}

// rewritePathArguments validates every path-like argument value and
// replaces it in place with the validated absolute path. Any failure fails
// the whole call; no partial rewrites are forwarded.
func (m *Manager) rewritePathArguments(tool string, arguments map[string]any) error {
	paths := sandbox.ExtractPathArguments(arguments)
	if len(paths) == 0 {
		return nil
	}

	m.logger.Debug("validating paths for filesystem tool",
		"tool", tool,
		"paths", len(paths),
	)

	for _, key := range sandbox.PathArgumentKeys() {
		value, ok := arguments[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v == "" {
				continue
			}
			validated, err := m.guard.Validate(v)
			if err != nil {
				return ErrPathValidation(err)
			}
			arguments[key] = validated
		case []any:
			rewritten := make([]any, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					rewritten[i] = item
					continue
				}
				validated, err := m.guard.Validate(s)
				if err != nil {
					return ErrPathValidation(err)
				}
				rewritten[i] = validated
			}
			arguments[key] = rewritten
		case []string:
			validated, err := m.guard.ValidateAll(v)
			if err != nil {
				return ErrPathValidation(err)
			}
			arguments[key] = validated
		}
	}
	return nil
}

// Shutdown disconnects every client, continuing past individual errors,
// then clears the registry and worker map unconditionally and returns the
// manager to the uninitialized state.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	if m.state == ManagerUninitialized || m.state == ManagerShuttingDown {
		m.mu.Unlock()
		return
	}
	m.state = ManagerShuttingDown
	ordered := m.ordered
	m.mu.Unlock()

	m.logger.Info("shutting down connection manager")

	for _, client := range ordered {
		client.Disconnect()
	}

	// Workers that spawned but never completed a handshake are not in the
	// client set; stop whatever the runtime still tracks.
	m.runtime.StopAll()

	m.mu.Lock()
	m.clients = make(map[string]*Client)
	m.ordered = nil
	m.registry = make(map[string]string)
	m.state = ManagerUninitialized
	m.mu.Unlock()

	connectedWorkers.Set(0)
	m.logger.Info("connection manager shutdown complete")
}

// Reload shuts the fleet down and re-initializes it with fresh
// configuration. Used by the config watcher.
func (m *Manager) Reload(ctx context.Context, configs []WorkerConfig) error {
	m.Shutdown()
	return m.Initialize(ctx, configs)
}

// ServerStatus reports "running" or "stopped" per configured worker, based
// on OS-level process liveness. A worker can be running at the OS level
// while its protocol handshake never completed.
func (m *Manager) ServerStatus() map[string]string {
	m.mu.RLock()
	configs := m.configs
	m.mu.RUnlock()

	status := make(map[string]string, len(configs))
	for _, config := range configs {
		if m.runtime.IsRunning(config.Name) {
			status[config.Name] = "running"
		} else {
			status[config.Name] = "stopped"
		}
	}
	return status
}
