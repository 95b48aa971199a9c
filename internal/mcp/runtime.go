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
	"bufio"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"
)

// stopGracePeriod is how long Stop waits after SIGTERM before killing.
const stopGracePeriod = 5 * time.Second

// workerProcess is a live OS process owned exclusively by the Runtime.
type workerProcess struct {
	name   string
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	// done is closed once Wait returns.
	done chan struct{}
}

// exited reports whether the OS process has exited.
func (p *workerProcess) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Runtime owns the OS-level lifecycle of MCP worker processes. It has no
// knowledge of protocol semantics.
type Runtime struct {
	mu        sync.Mutex
	processes map[string]*workerProcess
	logger    *slog.Logger
}

// NewRuntime creates a new worker process runtime.
func NewRuntime(logger *slog.Logger) *Runtime {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		processes: make(map[string]*workerProcess),
		logger:    logger,
	}
}

// Start spawns the worker described by config and returns its stdout reader
// and stdin writer. The config's env overrides are merged onto the current
// process environment. The caller is responsible for not starting the same
// name twice.
func (r *Runtime) Start(config WorkerConfig) (io.ReadCloser, io.WriteCloser, error) {
	r.logger.Info("starting mcp worker",
		"server", config.Name,
		"command", config.Command,
	)

	cmd := exec.Command(config.Command, config.Args...)
	cmd.Env = mergeEnviron(config.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, ErrSpawn(config.Name, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, ErrSpawn(config.Name, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, nil, ErrSpawn(config.Name, err)
	}

	if err := cmd.Start(); err != nil {
		return nil, nil, ErrSpawn(config.Name, err)
	}

	proc := &workerProcess{
		name:   config.Name,
		cmd:    cmd,
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		done:   make(chan struct{}),
	}

	r.mu.Lock()
	r.processes[config.Name] = proc
	r.mu.Unlock()

	// Reap the process and drain stderr so the worker can't block on a
	// full pipe. Worker diagnostics surface at debug level.
	go r.drainStderr(proc)
	go func() {
		_ = cmd.Wait()
		close(proc.done)
	}()

	r.logger.Info("mcp worker started",
		"server", config.Name,
		"pid", cmd.Process.Pid,
	)

	return stdout, stdin, nil
}

// Stop terminates the named worker: SIGTERM, a grace period, then SIGKILL.
// Unknown names are a no-op. The process record is always removed, even if
// termination fails.
func (r *Runtime) Stop(name string) {
	r.mu.Lock()
	proc, ok := r.processes[name]
	if ok {
		delete(r.processes, name)
	}
	r.mu.Unlock()

	if !ok {
		r.logger.Warn("stop requested for unknown worker", "server", name)
		return
	}

	r.logger.Info("stopping mcp worker",
		"server", name,
		"pid", proc.cmd.Process.Pid,
	)

	// Closing stdin first lets well-behaved workers exit on EOF.
	_ = proc.stdin.Close()

	if proc.exited() {
		return
	}

	if err := proc.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		r.logger.Warn("failed to signal worker", "server", name, "error", err)
	}

	select {
	case <-proc.done:
		r.logger.Info("mcp worker terminated gracefully", "server", name)
	case <-time.After(stopGracePeriod):
		r.logger.Warn("mcp worker did not terminate, killing", "server", name)
		if err := proc.cmd.Process.Kill(); err != nil {
			r.logger.Warn("failed to kill worker", "server", name, "error", err)
		}
		<-proc.done
		r.logger.Info("mcp worker killed", "server", name)
	}
}

// StopAll stops every tracked worker, continuing past individual failures.
func (r *Runtime) StopAll() {
	r.mu.Lock()
	names := make([]string, 0, len(r.processes))
	for name := range r.processes {
		names = append(names, name)
	}
	r.mu.Unlock()

	sort.Strings(names)
	for _, name := range names {
		r.Stop(name)
	}
}

// IsRunning reports whether a process record exists for name and the OS
// process has not exited.
func (r *Runtime) IsRunning(name string) bool {
	r.mu.Lock()
	proc, ok := r.processes[name]
	r.mu.Unlock()

	return ok && !proc.exited()
}

// drainStderr logs the worker's stderr line by line.
func (r *Runtime) drainStderr(proc *workerProcess) {
	scanner := bufio.NewScanner(proc.stderr)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		r.logger.Debug("mcp worker stderr",
			"server", proc.name,
			"line", scanner.Text(),
		)
	}
}

// mergeEnviron merges overrides onto the current process environment.
func mergeEnviron(overrides map[string]string) []string {
	if len(overrides) == 0 {
		return os.Environ()
	}
	env := os.Environ()
	for key, value := range overrides {
		env = append(env, key+"="+value)
	}
	return env
}
