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

// Package config loads execution service settings and the MCP worker list.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkerNameRegex validates MCP worker names.
// Names must start with a letter and contain only letters, numbers, hyphens,
// and underscores. Maximum length is 64 characters.
var WorkerNameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]{0,63}$`)

// Settings holds the service-level configuration, sourced from environment
// variables with defaults.
type Settings struct {
	// Port is the HTTP listen port.
	Port int

	// ServiceName identifies this service in logs and tokens.
	ServiceName string

	// ServiceVersion is the reported service version.
	ServiceVersion string

	// ServiceAuthSecret is the shared HS256 secret for service-to-service
	// authentication. Empty disables the auth gate.
	ServiceAuthSecret string

	// AllowedServices restricts which callers may invoke the API.
	// Empty means any service with a valid token.
	AllowedServices []string

	// WorkersPath is the path to the YAML worker configuration file.
	WorkersPath string

	// SandboxDirectory is the root under which all filesystem tool paths
	// must resolve.
	SandboxDirectory string

	// DefaultTimeout is the per-call timeout in seconds applied to workers
	// that do not set their own.
	DefaultTimeout int
}

// FromEnv builds Settings from environment variables.
func FromEnv() (*Settings, error) {
	s := &Settings{
		Port:              8002,
		ServiceName:       "execution-service",
		ServiceVersion:    "0.1.0",
		ServiceAuthSecret: os.Getenv("SERVICE_AUTH_SECRET"),
		WorkersPath:       "config/mcp_workers.yaml",
		SandboxDirectory:  "/tmp/execution-sandbox",
		DefaultTimeout:    30,
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return nil, fmt.Errorf("invalid PORT %q", v)
		}
		s.Port = port
	}
	if v := os.Getenv("SERVICE_NAME"); v != "" {
		s.ServiceName = v
	}
	if v := os.Getenv("SERVICE_VERSION"); v != "" {
		s.ServiceVersion = v
	}
	if v := os.Getenv("ALLOWED_SERVICES"); v != "" {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				s.AllowedServices = append(s.AllowedServices, name)
			}
		}
	}
	if v := os.Getenv("MCP_CONFIG_PATH"); v != "" {
		s.WorkersPath = v
	}
	if v := os.Getenv("SANDBOX_DIRECTORY"); v != "" {
		s.SandboxDirectory = v
	}
	if v := os.Getenv("DEFAULT_TIMEOUT"); v != "" {
		timeout, err := strconv.Atoi(v)
		if err != nil || timeout <= 0 {
			return nil, fmt.Errorf("invalid DEFAULT_TIMEOUT %q", v)
		}
		s.DefaultTimeout = timeout
	}

	return s, nil
}

// WorkerEntry represents a single MCP worker configuration entry.
type WorkerEntry struct {
	// Name is the unique identifier for this worker.
	Name string `yaml:"name"`

	// Command is the executable to run (e.g., "npx", "python").
	Command string `yaml:"command"`

	// Args are command-line arguments.
	Args []string `yaml:"args,omitempty"`

	// Env are environment variable overrides merged onto the process
	// environment when the worker is spawned.
	Env map[string]string `yaml:"env,omitempty"`

	// Timeout is the per-call timeout in seconds.
	// Defaults to the file-level default if not specified.
	Timeout int `yaml:"timeout,omitempty"`

	// Description is a human-readable summary of the worker.
	Description string `yaml:"description,omitempty"`
}

// WorkersFile is the on-disk worker configuration format.
type WorkersFile struct {
	// Defaults provides default values applied to worker entries.
	Defaults WorkerDefaults `yaml:"defaults,omitempty"`

	// Workers is the ordered list of worker configurations. Order is
	// significant: the tool registry is built in this order.
	Workers []*WorkerEntry `yaml:"workers"`
}

// WorkerDefaults provides default values for worker configuration.
type WorkerDefaults struct {
	// Timeout is the default per-call timeout in seconds (default: 30).
	Timeout int `yaml:"timeout,omitempty"`
}

// LoadWorkers reads and validates the worker configuration file.
// The configured order of entries is preserved.
func LoadWorkers(path string, defaultTimeout int) ([]*WorkerEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read worker config: %w", err)
	}

	var file WorkersFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse worker config: %w", err)
	}

	if file.Defaults.Timeout == 0 {
		file.Defaults.Timeout = defaultTimeout
	}

	seen := make(map[string]bool)
	for i, entry := range file.Workers {
		if entry == nil {
			return nil, fmt.Errorf("worker entry %d is null", i)
		}
		if entry.Timeout == 0 {
			entry.Timeout = file.Defaults.Timeout
		}
		if err := entry.Validate(); err != nil {
			return nil, fmt.Errorf("worker %q: %w", entry.Name, err)
		}
		if seen[entry.Name] {
			return nil, fmt.Errorf("duplicate worker name %q", entry.Name)
		}
		seen[entry.Name] = true
	}

	return file.Workers, nil
}

// Validate validates a single worker entry.
func (e *WorkerEntry) Validate() error {
	if err := ValidateWorkerName(e.Name); err != nil {
		return err
	}
	if e.Command == "" {
		return fmt.Errorf("command is required")
	}
	if e.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	for i, arg := range e.Args {
		if err := ValidateArg(arg); err != nil {
			return fmt.Errorf("args[%d]: %w", i, err)
		}
	}

	for key, value := range e.Env {
		if err := ValidateEnv(key, value); err != nil {
			return fmt.Errorf("env[%s]: %w", key, err)
		}
	}

	return nil
}

// ValidateWorkerName validates an MCP worker name.
func ValidateWorkerName(name string) error {
	if name == "" {
		return fmt.Errorf("worker name is required")
	}
	if len(name) > 64 {
		return fmt.Errorf("worker name exceeds 64 character limit")
	}
	if !WorkerNameRegex.MatchString(name) {
		return fmt.Errorf("invalid worker name: must start with a letter and contain only letters, numbers, hyphens, and underscores")
	}
	return nil
}

// shellInjectionPatterns are patterns that could indicate shell injection attempts.
var shellInjectionPatterns = []string{
	";", "&&", "||", "|", "`", "$(", "${", "\n", "\r",
}

// ValidateArg validates a command argument for shell injection.
func ValidateArg(arg string) error {
	for _, pattern := range shellInjectionPatterns {
		if strings.Contains(arg, pattern) {
			return fmt.Errorf("argument contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

var envKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateEnv validates an environment variable override.
func ValidateEnv(key, value string) error {
	if key == "" {
		return fmt.Errorf("environment variable key is required")
	}
	if !envKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid environment variable key: %s", key)
	}
	for _, pattern := range shellInjectionPatterns {
		// ${VAR} syntax is allowed for substitution performed by the worker.
		if pattern == "${" {
			continue
		}
		if strings.Contains(value, pattern) {
			return fmt.Errorf("environment value contains potentially unsafe pattern %q", pattern)
		}
	}
	return nil
}

// sensitiveKeyPatterns are patterns that indicate a sensitive value.
var sensitiveKeyPatterns = []string{
	"SECRET", "TOKEN", "KEY", "PASSWORD", "CREDENTIAL", "AUTH", "API_KEY",
}

// IsSensitiveEnvKey returns true if the key appears to contain sensitive data.
func IsSensitiveEnvKey(key string) bool {
	upperKey := strings.ToUpper(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upperKey, pattern) {
			return true
		}
	}
	return false
}

// RedactEnv redacts sensitive values from an environment override map for
// logging.
func RedactEnv(env map[string]string) map[string]string {
	result := make(map[string]string, len(env))
	for key, value := range env {
		if IsSensitiveEnvKey(key) {
			result[key] = "***REDACTED***"
		} else {
			result[key] = value
		}
	}
	return result
}
