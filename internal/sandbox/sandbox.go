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

// Package sandbox confines filesystem tool arguments to a single root
// directory. Paths are resolved (symlinks included) before the containment
// check, so a symlink inside the sandbox that points outside it is rejected.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// ValidationError reports a path that resolves outside the sandbox root.
type ValidationError struct {
	// Path is the offending input as given by the caller.
	Path string
	// Resolved is the absolute path the input resolved to, if resolution
	// succeeded.
	Resolved string
	// Cause is the underlying error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Resolved != "" {
		return fmt.Sprintf("path %q is outside the sandbox (resolved to %q)", e.Path, e.Resolved)
	}
	if e.Cause != nil {
		return fmt.Sprintf("invalid path %q: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("invalid path %q", e.Path)
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// pathArgumentKeys is the fixed set of argument names that carry filesystem
// paths. "paths" may hold a list of strings.
var pathArgumentKeys = []string{
	"path",
	"file",
	"filepath",
	"file_path",
	"directory",
	"dir",
	"source",
	"destination",
	"dest",
	"target",
	"paths",
}

// Guard validates filesystem paths against a sandbox root directory.
type Guard struct {
	// dir is the configured sandbox directory, possibly relative.
	dir string

	// mu guards lazy root resolution.
	mu   sync.Mutex
	root string
}

// NewGuard creates a guard for the given sandbox directory. The directory is
// resolved and created on first use, not here.
func NewGuard(dir string) *Guard {
	return &Guard{dir: dir}
}

// Root resolves the sandbox directory to an absolute, canonical path,
// creating it (including parents) if absent. Safe to call repeatedly.
func (g *Guard) Root() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.root != "" {
		return g.root, nil
	}

	abs, err := filepath.Abs(g.dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve sandbox directory %q: %w", g.dir, err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return "", fmt.Errorf("failed to create sandbox directory %q: %w", abs, err)
	}

	// Canonicalize so containment checks compare like with like (the
	// sandbox itself may live behind a symlink, e.g. /tmp on macOS).
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to canonicalize sandbox directory %q: %w", abs, err)
	}

	g.root = resolved
	return g.root, nil
}

// Validate resolves path and verifies it is at or under the sandbox root.
// Relative paths are resolved against the root; absolute paths are taken as
// given. Symlinks are followed to their real target before the containment
// check. Returns the validated absolute path.
func (g *Guard) Validate(path string) (string, error) {
	root, err := g.Root()
	if err != nil {
		return "", err
	}

	if path == "" {
		return "", &ValidationError{Path: path, Cause: fmt.Errorf("path is empty")}
	}

	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(root, abs)
	}
	abs = filepath.Clean(abs)

	resolved, err := resolveSymlinks(abs)
	if err != nil {
		return "", &ValidationError{Path: path, Cause: err}
	}

	if !isWithin(resolved, root) {
		return "", &ValidationError{Path: path, Resolved: resolved}
	}

	return resolved, nil
}

// ValidateAll validates a list of paths. Any single failure fails the whole
// batch; no partial results are returned.
func (g *Guard) ValidateAll(paths []string) ([]string, error) {
	validated := make([]string, 0, len(paths))
	for _, p := range paths {
		abs, err := g.Validate(p)
		if err != nil {
			return nil, err
		}
		validated = append(validated, abs)
	}
	return validated, nil
}

// ExtractPathArguments scans tool arguments for the known path-like keys and
// collects their values, flattening list-valued entries.
func ExtractPathArguments(arguments map[string]any) []string {
	var paths []string
	for _, key := range pathArgumentKeys {
		value, ok := arguments[key]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			if v != "" {
				paths = append(paths, v)
			}
		case []any:
			for _, item := range v {
				if s, ok := item.(string); ok && s != "" {
					paths = append(paths, s)
				}
			}
		case []string:
			for _, s := range v {
				if s != "" {
					paths = append(paths, s)
				}
			}
		}
	}
	return paths
}

// PathArgumentKeys returns the known path-like argument keys.
func PathArgumentKeys() []string {
	keys := make([]string, len(pathArgumentKeys))
	copy(keys, pathArgumentKeys)
	return keys
}

// resolveSymlinks canonicalizes abs, tolerating a not-yet-existing suffix:
// the longest existing ancestor is resolved and the remainder re-joined, so
// new files still get their parent symlinks checked.
func resolveSymlinks(abs string) (string, error) {
	resolved, err := filepath.EvalSymlinks(abs)
	if err == nil {
		return resolved, nil
	}
	if !os.IsNotExist(err) {
		return "", err
	}

	dir := abs
	var rest []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			// Hit the filesystem root without finding anything.
			return abs, nil
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent

		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
		if !os.IsNotExist(err) {
			return "", err
		}
	}
}

// isWithin reports whether path is equal to or nested under dir. Both must
// be absolute and symlink-free.
func isWithin(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
