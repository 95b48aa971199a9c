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

package sandbox

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGuard(t *testing.T) (*Guard, string) {
	t.Helper()
	g := NewGuard(filepath.Join(t.TempDir(), "sandbox"))
	root, err := g.Root()
	require.NoError(t, err)
	return g, root
}

func TestRoot_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "sandbox")
	g := NewGuard(dir)

	root, err := g.Root()
	require.NoError(t, err)

	info, err := os.Stat(root)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Idempotent
	again, err := g.Root()
	require.NoError(t, err)
	assert.Equal(t, root, again)
}

func TestValidate_RelativePathResolvesUnderRoot(t *testing.T) {
	g, root := newTestGuard(t)

	got, err := g.Validate("a/b.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", "b.txt"), got)
}

func TestValidate_TraversalRejected(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.Validate("../outside.txt")
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "../outside.txt", verr.Path)
	assert.NotEmpty(t, verr.Resolved)
}

func TestValidate_AbsolutePathInsideRoot(t *testing.T) {
	g, root := newTestGuard(t)

	inside := filepath.Join(root, "notes.txt")
	got, err := g.Validate(inside)
	require.NoError(t, err)
	assert.Equal(t, inside, got)
}

func TestValidate_AbsolutePathOutsideRoot(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.Validate("/etc/passwd")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestValidate_RootItselfAllowed(t *testing.T) {
	g, root := newTestGuard(t)

	got, err := g.Validate(root)
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestValidate_SymlinkEscapeRejected(t *testing.T) {
	g, root := newTestGuard(t)

	// A real file outside the sandbox, and a symlink to it from inside.
	outside := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o600))

	link := filepath.Join(root, "sneaky.txt")
	require.NoError(t, os.Symlink(outside, link))

	_, err := g.Validate("sneaky.txt")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr), "symlink escape must be rejected, got %v", err)
}

func TestValidate_SymlinkedParentForNewFile(t *testing.T) {
	g, root := newTestGuard(t)

	// Directory outside the sandbox, symlinked from inside. Writing a new
	// file through the link must be rejected even though the file itself
	// does not exist yet.
	outsideDir := t.TempDir()
	link := filepath.Join(root, "linked")
	require.NoError(t, os.Symlink(outsideDir, link))

	_, err := g.Validate("linked/new.txt")
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestValidate_EmptyPath(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.Validate("")
	assert.Error(t, err)
}

func TestValidateAll_FailsWhole(t *testing.T) {
	g, _ := newTestGuard(t)

	_, err := g.ValidateAll([]string{"ok.txt", "../escape.txt"})
	require.Error(t, err)
}

func TestValidateAll_Success(t *testing.T) {
	g, root := newTestGuard(t)

	got, err := g.ValidateAll([]string{"a.txt", "sub/b.txt"})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a.txt"),
		filepath.Join(root, "sub", "b.txt"),
	}, got)
}

func TestExtractPathArguments(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{
			name: "single path key",
			args: map[string]any{"path": "a.txt", "content": "hello"},
			want: []string{"a.txt"},
		},
		{
			name: "source and destination",
			args: map[string]any{"source": "a.txt", "destination": "b.txt"},
			want: []string{"a.txt", "b.txt"},
		},
		{
			name: "list-valued paths flattened",
			args: map[string]any{"paths": []any{"a.txt", "b.txt"}},
			want: []string{"a.txt", "b.txt"},
		},
		{
			name: "no path keys",
			args: map[string]any{"query": "SELECT 1"},
			want: nil,
		},
		{
			name: "empty values skipped",
			args: map[string]any{"path": ""},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractPathArguments(tt.args))
		})
	}
}
