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
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCode
	}{
		{ErrSpawn("w", errors.New("boom")), ErrorCodeSpawnFailed},
		{ErrTimeout("w", time.Second), ErrorCodeTimeout},
		{ErrToolNotFound("t"), ErrorCodeToolNotFound},
		{fmt.Errorf("wrapped: %w", ErrNotConnected("w")), ErrorCodeNotConnected},
		{errors.New("plain"), ""},
		{nil, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CodeOf(tt.err))
	}
}

func TestIsClientFault(t *testing.T) {
	assert.True(t, IsClientFault(ErrToolNotFound("t")))
	assert.True(t, IsClientFault(ErrPathValidation(errors.New("escape"))))
	assert.False(t, IsClientFault(ErrTimeout("w", time.Second)))
	assert.False(t, IsClientFault(errors.New("plain")))
}

func TestExecErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ErrHandshake("w", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "w")
	assert.Contains(t, err.Error(), "root cause")
}
