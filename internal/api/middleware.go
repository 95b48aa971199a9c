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

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/blolt/municipal-agent/internal/auth"
)

type contextKey string

const (
	requestIDContextKey contextKey = "request_id"
	serviceContextKey   contextKey = "service"
)

// requestIDFor returns the caller-provided X-Request-ID or mints a new one.
func requestIDFor(req *http.Request) string {
	if id := req.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDContextKey, id)
}

// RequestIDFromContext returns the request id, or "" outside a request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}

// ServiceFromContext returns the authenticated calling service, or "" when
// the auth gate is disabled.
func ServiceFromContext(ctx context.Context) string {
	service, _ := ctx.Value(serviceContextKey).(string)
	return service
}

// requireAuth gates a handler behind the service token check. With no
// secret configured the gate is disabled and requests pass through.
func (r *Router) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	if len(r.config.Auth.Secret) == 0 {
		return next
	}

	return func(w http.ResponseWriter, req *http.Request) {
		header := req.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := auth.ValidateToken(token, r.config.Auth)
		if err != nil {
			r.logger.Warn("rejected service token", "error", err)
			writeError(w, http.StatusUnauthorized, "invalid service token")
			return
		}

		ctx := context.WithValue(req.Context(), serviceContextKey, claims.ServiceName())
		next(w, req.WithContext(ctx))
	}
}
