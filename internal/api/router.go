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

// Package api provides the HTTP API for the execution daemon.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blolt/municipal-agent/internal/auth"
	"github.com/blolt/municipal-agent/internal/log"
	"github.com/blolt/municipal-agent/internal/mcp"
)

// ExecutionManager is the fleet surface the API depends on.
type ExecutionManager interface {
	State() mcp.ManagerState
	ServerStatus() map[string]string
	ListAllTools(ctx context.Context) ([]mcp.ToolDefinition, error)
	ExecuteTool(ctx context.Context, name string, arguments map[string]any, timeoutOverride time.Duration) (json.RawMessage, error)
}

// RouterConfig holds configuration for the API router.
type RouterConfig struct {
	ServiceName string
	Version     string

	// Auth configures the service token gate on /tools and /execute.
	// An empty secret disables authentication.
	Auth auth.Config

	Logger *slog.Logger
}

// Router wraps an http.ServeMux with auth and request logging.
type Router struct {
	mux     *http.ServeMux
	config  RouterConfig
	manager ExecutionManager
	logger  *slog.Logger
}

// NewRouter creates the HTTP router with all API endpoints. /health and
// /metrics are open; /tools and /execute sit behind the service token gate.
func NewRouter(manager ExecutionManager, cfg RouterConfig) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:     http.NewServeMux(),
		config:  cfg,
		manager: manager,
		logger:  logger,
	}

	if len(cfg.Auth.Secret) == 0 {
		logger.Warn("service auth secret not configured, API is unauthenticated")
	}

	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /tools", r.requireAuth(r.handleTools))
	r.mux.HandleFunc("POST /execute", r.requireAuth(r.handleExecute))
	r.mux.Handle("GET /metrics", promhttp.Handler())

	// Root endpoint for basic connectivity check; {$} keeps unmatched
	// paths on the 404 path instead of the banner.
	r.mux.HandleFunc("GET /{$}", r.handleRoot)

	return r
}

// ServeHTTP implements http.Handler. Every request gets a request id and a
// completion log line.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := requestIDFor(req)
	logger := log.WithRequestID(r.logger, requestID)

	w.Header().Set("X-Request-ID", requestID)

	start := time.Now()
	defer func() {
		logger.Info("request completed",
			slog.String("method", req.Method),
			slog.String("path", req.URL.Path),
			slog.Int64(log.DurationKey, time.Since(start).Milliseconds()),
		)
	}()

	r.mux.ServeHTTP(w, req.WithContext(withRequestID(req.Context(), requestID)))
}

// handleRoot handles GET / for basic connectivity.
func (r *Router) handleRoot(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"name":    r.config.ServiceName,
		"version": r.config.Version,
	})
}
