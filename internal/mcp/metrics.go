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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "execd_tool_execution_duration_seconds",
			Help:    "Duration of MCP tool executions",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool", "server", "status"},
	)

	executionErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "execd_tool_execution_errors_total",
			Help: "Total tool execution errors by error code",
		},
		[]string{"code"},
	)

	toolCollisions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "execd_tool_name_collisions_total",
		Help: "Total tool name collisions observed during registry rebuilds",
	})

	connectedWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "execd_connected_workers",
		Help: "Number of workers with a completed MCP handshake",
	})
)

// recordExecution records metrics for one tool execution.
func recordExecution(tool, server string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
		if code := CodeOf(err); code != "" {
			executionErrors.WithLabelValues(string(code)).Inc()
		}
	}
	executionDuration.WithLabelValues(tool, server, status).Observe(seconds)
}
