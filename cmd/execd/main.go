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

// Command execd is the tool execution daemon. It spawns the configured MCP
// workers, aggregates their tools, and serves the execution HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blolt/municipal-agent/internal/api"
	"github.com/blolt/municipal-agent/internal/auth"
	"github.com/blolt/municipal-agent/internal/config"
	"github.com/blolt/municipal-agent/internal/log"
	"github.com/blolt/municipal-agent/internal/mcp"
	"github.com/blolt/municipal-agent/internal/sandbox"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// shutdownTimeout bounds the HTTP server drain on shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	var (
		workersPath = flag.String("workers", "", "Path to the MCP worker configuration file")
		sandboxDir  = flag.String("sandbox", "", "Root directory for filesystem tool access")
		port        = flag.Int("port", 0, "HTTP listen port")
		watchConfig = flag.Bool("watch-config", true, "Reload the worker fleet when the config file changes")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("execd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// Initialize structured logging from environment
	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	settings, err := config.FromEnv()
	if err != nil {
		logger.Error("Failed to load config", log.Error(err))
		os.Exit(1)
	}

	// Apply CLI flag overrides
	if *workersPath != "" {
		settings.WorkersPath = *workersPath
	}
	if *sandboxDir != "" {
		settings.SandboxDirectory = *sandboxDir
	}
	if *port != 0 {
		settings.Port = *port
	}

	if err := run(settings, *watchConfig, logger); err != nil {
		logger.Error("Daemon error", log.Error(err))
		os.Exit(1)
	}
}

func run(settings *config.Settings, watchConfig bool, logger *slog.Logger) error {
	guard := sandbox.NewGuard(settings.SandboxDirectory)
	root, err := guard.Root()
	if err != nil {
		return fmt.Errorf("failed to prepare sandbox: %w", err)
	}
	logger.Info("sandbox ready", "root", root)

	manager := mcp.NewManager(mcp.ManagerConfig{
		Sandbox: guard,
		Logger:  log.WithComponent(logger, "mcp"),
	})

	loadFleet := func(ctx context.Context, reload bool) error {
		entries, err := config.LoadWorkers(settings.WorkersPath, settings.DefaultTimeout)
		if err != nil {
			return err
		}
		configs := make([]mcp.WorkerConfig, 0, len(entries))
		for _, entry := range entries {
			configs = append(configs, mcp.WorkerConfig{
				Name:        entry.Name,
				Command:     entry.Command,
				Args:        entry.Args,
				Env:         entry.Env,
				Timeout:     time.Duration(entry.Timeout) * time.Second,
				Description: entry.Description,
			})
			logger.Debug("configured mcp worker",
				"server", entry.Name,
				"env", config.RedactEnv(entry.Env),
			)
		}
		if reload {
			return manager.Reload(ctx, configs)
		}
		return manager.Initialize(ctx, configs)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := loadFleet(ctx, false); err != nil {
		return fmt.Errorf("failed to initialize worker fleet: %w", err)
	}
	defer manager.Shutdown()

	if watchConfig {
		watcher, err := mcp.NewWatcher(mcp.WatcherConfig{
			Path: settings.WorkersPath,
			Reload: func(ctx context.Context) error {
				return loadFleet(ctx, true)
			},
			Logger: log.WithComponent(logger, "watcher"),
		})
		if err != nil {
			// A missing watcher degrades hot reload, not the service.
			logger.Warn("config watcher unavailable", log.Error(err))
		} else {
			defer watcher.Close()
		}
	}

	router := api.NewRouter(manager, api.RouterConfig{
		ServiceName: settings.ServiceName,
		Version:     version,
		Auth: auth.Config{
			Secret:          []byte(settings.ServiceAuthSecret),
			AllowedServices: settings.AllowedServices,
		},
		Logger: log.WithComponent(logger, "api"),
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", settings.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("execution daemon listening",
			"addr", server.Addr,
			"version", version,
		)
		errCh <- server.ListenAndServe()
	}()

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())

		drainCtx, drainCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer drainCancel()
		if err := server.Shutdown(drainCtx); err != nil {
			logger.Error("Error during shutdown", log.Error(err))
		}
		return nil

	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
