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
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"time"
)

// ClientState is the lifecycle state of a protocol client.
type ClientState string

const (
	// StateDisconnected is the initial state, before Connect.
	StateDisconnected ClientState = "disconnected"
	// StateHandshaking means the worker is spawned and the initialize
	// exchange is in progress.
	StateHandshaking ClientState = "handshaking"
	// StateConnected means the handshake completed and calls may be issued.
	StateConnected ClientState = "connected"
	// StateFailed is terminal: the handshake failed or a call timed out.
	// Failed clients are discarded, never reconnected in place.
	StateFailed ClientState = "failed"
)

// defaultCallTimeout bounds protocol calls for workers that do not
// configure their own timeout.
const defaultCallTimeout = 30 * time.Second

// readLine is one stdout line (or terminal read error) from the worker.
type readLine struct {
	data []byte
	err  error
}

// Client drives the MCP protocol over one worker's stdio streams. The
// streams are borrowed from the Runtime, which retains ownership of the
// process itself.
//
// A client carries at most one in-flight request: responses are matched to
// requests by strict line order, so Call holds an internal mutex and
// concurrent calls against the same worker serialize.
type Client struct {
	config  WorkerConfig
	runtime *Runtime
	logger  *slog.Logger

	// mu serializes Connect/Call/Disconnect and guards the fields below.
	mu     sync.Mutex
	state  ClientState
	nextID int64
	stdin  io.Writer
	lines  chan readLine

	// readerStop, when closed, tells the reader goroutine that no caller
	// will consume lines again, so it can exit instead of blocking on a
	// full channel.
	readerStop chan struct{}
}

// NewClient creates a protocol client for the given worker. The worker is
// not spawned until Connect.
func NewClient(config WorkerConfig, runtime *Runtime, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultCallTimeout
	}
	return &Client{
		config:  config,
		runtime: runtime,
		logger:  logger.With("server", config.Name),
		state:   StateDisconnected,
	}
}

// ServerName returns the worker name this client is bound to.
func (c *Client) ServerName() string {
	return c.config.Name
}

// State returns the client's current lifecycle state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connected reports whether the handshake has completed.
func (c *Client) Connected() bool {
	return c.State() == StateConnected
}

// Connect spawns the worker and performs the MCP handshake:
//
//  1. Start the worker process, borrowing its stdio streams.
//  2. Send the initialize request and await its response.
//  3. Send the notifications/initialized notification.
//
// Calling Connect on an already connected client is a silent no-op; the
// worker is spawned exactly once. Any handshake failure moves the client to
// the terminal failed state.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateConnected {
		c.logger.Debug("already connected")
		return nil
	}
	if c.state != StateDisconnected {
		return &ExecError{
			Code:    ErrorCodeHandshakeFailed,
			Worker:  c.config.Name,
			Message: "client is " + string(c.state) + " and cannot reconnect",
		}
	}

	c.logger.Info("connecting to mcp worker")

	stdout, stdin, err := c.runtime.Start(c.config)
	if err != nil {
		// Spawn failure leaves the client disconnected.
		return err
	}

	c.state = StateHandshaking
	c.stdin = stdin
	c.lines = make(chan readLine, 16)
	c.readerStop = make(chan struct{})
	go readLines(stdout, c.lines, c.readerStop)

	result, err := c.callLocked(ctx, "initialize", initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo: clientInfo{
			Name:    clientName,
			Version: clientVersion,
		},
	}, 0)
	if err != nil {
		c.state = StateFailed
		c.stopReader()
		return ErrHandshake(c.config.Name, err)
	}

	var init initializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		c.logger.Warn("unexpected initialize result shape", "error", err)
	}
	c.logger.Info("mcp worker initialized",
		"protocol", init.ProtocolVersion,
		"remote", init.ServerInfo.Name,
	)

	if err := c.notifyLocked("notifications/initialized"); err != nil {
		c.state = StateFailed
		c.stopReader()
		return ErrHandshake(c.config.Name, err)
	}

	c.state = StateConnected
	c.logger.Info("connected to mcp worker")
	return nil
}

// Disconnect stops the worker and leaves the client disconnected. No-op if
// the client is not connected.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return
	}

	c.logger.Info("disconnecting from mcp worker")
	c.runtime.Stop(c.config.Name)
	c.state = StateDisconnected
	c.stdin = nil
	c.stopReader()
}

// Call issues a JSON-RPC request and awaits the matching response line,
// bounded by the worker's configured timeout (or an earlier ctx deadline).
// The result member is returned, defaulting to an empty object if absent.
//
// A timeout moves the client to the failed state and stops the worker: the
// expected response line may still arrive later, and consuming it from an
// unrelated call would misattribute the response.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return nil, ErrNotConnected(c.config.Name)
	}

	return c.callLocked(ctx, method, params, 0)
}

// ListTools discovers the worker's tools via tools/list. Returns an empty
// list if the result carries none.
func (c *Client) ListTools(ctx context.Context) ([]ToolDefinition, error) {
	result, err := c.Call(ctx, "tools/list", map[string]any{})
	if err != nil {
		return nil, err
	}

	var list listToolsResult
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, ErrMalformedResponse(c.config.Name, err)
	}
	return list.Tools, nil
}

// CallTool executes a named tool via tools/call and returns the raw result
// object. Callers interpret success or failure from its shape. timeout,
// when positive, bounds this call in place of the worker's configured
// timeout; it may be longer or shorter than the configured value.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected {
		return nil, ErrNotConnected(c.config.Name)
	}

	return c.callLocked(ctx, "tools/call", callToolParams{
		Name:      name,
		Arguments: arguments,
	}, timeout)
}

// callLocked writes one framed request and reads one framed response. The
// call is bounded by bound when positive, the worker's configured timeout
// otherwise, and an earlier ctx deadline in either case. Caller must hold
// c.mu.
func (c *Client) callLocked(ctx context.Context, method string, params any, bound time.Duration) (json.RawMessage, error) {
	c.nextID++
	id := c.nextID

	if params == nil {
		params = map[string]any{}
	}
	if err := c.writeMessage(request{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}); err != nil {
		return nil, ErrConnectionClosed(c.config.Name, err)
	}

	if bound <= 0 {
		bound = c.config.Timeout
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < bound {
			bound = remaining
		}
	}

	timer := time.NewTimer(bound)
	defer timer.Stop()

	select {
	case line, ok := <-c.lines:
		if !ok || line.err != nil {
			c.failLocked()
			return nil, ErrConnectionClosed(c.config.Name, line.err)
		}
		return c.parseResponse(id, line.data)

	case <-timer.C:
		c.logger.Warn("mcp call timed out",
			"method", method,
			"timeout", bound,
		)
		c.failLocked()
		return nil, ErrTimeout(c.config.Name, bound)

	case <-ctx.Done():
		c.failLocked()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrTimeout(c.config.Name, bound)
		}
		return nil, ctx.Err()
	}
}

// parseResponse validates one response line against the issued request id.
func (c *Client) parseResponse(id int64, data []byte) (json.RawMessage, error) {
	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, ErrMalformedResponse(c.config.Name, err)
	}

	// Responses pair with requests by line order; an id mismatch means the
	// worker violated the one-in-flight contract.
	if resp.ID != id {
		c.logger.Warn("response id mismatch",
			"want", id,
			"got", resp.ID,
		)
	}

	if resp.Error != nil {
		return nil, ErrProtocol(c.config.Name, resp.Error.Message)
	}

	if len(resp.Result) == 0 {
		return json.RawMessage(`{}`), nil
	}
	return resp.Result, nil
}

// notifyLocked writes a one-way notification. Caller must hold c.mu.
func (c *Client) notifyLocked(method string) error {
	return c.writeMessage(notification{
		JSONRPC: "2.0",
		Method:  method,
	})
}

// writeMessage frames msg as one newline-terminated JSON line on stdin.
func (c *Client) writeMessage(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = c.stdin.Write(data)
	return err
}

// failLocked moves the client to the failed state, releases the reader,
// and stops the worker. The stop runs in the background because it can
// block for the grace period. Caller must hold c.mu.
func (c *Client) failLocked() {
	if c.state == StateFailed {
		return
	}
	c.state = StateFailed
	c.stopReader()
	go c.runtime.Stop(c.config.Name)
}

// stopReader signals the reader goroutine that its lines will never be
// consumed again. Safe to call repeatedly. Caller must hold c.mu.
func (c *Client) stopReader() {
	if c.readerStop != nil {
		close(c.readerStop)
		c.readerStop = nil
	}
}

// readLines feeds stdout lines into out until read error or EOF, then
// closes the channel. A chatty worker can outpace an abandoned channel's
// buffer, so sends also select on stop to avoid leaking the goroutine.
func readLines(r io.Reader, out chan<- readLine, stop <-chan struct{}) {
	reader := bufio.NewReader(r)
	for {
		data, err := reader.ReadBytes('\n')
		if len(data) > 0 {
			select {
			case out <- readLine{data: data}:
			case <-stop:
				return
			}
		}
		if err != nil {
			if err != io.EOF {
				select {
				case out <- readLine{err: err}:
				case <-stop:
					return
				}
			}
			close(out)
			return
		}
	}
}
