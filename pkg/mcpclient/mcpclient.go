// Package mcpclient implements a JSON-RPC 2.0 client over stdio for the
// headless-browser automation subprocess ("MCP" — the browser-automation
// subprocess protocol, not a general-purpose RPC library). It is hand-rolled
// rather than built on a generic MCP SDK because the exact pending-map and
// oversized-frame semantics specified for this client are not expressible
// through a higher-level library's call surface.
package mcpclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"loopctl/internal/errs"
	"loopctl/pkg/logger"
)

const (
	defaultTimeout    = 60 * time.Second
	screenshotTimeout = 90 * time.Second
	snapshotTimeout   = 90 * time.Second
	evaluateTimeout   = 90 * time.Second
	disconnectGrace   = 5 * time.Second
	readChunkSize     = 8 * 1024
)

var terminateSignal os.Signal = syscall.SIGTERM

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type pendingCall struct {
	resultCh chan response
}

// Client speaks JSON-RPC 2.0 to a browser-automation child process over its
// stdin/stdout pipes, matching requests to responses by ID.
type Client struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	log    logger.Logger

	writeMu sync.Mutex
	nextID  int64

	pendingMu sync.Mutex
	pending   map[int64]pendingCall

	readerDone chan struct{}
}

// Spawn starts the browser automation server named by command/args with
// piped stdio and begins the background reader. It does not send
// "initialize" — call Initialize for that.
func Spawn(ctx context.Context, log logger.Logger, command string, args ...string) (*Client, error) {
	cmd := exec.CommandContext(ctx, command, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", errs.ErrSubprocess, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", errs.ErrSubprocess, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: starting mcp server: %v", errs.ErrSubprocess, err)
	}

	c := &Client{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     stdout,
		log:        log,
		pending:    make(map[int64]pendingCall),
		readerDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Initialize performs the MCP handshake: an "initialize" request followed by
// a one-way "notifications/initialized". No tool call may precede this.
func (c *Client) Initialize(ctx context.Context, clientName, clientVersion string) (json.RawMessage, error) {
	result, err := c.call(ctx, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": clientName, "version": clientVersion},
	}, defaultTimeout)
	if err != nil {
		return nil, err
	}
	if err := c.notify("notifications/initialized", map[string]any{}); err != nil {
		return nil, err
	}
	return result, nil
}

// readLoop is the sole completer of pending calls: it owns the pending map's
// removal side, so a request is only ever completed once.
func (c *Client) readLoop() {
	defer close(c.readerDone)
	reader := bufio.NewReaderSize(c.stdout, 64*1024)

	for {
		line, err := c.readLine(reader)
		if err != nil {
			c.failAllPending(fmt.Errorf("%w: %v", errs.ErrMcpDisconnected, err))
			return
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var resp response
		if err := json.Unmarshal(line, &resp); err != nil {
			c.log.Warnf("mcp: failed to parse response: %v", err)
			continue
		}
		if resp.ID == nil {
			continue // notification from server; nothing pending to complete
		}

		c.pendingMu.Lock()
		pc, ok := c.pending[*resp.ID]
		if ok {
			delete(c.pending, *resp.ID)
		}
		c.pendingMu.Unlock()

		if !ok {
			c.log.Warnf("mcp: response for unknown request id %d", *resp.ID)
			continue
		}
		pc.resultCh <- resp
	}
}

// readLine reads one newline-delimited frame. bufio.Reader.ReadString
// already accumulates across its internal buffer boundary rather than
// erroring on a line that doesn't fit in one fill, so an oversized response
// (e.g. a large DOM snapshot) is read correctly without extra chunking code;
// we only log it as notable so an operator can see the 8 KiB-class request
// with its generous default timeout.
func (c *Client) readLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadString('\n')
	if err != nil {
		return []byte(line), err
	}
	if len(line) > readChunkSize {
		c.log.Infof("mcp: read an oversized frame (%d bytes)", len(line))
	}
	return []byte(line), nil
}

func (c *Client) failAllPending(err error) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, pc := range c.pending {
		pc.resultCh <- response{Error: &rpcError{Message: err.Error()}}
		delete(c.pending, id)
	}
}

// call sends one JSON-RPC request and waits for its matched response or
// timeout. The pending entry is inserted before the request bytes are
// written, so the reader cannot complete a response the caller has not yet
// started waiting on.
func (c *Client) call(ctx context.Context, method string, params any, timeout time.Duration) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	resultCh := make(chan response, 1)

	c.pendingMu.Lock()
	c.pending[id] = pendingCall{resultCh: resultCh}
	c.pendingMu.Unlock()

	req := request{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	raw, err := json.Marshal(req)
	if err != nil {
		c.removePending(id)
		return nil, fmt.Errorf("%w: marshaling request: %v", errs.ErrMcpProtocol, err)
	}

	c.writeMu.Lock()
	_, writeErr := c.stdin.Write(append(raw, '\n'))
	c.writeMu.Unlock()
	if writeErr != nil {
		c.removePending(id)
		return nil, fmt.Errorf("%w: writing request: %v", errs.ErrMcpDisconnected, writeErr)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-resultCh:
		if resp.Error != nil {
			return nil, fmt.Errorf("%w: %s", errs.ErrMcpProtocol, resp.Error.Message)
		}
		return resp.Result, nil
	case <-timer.C:
		c.removePending(id)
		return nil, fmt.Errorf("%w: %s timed out after %s", errs.ErrMcpTimeout, method, timeout)
	case <-ctx.Done():
		c.removePending(id)
		return nil, ctx.Err()
	}
}

func (c *Client) removePending(id int64) {
	c.pendingMu.Lock()
	delete(c.pending, id)
	c.pendingMu.Unlock()
}

func (c *Client) notify(method string, params any) error {
	req := request{JSONRPC: "2.0", Method: method, Params: params}
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: marshaling notification: %v", errs.ErrMcpProtocol, err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.stdin.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("%w: writing notification: %v", errs.ErrMcpDisconnected, err)
	}
	return nil
}

// CallTool invokes a named MCP tool with the given arguments and an optional
// per-call timeout override (zero uses defaultTimeout).
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any, timeout time.Duration) (json.RawMessage, error) {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return c.call(ctx, "tools/call", map[string]any{"name": name, "arguments": arguments}, timeout)
}

// Navigate calls the browser_navigate tool.
func (c *Client) Navigate(ctx context.Context, url string) error {
	_, err := c.CallTool(ctx, "browser_navigate", map[string]any{"url": url}, defaultTimeout)
	return err
}

// Screenshot calls browser_take_screenshot with a 90s default timeout.
func (c *Client) Screenshot(ctx context.Context, path string, fullPage bool) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_take_screenshot", map[string]any{"filename": path, "fullPage": fullPage}, screenshotTimeout)
}

// Snapshot calls browser_snapshot with a 90s default timeout.
func (c *Client) Snapshot(ctx context.Context) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_snapshot", map[string]any{}, snapshotTimeout)
}

// Evaluate calls browser_evaluate with a 90s default timeout.
func (c *Client) Evaluate(ctx context.Context, expression string) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_evaluate", map[string]any{"expression": expression}, evaluateTimeout)
}

// ConsoleMessages calls browser_console_messages.
func (c *Client) ConsoleMessages(ctx context.Context) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_console_messages", map[string]any{}, defaultTimeout)
}

// Click calls browser_click on selector.
func (c *Client) Click(ctx context.Context, selector string) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_click", map[string]any{"selector": selector}, defaultTimeout)
}

// Type calls browser_type, entering text into selector.
func (c *Client) Type(ctx context.Context, selector, text string) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_type", map[string]any{"selector": selector, "text": text}, defaultTimeout)
}

// Scroll calls browser_scroll.
func (c *Client) Scroll(ctx context.Context, direction string, amount int) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_scroll", map[string]any{"direction": direction, "amount": amount}, defaultTimeout)
}

// PressKey calls browser_press_key.
func (c *Client) PressKey(ctx context.Context, key string) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_press_key", map[string]any{"key": key}, defaultTimeout)
}

// Hover calls browser_hover on selector.
func (c *Client) Hover(ctx context.Context, selector string) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_hover", map[string]any{"selector": selector}, defaultTimeout)
}

// WaitFor calls browser_wait_for with a condition and a timeout in ms.
func (c *Client) WaitFor(ctx context.Context, condition string, timeoutMs int) (json.RawMessage, error) {
	timeout := defaultTimeout
	if timeoutMs > 0 {
		timeout = time.Duration(timeoutMs)*time.Millisecond + 5*time.Second
	}
	return c.CallTool(ctx, "browser_wait_for", map[string]any{"condition": condition, "timeoutMs": timeoutMs}, timeout)
}

// StartRecording calls browser_start_recording.
func (c *Client) StartRecording(ctx context.Context, path string) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_start_recording", map[string]any{"videoPath": path}, defaultTimeout)
}

// StopRecording calls browser_stop_recording.
func (c *Client) StopRecording(ctx context.Context) (json.RawMessage, error) {
	return c.CallTool(ctx, "browser_stop_recording", map[string]any{}, defaultTimeout)
}

// Disconnect stops the reader, closes stdin, and terminates the child
// process with a 5s grace period before a hard kill. Idempotent-safe to call
// once; a second call is not supported since streams are already closed.
func (c *Client) Disconnect() error {
	_ = c.stdin.Close()

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	if c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(terminateSignal)
	}

	select {
	case <-done:
	case <-time.After(disconnectGrace):
		c.log.Warnf("mcp: process did not terminate gracefully, killing")
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		<-done
	}
	return nil
}
