package mcp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"sync"
)

// Client speaks line-delimited JSON-RPC to one MCP server. Calls are
// serialised; there is one request in flight at a time.
type Client struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Closer
	reader *bufio.Reader
	mu     sync.Mutex
	nextID int64

	// ServerInfo is filled in by the initialize handshake
	ServerInfo struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
}

type rawResponse struct {
	ID     json.RawMessage `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *JSONRPCError   `json:"error,omitempty"`
}

// Connect performs the initialize handshake over an existing stream pair
func Connect(r io.Reader, w io.WriteCloser) (*Client, error) {
	c := &Client{stdin: w, reader: bufio.NewReader(r)}
	if rc, ok := r.(io.Closer); ok {
		c.stdout = rc
	}
	if err := c.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize MCP connection: %w", err)
	}
	return c, nil
}

// Spawn starts command as an MCP server and connects to its stdio
func Spawn(command string, args []string, env []string) (*Client, error) {
	cmd := exec.Command(command, args...)
	if len(env) > 0 {
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		return nil, fmt.Errorf("failed to start MCP server: %w", err)
	}

	client, err := Connect(stdout, stdin)
	if err != nil {
		stdin.Close()
		cmd.Wait()
		return nil, err
	}
	client.cmd = cmd
	return client, nil
}

// initialize runs the handshake and records the server's identity
func (c *Client) initialize() error {
	type peer struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	}
	params := struct {
		ProtocolVersion string         `json:"protocolVersion"`
		Capabilities    map[string]any `json:"capabilities"`
		ClientInfo      peer           `json:"clientInfo"`
	}{ProtocolVersion, map[string]any{}, peer{"lintgate-client", "1.0.0"}}

	result, err := c.call("initialize", params)
	if err != nil {
		return err
	}
	var reply struct {
		ServerInfo *peer `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &reply); err != nil {
		return fmt.Errorf("decoding initialize result: %w", err)
	}
	if reply.ServerInfo != nil {
		c.ServerInfo.Name, c.ServerInfo.Version = reply.ServerInfo.Name, reply.ServerInfo.Version
	}
	return c.notify("notifications/initialized", nil)
}

// ListTools returns the server's tool catalogue
func (c *Client) ListTools() ([]ToolInfo, error) {
	result, err := c.call("tools/list", nil)
	if err != nil {
		return nil, err
	}
	var list struct {
		Tools []ToolInfo `json:"tools"`
	}
	if err := json.Unmarshal(result, &list); err != nil {
		return nil, fmt.Errorf("decoding tool list: %w", err)
	}
	return list.Tools, nil
}

// CallTool invokes a tool. A tool that reports IsError is not a Go error;
// protocol failures are.
func (c *Client) CallTool(name string, arguments map[string]any) (*ToolResult, error) {
	result, err := c.call("tools/call", ToolCallParams{Name: name, Arguments: arguments})
	if err != nil {
		return nil, err
	}
	var out ToolResult
	if err := json.Unmarshal(result, &out); err != nil {
		return nil, fmt.Errorf("decoding %s result: %w", name, err)
	}
	return &out, nil
}

// outgoing is a request or, without an ID, a notification
type outgoing struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// write sends one newline-delimited message. The caller holds c.mu.
func (c *Client) write(msg outgoing) error {
	msg.JSONRPC = "2.0"
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Method, err)
	}
	if _, err := c.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("sending %s: %w", msg.Method, err)
	}
	return nil
}

// call sends a request and reads the next line as its response. A server
// error is returned as *JSONRPCError.
func (c *Client) call(method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if err := c.write(outgoing{ID: id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	line, err := c.reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}
	var resp rawResponse
	if err := json.Unmarshal(line, &resp); err != nil {
		return nil, fmt.Errorf("decoding %s response: %w", method, err)
	}
	if got := string(resp.ID); got != strconv.FormatInt(id, 10) {
		return nil, fmt.Errorf("%s: response id %s does not match request %d", method, got, id)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

func (c *Client) notify(method string, params any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.write(outgoing{Method: method, Params: params})
}

// Close shuts down the connection and, for spawned servers, waits for exit
func (c *Client) Close() error {
	c.stdin.Close()
	if c.stdout != nil {
		c.stdout.Close()
	}
	if c.cmd != nil {
		return c.cmd.Wait()
	}
	return nil
}
