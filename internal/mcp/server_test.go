package mcp

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hochfrequenz/lintgate/internal/logging"
)

func newTestServer() *Server {
	s := NewServer("lintgate-test", "0.0.1", logging.Discard())
	s.Register(ToolInfo{Name: "echo", Description: "echo text"}, func(ctx context.Context, args map[string]any) (string, error) {
		return RequiredString(args, "text")
	})
	s.Register(ToolInfo{Name: "fail"}, func(ctx context.Context, args map[string]any) (string, error) {
		return "", errors.New("tool broke")
	})
	s.Register(ToolInfo{Name: "panic"}, func(ctx context.Context, args map[string]any) (string, error) {
		panic("kaboom")
	})
	return s
}

// connect runs s over in-memory pipes and returns a connected client
func connect(t *testing.T, s *Server) *Client {
	t.Helper()
	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	done := make(chan error, 1)
	go func() {
		done <- s.Serve(context.Background(), reqR, respW)
		respW.Close()
	}()

	c, err := Connect(respR, reqW)
	require.NoError(t, err)
	t.Cleanup(func() {
		c.Close()
		<-done
	})
	return c
}

func TestClientServer_Handshake(t *testing.T) {
	c := connect(t, newTestServer())
	assert.Equal(t, "lintgate-test", c.ServerInfo.Name)
	assert.Equal(t, "0.0.1", c.ServerInfo.Version)

	tools, err := c.ListTools()
	require.NoError(t, err)
	require.Len(t, tools, 3)
	assert.Equal(t, "echo", tools[0].Name)
	assert.Equal(t, "object", tools[1].InputSchema["type"])
}

func TestClientServer_CallTool(t *testing.T) {
	c := connect(t, newTestServer())

	res, err := c.CallTool("echo", map[string]any{"text": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Text())

	_, err = c.CallTool("echo", nil)
	var rpcErr *JSONRPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeToolError, rpcErr.Code)
	assert.Equal(t, "text is required", rpcErr.Message)

	_, err = c.CallTool("fail", nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "tool broke", rpcErr.Message)

	_, err = c.CallTool("panic", nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Contains(t, rpcErr.Message, "kaboom")

	_, err = c.CallTool("missing", nil)
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, CodeInvalidParams, rpcErr.Code)

	// The connection survives all of the above.
	res, err = c.CallTool("echo", map[string]any{"text": "still here"})
	require.NoError(t, err)
	assert.Equal(t, "still here", res.Text())
}

func TestServer_HandleLine(t *testing.T) {
	s := newTestServer()
	ctx := context.Background()

	resp := s.HandleLine(ctx, []byte(`{not json`))
	require.NotNil(t, resp)
	assert.Equal(t, CodeParseError, resp.Error.Code)
	assert.Equal(t, "null", string(resp.ID))

	resp = s.HandleLine(ctx, []byte(`{"jsonrpc":"2.0","id":"abc","method":"resources/list"}`))
	require.NotNil(t, resp)
	assert.Equal(t, CodeMethodNotFound, resp.Error.Code)
	assert.Equal(t, `"abc"`, string(resp.ID))

	resp = s.HandleLine(ctx, []byte(`{"jsonrpc":"2.0","id":7,"method":"ping"}`))
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)

	assert.Nil(t, s.HandleLine(ctx, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`)))
}

func TestArgs(t *testing.T) {
	args := map[string]any{
		"name":  "mypy",
		"limit": float64(5),
		"half":  2.5,
		"flag":  true,
		"files": []any{"a.py", "b.py"},
		"mixed": []any{"a.py", 3.0},
	}

	s, err := StringArg(args, "name")
	require.NoError(t, err)
	assert.Equal(t, "mypy", s)
	_, err = StringArg(args, "flag")
	assert.Error(t, err)
	_, err = RequiredString(args, "absent")
	assert.Error(t, err)

	n, err := IntArg(args, "limit", 10)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	n, err = IntArg(args, "absent", 10)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	_, err = IntArg(args, "half", 0)
	assert.Error(t, err)

	b, err := BoolArg(args, "flag")
	require.NoError(t, err)
	assert.True(t, b)

	files, err := StringSliceArg(args, "files")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.py", "b.py"}, files)
	_, err = StringSliceArg(args, "mixed")
	assert.Error(t, err)
}
