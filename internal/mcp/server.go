package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// Handler runs one tool call and returns its text output
type Handler func(ctx context.Context, args map[string]any) (string, error)

type tool struct {
	info    ToolInfo
	handler Handler
}

// Server dispatches JSON-RPC requests to registered tools
type Server struct {
	name    string
	version string
	logger  *slog.Logger

	mu    sync.RWMutex
	tools map[string]tool
	order []string
}

// NewServer creates a server that reports name and version on initialize
func NewServer(name, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		name:    name,
		version: version,
		logger:  logger,
		tools:   make(map[string]tool),
	}
}

// Register adds a tool. Registering a name twice replaces the handler.
func (s *Server) Register(info ToolInfo, handler Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if info.InputSchema == nil {
		info.InputSchema = map[string]any{"type": "object", "properties": map[string]any{}}
	}
	if _, ok := s.tools[info.Name]; !ok {
		s.order = append(s.order, info.Name)
	}
	s.tools[info.Name] = tool{info: info, handler: handler}
}

// Tools lists registered tools in registration order
func (s *Server) Tools() []ToolInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ToolInfo, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tools[name].info)
	}
	return out
}

// Serve reads one request per line from r and writes one response per line
// to w until r is exhausted or ctx is cancelled.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	enc := json.NewEncoder(w)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := reader.ReadBytes('\n')
		if len(strings.TrimSpace(string(line))) > 0 {
			if resp := s.HandleLine(ctx, line); resp != nil {
				if werr := enc.Encode(resp); werr != nil {
					return fmt.Errorf("writing response: %w", werr)
				}
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading request: %w", err)
		}
	}
}

// HandleLine decodes and handles one raw request. It returns nil for
// notifications.
func (s *Server) HandleLine(ctx context.Context, line []byte) *JSONRPCResponse {
	var req JSONRPCRequest
	if err := json.Unmarshal(line, &req); err != nil {
		return errorResponse(json.RawMessage("null"), CodeParseError, "parse error: "+err.Error())
	}
	return s.Handle(ctx, &req)
}

// Handle dispatches one request. It returns nil for notifications.
func (s *Server) Handle(ctx context.Context, req *JSONRPCRequest) *JSONRPCResponse {
	if req.IsNotification() {
		s.logger.Debug("mcp notification", "method", req.Method)
		return nil
	}
	if req.Method == "" {
		return errorResponse(req.ID, CodeInvalidRequest, "method is required")
	}

	switch req.Method {
	case "initialize":
		return result(req.ID, map[string]any{
			"protocolVersion": ProtocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    s.name,
				"version": s.version,
			},
		})

	case "ping":
		return result(req.ID, struct{}{})

	case "tools/list":
		return result(req.ID, map[string]any{"tools": s.Tools()})

	case "tools/call":
		var params ToolCallParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, CodeInvalidParams, "invalid params: "+err.Error())
		}
		text, err := s.call(ctx, params)
		if err != nil {
			var rpcErr *JSONRPCError
			if errors.As(err, &rpcErr) {
				return errorResponse(req.ID, rpcErr.Code, rpcErr.Message)
			}
			return errorResponse(req.ID, CodeToolError, err.Error())
		}
		return result(req.ID, ToolResult{Content: []ToolContent{{Type: "text", Text: text}}})

	default:
		return errorResponse(req.ID, CodeMethodNotFound, "method not found")
	}
}

func (s *Server) call(ctx context.Context, params ToolCallParams) (text string, err error) {
	s.mu.RLock()
	t, ok := s.tools[params.Name]
	s.mu.RUnlock()
	if !ok {
		return "", &JSONRPCError{Code: CodeInvalidParams, Message: "unknown tool: " + params.Name}
	}
	if params.Arguments == nil {
		params.Arguments = map[string]any{}
	}

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("mcp tool panicked", "tool", params.Name, "panic", r)
			err = fmt.Errorf("tool %s panicked: %v", params.Name, r)
		}
	}()
	return t.handler(ctx, params.Arguments)
}

func result(id json.RawMessage, v any) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Result: v}
}

func errorResponse(id json.RawMessage, code int, message string) *JSONRPCResponse {
	return &JSONRPCResponse{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message}}
}
