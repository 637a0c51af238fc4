// Package toolserver is the tool-calling entry point: a JSON-RPC 2.0 server
// speaking newline-delimited messages over a reader/writer pair (stdio in
// production), exposing the messaging operations as callable tools.
//
// Every tool invocation is routed through a privately owned floodgate
// Shield; the server never shares throttle state with the other entry
// points.
package toolserver

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/prilive-com/floodgate"
)

const (
	protocolVersion = "2024-11-05"
	serverName      = "floodgate-toolserver"
	serverVersion   = "1.0.0"

	// maxLineSize bounds a single inbound message.
	maxLineSize = 1 << 20
)

// JSON-RPC 2.0 error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// request is a JSON-RPC 2.0 request. ID is echoed verbatim; a missing ID
// marks a notification, which gets no response.
type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// response is a JSON-RPC 2.0 response.
type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Server is the tool-calling protocol server.
type Server struct {
	upstream floodgate.Messenger
	shield   *floodgate.Shield
	logger   *slog.Logger

	in  io.Reader
	out io.Writer

	// writeMu serializes responses: handlers run concurrently and a torn
	// line would corrupt the stream for the peer.
	writeMu sync.Mutex

	shieldOpts []floodgate.Option
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets a custom logger. The logger must not write to the
// server's output stream.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithShieldOptions appends options to the server's shield (useful for
// testing and for tuning limits in the process wiring).
func WithShieldOptions(opts ...floodgate.Option) Option {
	return func(s *Server) { s.shieldOpts = append(s.shieldOpts, opts...) }
}

// NewServer creates a tool server reading requests from in and writing
// responses to out.
func NewServer(upstream floodgate.Messenger, in io.Reader, out io.Writer, opts ...Option) *Server {
	s := &Server{
		upstream: upstream,
		in:       in,
		out:      out,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.shield = floodgate.New(append([]floodgate.Option{
		floodgate.WithLogger(s.logger),
	}, s.shieldOpts...)...)

	return s
}

// Shield returns the server's privately owned shield, mainly for monitoring.
func (s *Server) Shield() *floodgate.Shield { return s.shield }

// Run serves requests until the input stream closes. Each request is
// handled on its own goroutine so a tool call parked on throttle clearance
// does not block unrelated requests; Run returns only after all in-flight
// handlers finish.
//
// ctx cancels in-flight handlers, not the blocking read: closing the input
// stream is the shutdown signal.
func (s *Server) Run(ctx context.Context) error {
	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var wg sync.WaitGroup
	defer wg.Wait()

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		line = append([]byte(nil), line...)

		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.writeErrorResponse(nil, codeParseError, "parse error")
			continue
		}
		if strings.HasPrefix(req.Method, "notifications/") {
			continue
		}
		if req.JSONRPC != "2.0" || req.Method == "" {
			s.writeErrorResponse(req.ID, codeInvalidRequest, "invalid request")
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatch(ctx, &req)
		}()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("toolserver: read failed: %w", err)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, req *request) {
	switch req.Method {
	case "initialize":
		s.writeResult(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"capabilities": map[string]any{
				"tools": map[string]any{},
			},
			"serverInfo": map[string]any{
				"name":    serverName,
				"version": serverVersion,
			},
		})
	case "tools/list":
		s.writeResult(req.ID, toolsListResult{Tools: toolCatalog()})
	case "tools/call":
		s.handleToolCall(ctx, req)
	default:
		s.writeErrorResponse(req.ID, codeMethodNotFound, "method not found: "+req.Method)
	}
}

func (s *Server) writeResult(id json.RawMessage, result any) {
	s.write(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeErrorResponse(id json.RawMessage, code int, message string) {
	if id == nil {
		id = json.RawMessage("null")
	}
	s.write(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

func (s *Server) write(resp response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal response", "error", err)
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := fmt.Fprintf(s.out, "%s\n", data); err != nil {
		s.logger.Error("failed to write response", "error", err)
	}
}
