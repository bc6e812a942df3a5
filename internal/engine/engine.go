package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/ggoodman/mcp-sse-commerce/internal/jsonrpc"
	"github.com/ggoodman/mcp-sse-commerce/internal/logctx"
	"github.com/ggoodman/mcp-sse-commerce/internal/tracing"
	"github.com/ggoodman/mcp-sse-commerce/mcp"
)

// ToolCatalog is the tool invocation layer as seen by the engine.
type ToolCatalog interface {
	List() []mcp.Tool
	Call(ctx context.Context, name string, args json.RawMessage) (any, error)
}

// Engine turns one inbound JSON-RPC message into at most one response. It
// holds no per-session state; the transport owns sessions and framing.
type Engine struct {
	tools        ToolCatalog
	log          *slog.Logger
	info         mcp.ImplementationInfo
	instructions string
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets a custom logger for the Engine.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithServerInfo sets the serverInfo advertised by initialize.
func WithServerInfo(name, version string) EngineOption {
	return func(e *Engine) {
		if name != "" {
			e.info.Name = name
		}
		if version != "" {
			e.info.Version = version
		}
	}
}

// WithInstructions sets the optional instructions returned by initialize.
func WithInstructions(s string) EngineOption {
	return func(e *Engine) { e.instructions = s }
}

func NewEngine(tools ToolCatalog, opts ...EngineOption) *Engine {
	e := &Engine{
		tools: tools,
		log:   slog.Default(),
		info:  mcp.ImplementationInfo{Name: "laburen-mcp-server", Version: "1.0.0"},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Handle processes one raw message. It returns the response to deliver, or
// nil when nothing must be sent: notifications and client responses never
// produce a response, whatever their outcome.
func (e *Engine) Handle(ctx context.Context, raw []byte) *jsonrpc.Response {
	var msg jsonrpc.AnyMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.log.InfoContext(ctx, "engine.handle.invalid", slog.String("err", err.Error()))
		return jsonrpc.NewErrorResponse(jsonrpc.ProbeID(raw), jsonrpc.ErrorCodeInvalidRequest, "invalid request: "+err.Error(), nil)
	}

	typ := msg.Type()
	ctx = logctx.WithRPCMessage(ctx, &logctx.RPCMessage{Method: msg.Method, ID: msg.ID.String(), Type: typ})

	switch typ {
	case jsonrpc.TypeResponse:
		e.log.DebugContext(ctx, "engine.handle.unexpected_response")
		return nil
	case jsonrpc.TypeNotification:
		if _, err := e.HandleRequest(ctx, msg.AsRequest()); err != nil {
			e.log.DebugContext(ctx, "engine.handle_notification.fail", slog.String("err", err.Error()))
		}
		return nil
	}

	req := msg.AsRequest()
	res, err := e.HandleRequest(ctx, req)
	if err != nil {
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeServerError, err.Error(), nil)
	}
	return res
}

// HandleRequest dispatches req by method. A returned error is a failure while
// handling the request; the caller maps it to a -32000 error response.
// Panics are recovered into errors.
func (e *Engine) HandleRequest(ctx context.Context, req *jsonrpc.Request) (res *jsonrpc.Response, err error) {
	ctx, span := tracing.StartSpan(ctx, "engine.handle_request", attribute.String("rpc.method", req.Method))
	defer func() { tracing.End(span, err) }()

	start := time.Now()
	log := e.log.With(slog.String("method", req.Method))

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "engine.handle_request.panic", slog.Any("panic", r))
			res, err = nil, fmt.Errorf("internal error: %v", r)
		}
	}()

	switch req.Method {
	case string(mcp.InitializeMethod):
		res, err = e.handleInitialize(ctx, req)
	case string(mcp.PingMethod):
		res, err = jsonrpc.NewResultResponse(req.ID, mcp.EmptyResult{})
	case string(mcp.ToolsListMethod):
		res, err = e.handleToolsList(ctx, req)
	case string(mcp.ToolsCallMethod):
		res, err = e.handleToolCall(ctx, req)
	default:
		if req.IsNotification() && strings.HasPrefix(req.Method, mcp.NotificationPrefix) {
			// Lifecycle notifications (initialized, cancelled) need no action.
			return nil, nil
		}
		log.InfoContext(ctx, "engine.handle_request.unsupported", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return jsonrpc.NewErrorResponse(req.ID, jsonrpc.ErrorCodeMethodNotFound, "method not found: "+req.Method, nil), nil
	}

	if err != nil {
		log.InfoContext(ctx, "engine.handle_request.fail", slog.String("err", err.Error()), slog.Int64("dur_ms", time.Since(start).Milliseconds()))
		return nil, err
	}
	log.InfoContext(ctx, "engine.handle_request.ok", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
	return res, nil
}

func (e *Engine) handleInitialize(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	if len(req.Params) > 0 {
		var params mcp.InitializeRequest
		if err := json.Unmarshal(req.Params, &params); err == nil && params.ClientInfo.Name != "" {
			e.log.InfoContext(ctx, "engine.initialize.client",
				slog.String("client_name", params.ClientInfo.Name),
				slog.String("client_version", params.ClientInfo.Version),
				slog.String("protocol_version", params.ProtocolVersion))
		}
	}

	return jsonrpc.NewResultResponse(req.ID, &mcp.InitializeResult{
		ProtocolVersion: mcp.LatestProtocolVersion,
		Capabilities: mcp.ServerCapabilities{
			Tools: &mcp.ToolsCapability{},
		},
		ServerInfo:   e.info,
		Instructions: e.instructions,
	})
}

func (e *Engine) handleToolsList(_ context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return jsonrpc.NewResultResponse(req.ID, &mcp.ListToolsResult{Tools: e.tools.List()})
}

var errMissingToolName = errors.New("invalid params: name is required")

func (e *Engine) handleToolCall(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	var params mcp.CallToolRequestReceived
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
	}
	if params.Name == "" {
		return nil, errMissingToolName
	}

	ctx = logctx.WithToolCallData(ctx, &logctx.ToolCallData{ToolName: params.Name})

	out, err := e.tools.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		return nil, err
	}

	text, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode tool result: %w", err)
	}

	return jsonrpc.NewResultResponse(req.ID, &mcp.CallToolResult{
		Content: []mcp.ContentBlock{{Type: mcp.ContentTypeText, Text: string(text)}},
	})
}
