// Copyright 2025 Toolgate Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at.
//
//     http://www.apache.org/licenses/LICENSE-2.0.
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package frontend

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/config"
	"github.com/toolgate/toolgate/internal/pool"
	"github.com/toolgate/toolgate/internal/processor"
	"github.com/toolgate/toolgate/internal/router"
	"github.com/toolgate/toolgate/internal/session"
	"github.com/toolgate/toolgate/internal/telemetry"
	"github.com/toolgate/toolgate/internal/zoo"
)

const protocolVersion = "2025-06-18"

// Options configures strictness and timeouts the frontend applies around
// Router/Pool calls.
type Options struct {
	Name            string
	Version         string
	RouterConfig    router.Config
	CallTimeout     time.Duration
	MaxRetries      int
	StrictInjection bool                     // if true, TOOL_NOT_INJECTED is a hard error, not a soft warning
	Processors      []config.ProcessorConfig // CLI hook chain, run over routing decisions and tool calls
}

// Frontend terminates one MCP session over a bidirectional stream (stdio by
// default) and dispatches initialize/tools-list/tools-call to the Router,
// Tool Zoo, Connection Pool, Session Store, and Telemetry Bus. This is C1.
type Frontend struct {
	pool     *pool.Pool
	router   *router.Router
	zoo      *zoo.Zoo
	sessions *session.Store
	bus      *telemetry.Bus
	logger   zerolog.Logger
	opts     Options

	// sessionID is bound once for the stdio transport's lifetime, per the
	// decided open question that session identity is implicit and
	// one-per-process for this transport.
	sessionID string
}

// New constructs a Frontend wired to the given components.
func New(p *pool.Pool, r *router.Router, z *zoo.Zoo, sessions *session.Store, bus *telemetry.Bus, logger zerolog.Logger, opts Options) *Frontend {
	if opts.Name == "" {
		opts.Name = "toolgate"
	}
	if opts.Version == "" {
		opts.Version = "1.0.0"
	}
	return &Frontend{
		pool:      p,
		router:    r,
		zoo:       z,
		sessions:  sessions,
		bus:       bus,
		logger:    logger,
		opts:      opts,
		sessionID: uuid.NewString(),
	}
}

// Serve runs the frontend's request loop until r is exhausted or ctx is
// cancelled: read a newline-delimited JSON-RPC request, dispatch it,
// write the newline-delimited JSON-RPC response. Framing errors are fatal
// to the connection (the loop returns); per-request errors never are.
func (f *Frontend) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	writer := bufio.NewWriter(w)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var req rpcRequest
		if err := json.Unmarshal([]byte(line), &req); err != nil {
			return fmt.Errorf("malformed JSON-RPC frame: %w", err)
		}

		resp := f.dispatch(ctx, req)
		if err := f.writeResponse(writer, resp); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stdio read error: %w", err)
	}
	return nil
}

func (f *Frontend) writeResponse(w *bufio.Writer, resp rpcResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	if err := w.WriteByte('\n'); err != nil {
		return err
	}
	return w.Flush()
}

// dispatch mints trace correlation, routes by method, and converts every
// error into a well-formed JSON-RPC error envelope. It never panics and
// never returns a framing-level error: every path here produces a
// response.
func (f *Frontend) dispatch(ctx context.Context, req rpcRequest) rpcResponse {
	ctx, span := telemetry.Tracer().Start(ctx, "frontend."+req.Method)
	defer span.End()

	tc := common.NewTraceContext(f.sessionID)
	ctx = common.WithTrace(ctx, tc)
	corr := telemetry.Correlation{TraceID: tc.TraceID, RequestID: tc.RequestID, SessionID: f.sessionID, Timestamp: time.Now()}

	switch req.Method {
	case "initialize":
		return successResponse(req.ID, f.handleInitialize(ctx, req))
	case "tools/list":
		return f.handleToolsList(ctx, req, corr)
	case "tools/call":
		return f.handleToolsCall(ctx, req, corr)
	default:
		return errorResponse(req.ID, common.JSONRPCMethodNotFound, fmt.Sprintf("unknown method %q", req.Method), nil)
	}
}

// handleInitialize returns server info/capabilities and, if the client
// passed pass-through credential headers, reconnects every downstream
// server with them merged in (C1.4's per-session downstream reconnect
// fan-out). Reconnect runs synchronously so the first tools/list after
// initialize already sees the authenticated downstream state. A reconnect
// failure is logged, not fatal; ReconnectAll closes each server's existing
// connection before reconnecting, so a server whose reconnect fails is left
// without a usable connection.
func (f *Frontend) handleInitialize(ctx context.Context, req rpcRequest) initializeResult {
	if len(req.Params) > 0 {
		var params initializeParams
		if err := json.Unmarshal(req.Params, &params); err == nil && len(params.Headers) > 0 && f.pool != nil {
			if err := f.pool.ReconnectAll(ctx, params.Headers); err != nil {
				f.logger.Warn().Err(err).Msg("failed to reconnect downstream servers with session credentials")
			}
		}
	}
	return initializeResult{
		ServerInfo:   serverInfo{Name: f.opts.Name, Version: f.opts.Version},
		Capabilities: capabilities{Tools: map[string]any{}},
	}
}

// ingestContext parses tools/list's optional opaque context token (spec.md
// §4.1) and appends any new conversation turns it carries to the session,
// so query construction (§4.4 step 1) has live messages to build a routing
// query from instead of an always-empty history. A missing or unparseable
// token is not an error: tools/list's inputs are "none or an opaque context
// token", so this is simply the no-context case.
func (f *Frontend) ingestContext(ctx context.Context, raw json.RawMessage) error {
	if len(raw) == 0 {
		return nil
	}
	var params toolsListParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil
	}

	now := time.Now()
	for _, m := range params.Messages {
		role := m.Role
		if role == "" {
			role = "user"
		}
		if err := f.sessions.AppendMessage(ctx, f.sessionID, common.Message{Role: role, Content: m.Content, Timestamp: now}); err != nil {
			return err
		}
	}
	if len(params.Messages) == 0 && params.Context != "" {
		if err := f.sessions.AppendMessage(ctx, f.sessionID, common.Message{Role: "user", Content: params.Context, Timestamp: now}); err != nil {
			return err
		}
	}
	return nil
}

// handleToolsList runs the Router over the session's recent messages,
// translates the selection into MCP tool entries whose description is the
// underlying description concatenated with the affordance hint, persists
// the decision as the session's last routing, and emits ToolListDecision.
func (f *Frontend) handleToolsList(ctx context.Context, req rpcRequest, corr telemetry.Correlation) rpcResponse {
	if f.bus != nil {
		f.bus.Emit(telemetry.ToolListRequest(corr))
	}

	sess, err := f.sessions.GetOrCreate(ctx, f.sessionID)
	if err != nil {
		return errorResponse(req.ID, common.JSONRPCGatewayError, "failed to resolve session", common.NewGatewayError(common.ErrServerUnavailable, "session store unavailable", err).Data())
	}

	if err := f.ingestContext(ctx, req.Params); err != nil {
		f.logger.Warn().Err(err).Msg("failed to persist conversation context ahead of routing")
	}

	decision, err := f.router.Route(ctx, sess, f.opts.RouterConfig, corr)
	if err != nil {
		return errorResponse(req.ID, common.JSONRPCGatewayError, "routing failed", common.NewGatewayError(common.ErrServerUnavailable, "router error", err).Data())
	}

	if resp, rejected := f.runProcessorChain(req.ID, processor.EventRouting, "", map[string]any{
		"selected":           decision.Selected,
		"confidence":         decision.Confidence,
		"triggered_fallback": decision.TriggeredFallback,
	}, func(modified map[string]any) {
		if selected, ok := modified["selected"].([]interface{}); ok {
			names := make([]string, 0, len(selected))
			for _, s := range selected {
				if name, ok := s.(string); ok {
					names = append(names, name)
				}
			}
			decision.Selected = names
		}
	}); rejected {
		return resp
	}

	if err := f.sessions.SetLastRouting(ctx, f.sessionID, decision); err != nil {
		f.logger.Warn().Err(err).Msg("failed to persist last routing decision")
	}

	tools := make([]mcpTool, 0, len(decision.Selected))
	for _, name := range decision.Selected {
		d, ok := f.zoo.Get(name)
		if !ok {
			continue
		}
		description := d.Description
		if d.AffordanceHint != "" {
			description = description + "\n" + d.AffordanceHint
		}
		tools = append(tools, mcpTool{Name: d.QualifiedName, Description: description, InputSchema: d.InputSchema})
	}

	if f.bus != nil {
		f.bus.Emit(telemetry.ToolListDecision(corr, decision.Candidates, decision.Scores, decision.Selected, decision.Confidence, decision.TriggeredFallback, decision.QueryUsed))
	}

	return successResponse(req.ID, toolsListResult{Tools: tools})
}

// handleToolsCall validates name against the session's most recent
// tools/list, resolves it to a downstream server, proxies the call through
// the Connection Pool with retry, records the outcome, and runs the
// Router's adaptive-learning update on success.
func (f *Frontend) handleToolsCall(ctx context.Context, req rpcRequest, corr telemetry.Correlation) rpcResponse {
	var params toolsCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, common.JSONRPCInvalidParams, "invalid tools/call params", nil)
	}

	sess, err := f.sessions.GetOrCreate(ctx, f.sessionID)
	if err != nil {
		return errorResponse(req.ID, common.JSONRPCGatewayError, "failed to resolve session", common.NewGatewayError(common.ErrServerUnavailable, "session store unavailable", err).Data())
	}

	descriptor, ok := f.zoo.Get(params.Name)
	if !ok {
		gerr := common.NewGatewayError(common.ErrToolNotFound, fmt.Sprintf("no tool named %q is known", params.Name), nil)
		return errorResponse(req.ID, common.JSONRPCGatewayError, gerr.Message, gerr.Data())
	}

	if !f.wasRecentlyListed(sess, params.Name) {
		if f.opts.StrictInjection {
			gerr := common.NewGatewayError(common.ErrToolNotInjected, fmt.Sprintf("tool %q was not in the most recent tools/list", params.Name), nil)
			return errorResponse(req.ID, common.JSONRPCGatewayError, gerr.Message, gerr.Data())
		}
		f.logger.Warn().Str("tool", params.Name).Msg("tools/call for a tool absent from the most recent tools/list; proxying anyway")
	}

	if resp, rejected := f.runProcessorChain(req.ID, processor.EventToolCallRequest, descriptor.Server, map[string]any{
		"name":      params.Name,
		"arguments": params.Arguments,
	}, func(modified map[string]any) {
		if args, ok := modified["arguments"].(map[string]interface{}); ok {
			params.Arguments = args
		}
	}); rejected {
		return resp
	}

	if f.bus != nil {
		f.bus.Emit(telemetry.ToolCallProxyStart(corr, params.Name))
	}

	start := time.Now()
	result, callErr := f.pool.Call(ctx, params.Name, params.Arguments, f.opts.CallTimeout, f.opts.MaxRetries)
	latencyMs := float64(time.Since(start).Microseconds()) / 1000.0

	success := callErr == nil && (result == nil || !result.IsError)
	errorCode := ""
	if callErr != nil {
		var gerr *common.GatewayError
		if asGatewayError(callErr, &gerr) {
			errorCode = string(gerr.Code)
		}
	} else if result != nil && result.IsError {
		errorCode = string(common.ErrToolExecutionError)
	}

	if err := f.sessions.RecordToolOutcome(ctx, f.sessionID, params.Name, success, latencyMs); err != nil {
		f.logger.Warn().Err(err).Msg("failed to persist tool outcome")
	}

	if f.bus != nil {
		f.bus.Emit(telemetry.ToolCallProxyEnd(corr, params.Name, success, latencyMs, errorCode))
	}

	if success {
		if last := sess.LastRoutingGet(); last != nil {
			if err := f.router.RecordAdaptiveLearning(ctx, f.sessions, f.sessionID, last.Selected, f.opts.RouterConfig); err != nil {
				f.logger.Warn().Err(err).Msg("failed to record adaptive learning update")
			}
		}
	}

	if callErr != nil {
		var gerr *common.GatewayError
		if asGatewayError(callErr, &gerr) {
			return errorResponse(req.ID, common.JSONRPCGatewayError, gerr.Message, gerr.Data())
		}
		return errorResponse(req.ID, common.JSONRPCGatewayError, callErr.Error(), nil)
	}

	if result != nil && result.IsError {
		// Downstream-reported tool error: return immediately as
		// TOOL_EXECUTION_ERROR, preserving the downstream body under
		// data.downstream (spec.md §4.5 step 4, §7).
		gerr := common.NewGatewayError(common.ErrToolExecutionError,
			fmt.Sprintf("tool %q reported an error", params.Name), nil).
			WithDownstream(resultToContentBlocks(result))
		return errorResponse(req.ID, common.JSONRPCGatewayError, gerr.Message, gerr.Data())
	}

	content := resultToContentBlocks(result)
	if resp, rejected := f.runProcessorChain(req.ID, processor.EventToolCallResponse, descriptor.Server, map[string]any{
		"name":    params.Name,
		"content": content,
	}, func(modified map[string]any) {
		if c, ok := modified["content"].([]interface{}); ok {
			blocks := make([]map[string]any, 0, len(c))
			for _, b := range c {
				if m, ok := b.(map[string]interface{}); ok {
					blocks = append(blocks, m)
				}
			}
			content = blocks
		}
	}); rejected {
		return resp
	}

	return successResponse(req.ID, map[string]any{"content": content})
}

// runProcessorChain builds a processor Chain scoped to serverName (empty
// for routing events) and runs it over payload. If the chain is empty
// (no processors configured) it is a fast no-op. On success, apply is
// called with the chain's final payload so the caller can fold any
// processor modification back into its own state; on rejection or
// execution failure, runProcessorChain renders the JSON-RPC error
// response itself and returns rejected=true.
func (f *Frontend) runProcessorChain(id json.RawMessage, eventType processor.EventType, serverName string, payload map[string]any, apply func(modified map[string]any)) (rpcResponse, bool) {
	if len(f.opts.Processors) == 0 {
		return rpcResponse{}, false
	}

	chain, err := processor.NewChain(f.opts.Processors, serverName, f.sessionID)
	if err != nil {
		gerr := common.NewGatewayError(common.ErrServerUnavailable, "failed to build processor chain", err)
		return errorResponse(id, common.JSONRPCGatewayError, gerr.Message, gerr.Data()), true
	}

	result, err := chain.Run(eventType, payload)
	if err != nil {
		gerr := common.NewGatewayError(common.ErrServerUnavailable, "processor chain failed", err)
		return errorResponse(id, common.JSONRPCGatewayError, gerr.Message, gerr.Data()), true
	}

	if result.Rejected() {
		data, err := processor.FormatGatewayError(result, id)
		if err != nil {
			return errorResponse(id, common.JSONRPCGatewayError, "processor chain rejected the request", nil), true
		}
		var envelope rpcResponse
		if err := json.Unmarshal(data, &envelope); err != nil {
			return errorResponse(id, common.JSONRPCGatewayError, "processor chain rejected the request", nil), true
		}
		return envelope, true
	}

	apply(result.ModifiedPayload)
	return rpcResponse{}, false
}

// wasRecentlyListed reports whether name was part of the session's most
// recently returned tools/list selection.
func (f *Frontend) wasRecentlyListed(sess *session.Session, name string) bool {
	last := sess.LastRoutingGet()
	if last == nil {
		return false
	}
	for _, n := range last.Selected {
		if n == name {
			return true
		}
	}
	return false
}

func asGatewayError(err error, target **common.GatewayError) bool {
	for err != nil {
		if g, ok := err.(*common.GatewayError); ok {
			*target = g
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// resultToContentBlocks converts an mcp.CallToolResult's content into the
// serializable shape spec.md §6.1 specifies for tools/call responses.
func resultToContentBlocks(result *mcp.CallToolResult) []map[string]any {
	if result == nil {
		return nil
	}
	blocks := make([]map[string]any, 0, len(result.Content))
	for _, content := range result.Content {
		switch c := content.(type) {
		case *mcp.TextContent:
			blocks = append(blocks, map[string]any{"type": "text", "text": c.Text})
		case *mcp.ImageContent:
			blocks = append(blocks, map[string]any{"type": "image", "data": string(c.Data), "mime_type": c.MIMEType})
		}
	}
	return blocks
}
