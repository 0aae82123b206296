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

// Package frontend implements the Frontend Transport (C1): one MCP session
// over newline-delimited JSON-RPC 2.0 on stdio, per spec.md §4.1/§6.1.
//
// The wire loop is hand-written rather than built on
// modelcontextprotocol/go-sdk's mcp.Server: every exercised use of that
// type in the retrieval pack registers a fixed, session-lifetime tool set
// via AddTool, with no observed hook for varying the tools/list result per
// request. This gateway's whole purpose is to vary exactly that per
// request, so the frontend speaks the documented wire shapes directly.
// mcp.Client/mcp.ClientSession (the half with confirmed per-call dynamism)
// is still used on the Connection Pool side.
package frontend

import "encoding/json"

// rpcRequest is one JSON-RPC 2.0 request object as received from the
// client.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// rpcResponse is one JSON-RPC 2.0 response object.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

func successResponse(id json.RawMessage, result any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, message string, data map[string]any) rpcResponse {
	return rpcResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message, Data: data}}
}

// mcpTool is one entry of a tools/list response, per spec.md §6.1.
type mcpTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type initializeResult struct {
	ServerInfo   serverInfo   `json:"serverInfo"`
	Capabilities capabilities `json:"capabilities"`
}

type serverInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type capabilities struct {
	Tools map[string]any `json:"tools"`
}

type toolsListResult struct {
	Tools []mcpTool `json:"tools"`
}

type toolsCallParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// toolsListParams is the JSON-RPC 2.0 "tools/list" request's optional
// params: the "opaque context token" spec.md §4.1 allows the client to pass
// so routing has conversation context to select against. messages carries
// new conversation turns to append to the session before routing (each
// {role, content}); context is a plain-string fallback for clients that do
// not structure turns, appended as a single "user"-role message.
type toolsListParams struct {
	Context  string         `json:"context,omitempty"`
	Messages []messageParam `json:"messages,omitempty"`
}

type messageParam struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// initializeParams is the JSON-RPC 2.0 "initialize" request's params. MCP's
// stdio transport carries no HTTP headers, so credential pass-through
// (SUPPLEMENTED FEATURES) accepts an optional non-standard "headers" field
// here instead, mirroring the teacher's HTTP-header capture at the
// equivalent point in its own request handling.
type initializeParams struct {
	Headers map[string]string `json:"headers,omitempty"`
}
