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

// Package pool implements the Connection Pool (C5): it owns the child
// process lifecycle of every downstream MCP server, indexes their tools
// into the Tool Zoo, and routes tools/call traffic to the owning server
// with retry and failure isolation.
package pool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/exec"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog"

	"github.com/toolgate/toolgate/internal/auth"
	"github.com/toolgate/toolgate/internal/common"
)

// handle is the runtime record for one downstream server, implementing the
// Disconnected -> Starting -> Ready -> Failing -> Dead state machine of
// spec.md §4.5.
type handle struct {
	name string
	spec common.SpawnSpec

	mu                  sync.Mutex
	state               common.ServerState
	consecutiveFailures int
	cooldownUntil       time.Time
	failureBudget       int
	backoffBase         time.Duration
	backoffCap          time.Duration

	client  *mcp.Client
	session *mcp.ClientSession
	tools   []common.ToolDescriptor

	logger   zerolog.Logger
	onChange func(server, from, to string)
}

func newHandle(name string, spec common.SpawnSpec, failureBudget int, backoffBase, backoffCap time.Duration, logger zerolog.Logger, onChange func(server, from, to string)) *handle {
	return &handle{
		name:          name,
		spec:          spec,
		state:         common.StateDisconnected,
		failureBudget: failureBudget,
		backoffBase:   backoffBase,
		backoffCap:    backoffCap,
		logger:        logger,
		onChange:      onChange,
	}
}

func (h *handle) setState(to common.ServerState) {
	h.mu.Lock()
	from := h.state
	h.state = to
	h.mu.Unlock()
	if from != to && h.onChange != nil {
		h.onChange(h.name, string(from), string(to))
	}
}

func (h *handle) getState() common.ServerState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// start spawns the subprocess (or dials the HTTP endpoint), completes the
// MCP initialize + tools/list handshake, and transitions Starting -> Ready
// (or Starting -> Failing on any error). extraHeaders are headers the
// frontend transport captured from the client's initialize call; they
// override the spec's own configured headers for this connection attempt.
func (h *handle) start(ctx context.Context, extraHeaders map[string]string) error {
	h.setState(common.StateStarting)

	client := mcp.NewClient(&mcp.Implementation{Name: "toolgate", Version: "1.0.0"}, nil)
	transport, err := h.createTransport(extraHeaders)
	if err != nil {
		h.recordFailure(err)
		return fmt.Errorf("failed to build transport for %s: %w", h.name, err)
	}

	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		h.recordFailure(err)
		return fmt.Errorf("failed to connect to %s: %w", h.name, err)
	}

	result, err := session.ListTools(ctx, nil)
	if err != nil {
		session.Close()
		h.recordFailure(err)
		return fmt.Errorf("failed to list tools for %s: %w", h.name, err)
	}

	descriptors := make([]common.ToolDescriptor, 0, len(result.Tools))
	for _, t := range result.Tools {
		descriptors = append(descriptors, common.ToolDescriptor{
			QualifiedName: h.name + "." + t.Name,
			Server:        h.name,
			LocalName:     t.Name,
			Description:   t.Description,
			InputSchema:   schemaToMap(t.InputSchema),
			Tags:          h.spec.Tags,
		})
	}

	h.mu.Lock()
	h.client = client
	h.session = session
	h.tools = descriptors
	h.consecutiveFailures = 0
	h.mu.Unlock()

	h.setState(common.StateReady)
	return nil
}

// recordFailure bumps consecutive_failures and transitions the handle to
// Failing, or straight to Dead if the failure budget is exhausted.
func (h *handle) recordFailure(err error) {
	h.mu.Lock()
	h.consecutiveFailures++
	exceeded := h.consecutiveFailures > h.failureBudget
	h.mu.Unlock()

	if exceeded {
		h.setState(common.StateDead)
		h.logger.Error().Err(err).Str("server", h.name).Msg("downstream server exceeded failure budget, marked dead")
		return
	}
	h.setState(common.StateFailing)
	h.logger.Warn().Err(err).Str("server", h.name).Int("consecutive_failures", h.consecutiveFailures).Msg("downstream server failing")
}

// backoffDelay returns 2^attempt * base, capped at cap.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > cap {
			return cap
		}
	}
	if d > cap {
		return cap
	}
	return d
}

func (h *handle) callTool(ctx context.Context, localName string, args map[string]any) (*mcp.CallToolResult, error) {
	h.mu.Lock()
	session := h.session
	h.mu.Unlock()
	if session == nil {
		return nil, fmt.Errorf("not connected to %s", h.name)
	}
	return session.CallTool(ctx, &mcp.CallToolParams{Name: localName, Arguments: args})
}

func (h *handle) close() {
	h.mu.Lock()
	session := h.session
	h.session = nil
	h.mu.Unlock()
	if session != nil {
		session.Close()
	}
	h.setState(common.StateDisconnected)
}

// createTransport builds the MCP transport for this server, substituting
// ${ENV_VAR} references in both headers and environment (per the teacher's
// GetSubstitutedHeaders) and merging extraHeaders over the spec's own
// configured headers, caller wins.
func (h *handle) createTransport(extraHeaders map[string]string) (mcp.Transport, error) {
	switch h.spec.Transport {
	case "http":
		if h.spec.URL == "" {
			return nil, fmt.Errorf("http transport for %s requires a url", h.name)
		}
		headers := auth.MergeHeaders(auth.SubstituteHeaders(h.spec.Headers), auth.SubstituteHeaders(extraHeaders))
		httpClient := &http.Client{
			Transport: auth.HeaderRoundTripper{Headers: headers},
			Timeout:   30 * time.Second,
		}
		return &mcp.StreamableClientTransport{Endpoint: h.spec.URL, HTTPClient: httpClient}, nil
	case "stdio", "":
		if h.spec.Command == "" {
			return nil, fmt.Errorf("stdio transport for %s requires a command", h.name)
		}
		cmd := exec.Command(h.spec.Command, h.spec.Args...)
		cmd.Env = append(cmd.Env, auth.EnvSlice(auth.SubstituteEnv(h.spec.Env))...)
		return &mcp.CommandTransport{Command: cmd}, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q for %s", h.spec.Transport, h.name)
	}
}

// schemaToMap converts an MCP tool's InputSchema (a *jsonschema.Schema) into
// the map[string]any shape the Tool Zoo's ToolDescriptor carries. The
// "properties" object's declared key order is recovered from the raw JSON
// and reattached under "x-property-order", since the map[string]any
// conversion itself would otherwise lose it.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	m, err := jsonToMap(data)
	if err != nil {
		return nil
	}
	if order := extractPropertyOrder(data); len(order) > 0 {
		m["x-property-order"] = order
	}
	return m
}
