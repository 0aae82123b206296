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

package processor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/toolgate/toolgate/internal/config"
)

// EventType names the three points in the gateway's request handling a
// Chain can be run over.
type EventType string

const (
	// EventRouting runs over a RoutingDecision before it is returned from
	// tools/list.
	EventRouting EventType = "routing"
	// EventToolCallRequest runs over a tools/call request's arguments
	// before it is forwarded to the downstream server.
	EventToolCallRequest EventType = "tool_call_request"
	// EventToolCallResponse runs over a tools/call result before it is
	// returned to the client.
	EventToolCallResponse EventType = "tool_call_response"
)

// Chain runs a configured, ordered sequence of processors over one payload.
type Chain struct {
	processors []config.ProcessorConfig
	executor   *Executor
	serverName string
	sessionID  string
}

// NewChain constructs a Chain over processors, scoped to one downstream
// server and session. serverName is empty for EventRouting, since a
// routing decision is not scoped to any single downstream server.
func NewChain(processors []config.ProcessorConfig, serverName, sessionID string) (*Chain, error) {
	executor, err := NewExecutor()
	if err != nil {
		return nil, fmt.Errorf("failed to create processor executor: %w", err)
	}
	return &Chain{processors: processors, executor: executor, serverName: serverName, sessionID: sessionID}, nil
}

// Result is the outcome of running a Chain once.
type Result struct {
	Status          int                    // 200 continue, 4xx/5xx reject
	ModifiedPayload map[string]interface{} // final payload after every executed processor
	Error           *string                // rejection/failure reason, set iff Status >= 400
	ProcessorChain  []string                // names of processors that ran, in order
	Metadata        map[string]interface{} // per-processor metadata, keyed by processor name
}

// Rejected reports whether the chain rejected the payload (status >= 400).
func (r *Result) Rejected() bool {
	return r.Status >= 400
}

// Run executes every enabled processor in order against payload. A
// processor that fails to execute, or any processor returning status >=
// 400, short-circuits the chain; a nil/empty processor list is always a
// no-op pass-through with Status 200.
func (c *Chain) Run(eventType EventType, payload map[string]interface{}) (*Result, error) {
	processorChain := []string{}
	aggregatedMetadata := make(map[string]interface{})
	originalPayload := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		originalPayload[k] = v
	}

	for _, cfg := range c.processors {
		if !cfg.Enabled {
			continue
		}

		input := &config.ProcessorInput{
			Type:      string(eventType),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Connection: config.ProcessorConnection{
				ServerName: c.serverName,
				Transport:  "stdio",
				SessionID:  c.sessionID,
			},
			Payload: payload,
			Metadata: config.ProcessorMetadata{
				ProcessorChain:  processorChain,
				OriginalPayload: originalPayload,
			},
		}

		cfgCopy := cfg
		output, err := c.executor.Execute(&cfgCopy, input)
		if err != nil {
			msg := fmt.Sprintf("processor %q execution failed: %v", cfg.Name, err)
			return &Result{Status: 500, ModifiedPayload: payload, Error: &msg, ProcessorChain: processorChain, Metadata: aggregatedMetadata}, nil
		}

		processorChain = append(processorChain, cfg.Name)
		if output.Metadata != nil {
			aggregatedMetadata[cfg.Name] = output.Metadata
		}

		if output.Status >= 400 {
			return &Result{Status: output.Status, ModifiedPayload: output.Payload, Error: output.Error, ProcessorChain: processorChain, Metadata: aggregatedMetadata}, nil
		}
		payload = output.Payload
	}

	return &Result{Status: 200, ModifiedPayload: payload, ProcessorChain: processorChain, Metadata: aggregatedMetadata}, nil
}

// FormatGatewayError renders a rejected/failed Result as the MCP JSON-RPC
// error envelope the frontend writes back to the client.
func FormatGatewayError(result *Result, id json.RawMessage) ([]byte, error) {
	var code int
	var message string
	switch {
	case result.Status >= 500:
		code = -32603
		message = "processor chain execution failed"
	case result.Status >= 400:
		code = -32001
		message = "rejected by processor chain"
	default:
		return nil, fmt.Errorf("cannot format error for non-error status %d", result.Status)
	}

	data := map[string]interface{}{
		"processor_chain": result.ProcessorChain,
		"metadata":        result.Metadata,
	}
	if result.Error != nil {
		data["rejection_reason"] = *result.Error
	}

	envelope := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      id,
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
			"data":    data,
		},
	}
	return json.Marshal(envelope)
}
