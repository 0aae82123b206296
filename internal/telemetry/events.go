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

// Package telemetry implements Telemetry/Trace (C6): the tagged TraceEvent
// variants of spec.md §4.6/§6.3, emitted to a configured sink through a
// bounded, non-blocking queue, plus OpenTelemetry tracing and metrics.
package telemetry

import "time"

// Kind tags a TraceEvent variant.
type Kind string

const (
	KindToolListRequest      Kind = "ToolListRequest"
	KindToolListDecision     Kind = "ToolListDecision"
	KindToolCallProxyStart   Kind = "ToolCallProxyStart"
	KindToolCallProxyEnd     Kind = "ToolCallProxyEnd"
	KindDownstreamStateChange Kind = "DownstreamStateChange"
	KindRouterFallback       Kind = "RouterFallback"
)

// Correlation carries the fields every TraceEvent variant shares.
type Correlation struct {
	TraceID   string    `json:"trace_id"`
	RequestID string    `json:"request_id"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is one emitted TraceEvent. Fields is the variant's own payload,
// shaped per Kind; kept as a map so the sink need not know every variant's
// Go type.
type Event struct {
	Kind   Kind           `json:"kind"`
	Corr   Correlation    `json:"-"`
	Fields map[string]any `json:"fields"`
}

// MarshalJSON flattens Corr alongside Kind and Fields so the sink writes a
// single flat JSON object per line.
func (e Event) MarshalJSON() ([]byte, error) {
	flat := map[string]any{
		"kind":       e.Kind,
		"trace_id":   e.Corr.TraceID,
		"request_id": e.Corr.RequestID,
		"timestamp":  e.Corr.Timestamp,
	}
	if e.Corr.SessionID != "" {
		flat["session_id"] = e.Corr.SessionID
	}
	for k, v := range e.Fields {
		flat[k] = v
	}
	return jsonMarshal(flat)
}

func newEvent(corr Correlation, kind Kind, fields map[string]any) Event {
	if corr.Timestamp.IsZero() {
		corr.Timestamp = time.Now()
	}
	return Event{Kind: kind, Corr: corr, Fields: fields}
}

// ToolListRequest is emitted when a tools/list request is received.
func ToolListRequest(corr Correlation) Event {
	return newEvent(corr, KindToolListRequest, map[string]any{})
}

// ToolListDecision is emitted once the Router produces a RoutingDecision.
func ToolListDecision(corr Correlation, candidates []string, scores map[string]float64, selected []string, confidence float64, triggeredFallback bool, queryUsed string) Event {
	return newEvent(corr, KindToolListDecision, map[string]any{
		"candidates":         candidates,
		"scores":             scores,
		"selected":           selected,
		"confidence":         confidence,
		"triggered_fallback": triggeredFallback,
		"query_used":         queryUsed,
	})
}

// ToolCallProxyStart is emitted before a tools/call is forwarded downstream.
func ToolCallProxyStart(corr Correlation, qualifiedName string) Event {
	return newEvent(corr, KindToolCallProxyStart, map[string]any{"qualified_name": qualifiedName})
}

// ToolCallProxyEnd is emitted after a downstream tools/call completes
// (successfully or not). errorCode is empty on success.
func ToolCallProxyEnd(corr Correlation, qualifiedName string, success bool, latencyMs float64, errorCode string) Event {
	fields := map[string]any{
		"qualified_name": qualifiedName,
		"success":        success,
		"latency_ms":     latencyMs,
	}
	if errorCode != "" {
		fields["error_code"] = errorCode
	}
	return newEvent(corr, KindToolCallProxyEnd, fields)
}

// DownstreamStateChange is emitted on every Connection Pool state
// transition.
func DownstreamStateChange(corr Correlation, server, from, to string) Event {
	return newEvent(corr, KindDownstreamStateChange, map[string]any{
		"server": server, "from": from, "to": to,
	})
}

// RouterFallback is emitted iff the Router triggers its fallback path.
func RouterFallback(corr Correlation, reason string, confidence float64) Event {
	return newEvent(corr, KindRouterFallback, map[string]any{
		"reason": reason, "confidence": confidence,
	})
}
