package common

import "time"

// ToolDescriptor is the canonical tool identity, owned by the Tool Zoo.
// Once indexed, QualifiedName and Server are immutable for the process
// lifetime.
type ToolDescriptor struct {
	QualifiedName  string         `json:"qualified_name"`
	Server         string         `json:"server"`
	LocalName      string         `json:"local_name"`
	Description    string         `json:"description"`
	InputSchema    map[string]any `json:"input_schema"`
	Tags           []string       `json:"tags"`
	Embedding      []float32      `json:"embedding,omitempty"`
	AffordanceHint string         `json:"affordance_hint"`
}

// RoutingDecision is the output record of one Router call.
type RoutingDecision struct {
	Selected          []string           `json:"selected"`
	Scores            map[string]float64 `json:"scores"`
	Candidates        []string           `json:"candidates"`
	Reasoning         string             `json:"reasoning"`
	QueryUsed         string             `json:"query_used"`
	Confidence        float64            `json:"confidence"`
	TriggeredFallback bool               `json:"triggered_fallback"`
}

// ServerState is one member of the Connection Pool's server state machine.
type ServerState string

const (
	StateDisconnected ServerState = "Disconnected"
	StateStarting     ServerState = "Starting"
	StateReady        ServerState = "Ready"
	StateFailing      ServerState = "Failing"
	StateDead         ServerState = "Dead"
)

// SpawnSpec is the command, arguments, and environment used to start a
// downstream server subprocess, or the URL/headers for an HTTP transport.
type SpawnSpec struct {
	Transport string            `json:"transport"` // "stdio" or "http"
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	// Tags are the configured domain hints for every tool this server
	// exposes (config.DownstreamServerConfig.Tags), since MCP's tools/list
	// carries no tag field of its own.
	Tags []string `json:"tags,omitempty"`
}

// Message is one entry of a Session's capped message window.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ToolUsage tracks invocation outcomes for one qualified tool name within a
// session.
type ToolUsage struct {
	Invocations  int     `json:"invocations"`
	Successes    int     `json:"successes"`
	Failures     int     `json:"failures"`
	AvgLatencyMs float64 `json:"avg_latency_ms"`
}
