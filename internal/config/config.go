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

// Package config loads and validates toolgate's on-disk configuration: the
// recognized key surface is server, tool_zoo, router, session,
// downstream_servers, and advanced.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigDirName is the directory under $HOME toolgate keeps its
// config, session store, and tool index store in.
const DefaultConfigDirName = ".toolgate"

// ServerConfig configures the frontend transport.
type ServerConfig struct {
	Name      string `json:"name"`
	Transport string `json:"transport"` // "stdio" (only supported value)
	LogLevel  string `json:"log_level"`
	// MetricsAddr is the listen address for the Prometheus scrape endpoint
	// (e.g. "127.0.0.1:9090"). Empty disables metrics exposition; spans and
	// counters are still recorded against the OTel SDK either way.
	MetricsAddr string `json:"metrics_addr"`
}

// ToolZooConfig configures the Tool Zoo's embedding provider and indexes.
type ToolZooConfig struct {
	EmbeddingModel      string  `json:"embedding_model"`
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	PersistDir          string  `json:"persist_dir"`
}

// RouterConfig configures the Router's pipeline and tunables.
type RouterConfig struct {
	Mode              string   `json:"mode"` // "semantic"|"keyword"|"hybrid"
	MaxTools          int      `json:"max_tools"`
	MaxPerServer      int      `json:"max_per_server"`
	MinConfidence     float64  `json:"min_confidence"`
	FallbackTools     []string `json:"fallback_tools"`
	DomainBoost       float64  `json:"domain_boost"`
	UsageBoost        float64  `json:"usage_boost"`
	CooccurrenceBoost float64  `json:"cooccurrence_boost"`
	EnableLearning    bool     `json:"enable_learning"`
}

// SessionConfig configures the Session Store.
type SessionConfig struct {
	PersistDir string `json:"persist_dir"`
	MaxHistory int    `json:"max_history"`
}

// DownstreamServerConfig describes one downstream MCP server to connect the
// Connection Pool to.
type DownstreamServerConfig struct {
	Name      string            `json:"name"`
	Transport string            `json:"transport"` // "stdio" or "http"
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Tags      []string          `json:"tags,omitempty"`
}

// AdvancedConfig gates experimental, off-by-default surfaces.
type AdvancedConfig struct {
	EnableDashboard  bool `json:"enable_dashboard"`
	EnableGraphViz   bool `json:"enable_graph_viz"`
	EnableRaftExport bool `json:"enable_raft_export"`
}

// ProcessorType names the mechanism a processor runs through. Only
// CLIProcessor is supported; the type exists to leave room for a future
// webhook or in-process processor without reshaping ProcessorConfig.
type ProcessorType string

// CLIProcessor is a processor invoked as an external command with a JSON
// envelope on stdin and a JSON envelope expected on stdout.
const CLIProcessor ProcessorType = "cli"

// ProcessorConfig defines one external CLI hook invoked over a
// RoutingDecision or a tools/call request/response pair. Processors are
// composable: each receives the prior processor's (possibly modified)
// payload and may pass it through, modify it, or reject it.
//
// Config (type "cli"):
//   - "command" (string, required): executable to run.
//   - "args" (array of strings, optional): command-line arguments.
type ProcessorConfig struct {
	Name    string                 `json:"name"`
	Type    string                 `json:"type"` // "cli" (only supported value)
	Enabled bool                   `json:"enabled"`
	Timeout int                    `json:"timeout,omitempty"` // seconds, default 15
	Config  map[string]interface{} `json:"config"`
}

// ProcessorInput is the JSON envelope written to a processor's stdin.
type ProcessorInput struct {
	Type       string                 `json:"type"` // "routing", "tool_call_request", "tool_call_response"
	Timestamp  string                 `json:"timestamp"`
	Connection ProcessorConnection    `json:"connection"`
	Payload    map[string]interface{} `json:"payload"`
	Metadata   ProcessorMetadata      `json:"metadata"`
}

// ProcessorConnection carries connection-level metadata for a processor
// invocation.
type ProcessorConnection struct {
	ServerName string `json:"server_name"` // downstream server name, empty for routing events
	Transport  string `json:"transport"`
	SessionID  string `json:"session_id"`
}

// ProcessorMetadata carries chain-execution context for a processor
// invocation.
type ProcessorMetadata struct {
	ProcessorChain  []string               `json:"processor_chain"`
	OriginalPayload map[string]interface{} `json:"original_payload"`
}

// ProcessorOutput is the JSON envelope a processor must write to stdout.
type ProcessorOutput struct {
	Status   int                    `json:"status"` // HTTP-style: 200 continue, 4xx/5xx reject
	Payload  map[string]interface{} `json:"payload"`
	Error    *string                `json:"error"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// GlobalConfig is the full recognized configuration surface, §6.4.
type GlobalConfig struct {
	Server            ServerConfig             `json:"server"`
	ToolZoo           ToolZooConfig            `json:"tool_zoo"`
	Router            RouterConfig             `json:"router"`
	Session           SessionConfig            `json:"session"`
	DownstreamServers []DownstreamServerConfig `json:"downstream_servers"`
	Processors        []ProcessorConfig        `json:"processors,omitempty"`
	Advanced          AdvancedConfig           `json:"advanced"`
}

// DefaultConfig returns the configuration used when a key is absent or the
// file is entirely missing. Matches spec.md §9's decision that
// max_per_server defaults to 10 and is never hardcoded elsewhere.
func DefaultConfig() *GlobalConfig {
	home, _ := os.UserHomeDir()
	base := filepath.Join(home, DefaultConfigDirName)
	return &GlobalConfig{
		Server: ServerConfig{
			Name:      "toolgate",
			Transport: "stdio",
			LogLevel:  "info",
		},
		ToolZoo: ToolZooConfig{
			EmbeddingModel:      "text-embedding-3-small",
			TopK:                40,
			SimilarityThreshold: 0.0,
			PersistDir:          filepath.Join(base, "zoo"),
		},
		Router: RouterConfig{
			Mode:              "hybrid",
			MaxTools:          10,
			MaxPerServer:      10,
			MinConfidence:     0.3,
			FallbackTools:     nil,
			DomainBoost:       0.15,
			UsageBoost:        0.05,
			CooccurrenceBoost: 0.05,
			EnableLearning:    true,
		},
		Session: SessionConfig{
			PersistDir: filepath.Join(base, "sessions"),
			MaxHistory: 100,
		},
		DownstreamServers: nil,
		Processors:        []ProcessorConfig{},
		Advanced:          AdvancedConfig{},
	}
}

// GetConfigDir returns ~/.toolgate, creating nothing.
func GetConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigDirName), nil
}

// GetConfigPath returns ~/.toolgate/config.json.
func GetConfigPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir creates ~/.toolgate (and parents) if absent.
func EnsureConfigDir() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}
	return dir, nil
}

// LoadConfigFromPath reads and parses a config file at path, filling any
// zero-valued top-level section from DefaultConfig.
func LoadConfigFromPath(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// LoadConfig loads from the default path, returning DefaultConfig if the
// file does not exist.
func LoadConfig() (*GlobalConfig, error) {
	path, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadConfigFromPath(path)
}

// SaveConfig writes cfg as indented JSON to path, creating parent
// directories as needed.
func SaveConfig(cfg *GlobalConfig, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyDefaults fills zero-valued scalar fields left blank by a partial
// config file, the way the teacher's LoadConfig backfilled ProxySettings.
func applyDefaults(cfg *GlobalConfig) {
	def := DefaultConfig()
	if cfg.Server.Transport == "" {
		cfg.Server.Transport = def.Server.Transport
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = def.Server.LogLevel
	}
	if cfg.ToolZoo.TopK == 0 {
		cfg.ToolZoo.TopK = def.ToolZoo.TopK
	}
	if cfg.ToolZoo.PersistDir == "" {
		cfg.ToolZoo.PersistDir = def.ToolZoo.PersistDir
	}
	if cfg.Router.Mode == "" {
		cfg.Router.Mode = def.Router.Mode
	}
	if cfg.Router.MaxTools == 0 {
		cfg.Router.MaxTools = def.Router.MaxTools
	}
	if cfg.Router.MaxPerServer == 0 {
		cfg.Router.MaxPerServer = def.Router.MaxPerServer
	}
	if cfg.Session.MaxHistory == 0 {
		cfg.Session.MaxHistory = def.Session.MaxHistory
	}
	if cfg.Session.PersistDir == "" {
		cfg.Session.PersistDir = def.Session.PersistDir
	}
}
