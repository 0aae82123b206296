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

// Package logging provides the structured logging sink used by every
// toolgate component: a thin zerolog wrapper configured once at startup
// from server.log_level and handed out per-component via NewWithComponent.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Config controls how the process-wide logger is built.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string
	// Pretty selects human-readable console output instead of JSON lines.
	Pretty bool
	// Output is the underlying writer; defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the configuration used when none is supplied:
// info level, JSON lines to stderr.
func DefaultConfig() Config {
	return Config{Level: "info", Pretty: false, Output: os.Stderr}
}

// New builds a root zerolog.Logger from cfg.
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}
	level := parseLevel(cfg.Level)
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// NewWithComponent builds a logger from cfg with a "component" field set,
// so every log line from a given subsystem can be filtered independently.
func NewWithComponent(cfg Config, component string) zerolog.Logger {
	return New(cfg).With().Str("component", component).Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
