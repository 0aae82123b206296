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

// Package auth implements downstream credential pass-through: this gateway
// performs no client-facing authentication or authorization (spec.md §1
// Non-goals), but it does forward ${ENV_VAR}-substituted headers and
// environment variables to the downstream MCP servers it spawns or dials.
package auth

import (
	"net/http"
	"os"
)

// SubstituteHeaders expands ${VAR}/$VAR references in header values against
// the process environment. Supports both "Bearer ${GITHUB_TOKEN}" and
// "Bearer $GITHUB_TOKEN" syntax.
func SubstituteHeaders(headers map[string]string) map[string]string {
	result := make(map[string]string, len(headers))
	for k, v := range headers {
		result[k] = os.Expand(v, os.Getenv)
	}
	return result
}

// MergeHeaders overlays override onto base, returning a new map. Used to
// merge a downstream server's configured headers with headers the frontend
// transport captured from the client's initialize call: the caller's
// headers win.
func MergeHeaders(base, override map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	return merged
}

// SubstituteEnv expands ${VAR}/$VAR references in env values against the
// process environment, for downstream subprocess environments.
func SubstituteEnv(env map[string]string) map[string]string {
	result := make(map[string]string, len(env))
	for k, v := range env {
		result[k] = os.Expand(v, os.Getenv)
	}
	return result
}

// EnvSlice renders env (already substituted via SubstituteEnv) as the
// KEY=VALUE slice exec.Cmd.Env expects.
func EnvSlice(env map[string]string) []string {
	slice := make([]string, 0, len(env))
	for k, v := range env {
		slice = append(slice, k+"="+v)
	}
	return slice
}

// HeaderRoundTripper injects downstream auth headers on every HTTP request,
// adapted from the teacher's credential-pass-through HeaderRoundTripper.
type HeaderRoundTripper struct {
	Base    http.RoundTripper
	Headers map[string]string
}

func (rt HeaderRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	base := rt.Base
	if base == nil {
		base = http.DefaultTransport
	}
	cloned := req.Clone(req.Context())
	for k, v := range rt.Headers {
		cloned.Header.Set(k, v)
	}
	return base.RoundTrip(cloned)
}
