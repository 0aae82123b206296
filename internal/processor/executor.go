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

// Package processor implements the optional CLI hook chain (SUPPLEMENTED
// FEATURES): a configured sequence of external commands invoked over a
// RoutingDecision or a tools/call request/response pair, each able to pass
// the payload through unmodified, modify it, or reject it.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/toolgate/toolgate/internal/config"
)

const defaultTimeoutSeconds = 15

// Executor runs one configured CLI processor against a single
// config.ProcessorInput and returns its config.ProcessorOutput.
type Executor struct {
	// WorkingDir is the directory processor commands run in. Defaults to
	// the user's home directory.
	WorkingDir string
}

// NewExecutor constructs an Executor rooted at the user's home directory.
func NewExecutor() (*Executor, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	return &Executor{WorkingDir: home}, nil
}

// Execute runs cfg against input. Only the "cli" processor type is
// supported.
func (e *Executor) Execute(cfg *config.ProcessorConfig, input *config.ProcessorInput) (*config.ProcessorOutput, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("processor %q is disabled", cfg.Name)
	}
	if cfg.Type != "cli" {
		return nil, fmt.Errorf("unsupported processor type %q", cfg.Type)
	}
	return e.executeCLI(cfg, input)
}

func (e *Executor) executeCLI(cfg *config.ProcessorConfig, input *config.ProcessorInput) (*config.ProcessorOutput, error) {
	command, args, err := extractCommandAndArgs(cfg)
	if err != nil {
		return nil, err
	}
	stdout, stderr, runErr := e.run(cfg, command, args, input)
	return handleResult(cfg, input, stdout, stderr, runErr)
}

func extractCommandAndArgs(cfg *config.ProcessorConfig) (string, []string, error) {
	command, ok := cfg.Config["command"].(string)
	if !ok {
		return "", nil, fmt.Errorf("processor %q: config.command must be a string", cfg.Name)
	}
	var args []string
	if raw, exists := cfg.Config["args"]; exists {
		arr, ok := raw.([]interface{})
		if !ok {
			return "", nil, fmt.Errorf("processor %q: config.args must be an array", cfg.Name)
		}
		for _, a := range arr {
			s, ok := a.(string)
			if !ok {
				return "", nil, fmt.Errorf("processor %q: config.args must contain only strings", cfg.Name)
			}
			args = append(args, s)
		}
	}
	return command, args, nil
}

func (e *Executor) run(cfg *config.ProcessorConfig, command string, args []string, input *config.ProcessorInput) (bytes.Buffer, bytes.Buffer, error) {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeoutSeconds * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Dir = e.WorkingDir

	inputJSON, err := json.Marshal(input)
	if err != nil {
		return bytes.Buffer{}, bytes.Buffer{}, fmt.Errorf("failed to marshal processor input: %w", err)
	}
	cmd.Stdin = bytes.NewReader(inputJSON)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, context.DeadlineExceeded
	}
	return stdout, stderr, runErr
}

func handleResult(cfg *config.ProcessorConfig, input *config.ProcessorInput, stdout, stderr bytes.Buffer, runErr error) (*config.ProcessorOutput, error) {
	if errors.Is(runErr, context.DeadlineExceeded) {
		msg := fmt.Sprintf("processor %q timed out after %ds", cfg.Name, cfg.Timeout)
		return &config.ProcessorOutput{Status: 500, Payload: input.Payload, Error: &msg}, nil
	}
	if runErr != nil {
		msg := fmt.Sprintf("processor %q execution failed: %v", cfg.Name, runErr)
		if stderr.Len() > 0 {
			msg = fmt.Sprintf("%s\nstderr: %s", msg, stderr.String())
		}
		return &config.ProcessorOutput{Status: 500, Payload: input.Payload, Error: &msg}, nil
	}
	return parseOutput(cfg, input, stdout)
}

func parseOutput(cfg *config.ProcessorConfig, input *config.ProcessorInput, stdout bytes.Buffer) (*config.ProcessorOutput, error) {
	var output config.ProcessorOutput
	if err := json.Unmarshal(stdout.Bytes(), &output); err != nil {
		msg := fmt.Sprintf("processor %q returned invalid JSON: %v", cfg.Name, err)
		if stdout.Len() > 0 {
			msg = fmt.Sprintf("%s\nstdout: %s", msg, stdout.String())
		}
		return &config.ProcessorOutput{Status: 500, Payload: input.Payload, Error: &msg}, nil
	}
	if output.Status < 100 || output.Status >= 600 {
		msg := fmt.Sprintf("processor %q returned invalid status code: %d", cfg.Name, output.Status)
		return &config.ProcessorOutput{Status: 500, Payload: input.Payload, Error: &msg}, nil
	}
	if output.Payload == nil {
		output.Payload = input.Payload
	}
	if output.Status >= 400 && output.Error == nil {
		msg := fmt.Sprintf("status %d requires error message", output.Status)
		output.Error = &msg
	}
	return &output, nil
}
