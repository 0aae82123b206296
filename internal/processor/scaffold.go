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

//nolint:errcheck // many Fprintln calls below; checking every one adds noise without value
package processor

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/toolgate/toolgate/internal/common"
	"github.com/toolgate/toolgate/internal/config"
)

type scaffoldLanguage string

const (
	langPython     scaffoldLanguage = "python"
	langJavaScript scaffoldLanguage = "javascript"
	langBash       scaffoldLanguage = "bash"
)

type scaffoldType string

const (
	typePassthrough scaffoldType = "passthrough"
	typeValidator   scaffoldType = "validator"
	typeTransformer scaffoldType = "transformer"
	typeCustom      scaffoldType = "custom"
)

// RunScaffoldInteractive walks an operator through generating a processor
// script and, optionally, registering it in the gateway's config.
func RunScaffoldInteractive(in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "==============================================")
	fmt.Fprintln(out, "  toolgate Processor Scaffold Generator")
	fmt.Fprintln(out, "==============================================")
	fmt.Fprintln(out)

	lang, err := promptLanguage(reader, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Selected: %s\n\n", lang)

	procType, err := promptProcessorType(reader, out)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Selected: %s\n\n", procType)

	name, err := promptProcessorName(reader, out)
	if err != nil {
		return err
	}

	outputDir, err := promptOutputDir(reader, out)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(outputDir, 0o750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ext := extensionForLanguage(lang)
	outputFile := filepath.Join(outputDir, fmt.Sprintf("%s.%s", name, ext))

	if exists(outputFile) {
		overwrite, err := promptOverwrite(reader, out, outputFile)
		if err != nil {
			return err
		}
		if !overwrite {
			fmt.Fprintln(out, "Cancelled.")
			return nil
		}
	}
	fmt.Fprintf(out, "Output: %s\n\n", outputFile)

	content, err := generateProcessorTemplate(lang, procType, name)
	if err != nil {
		return err
	}
	//nolint:gosec // file is non-sensitive
	if err := os.WriteFile(outputFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write processor file: %w", err)
	}
	//nolint:gosec // file is non-sensitive, and execution is required
	if err := os.Chmod(outputFile, 0o755); err != nil {
		return fmt.Errorf("failed to make processor executable: %w", err)
	}
	fmt.Fprintf(out, "Processor created: %s\n\n", outputFile)

	testInput := filepath.Join(outputDir, fmt.Sprintf("%s_test.json", name))
	if err := writeTestInput(testInput); err != nil {
		return err
	}
	fmt.Fprintf(out, "Test input created: %s\n\n", testInput)

	addToConfig, err := promptAddToConfig(reader, out)
	if err != nil {
		return err
	}
	if addToConfig {
		if err := addProcessorToConfig(name, lang, outputFile); err != nil {
			return err
		}
		fmt.Fprint(out, "Processor added to config.\n")
	}

	printNextSteps(out, lang, name, outputFile, addToConfig)
	return nil
}

func promptLanguage(reader *bufio.Reader, out io.Writer) (scaffoldLanguage, error) {
	fmt.Fprintln(out, "Step 1: Choose your language")
	fmt.Fprintln(out, "1) Python")
	fmt.Fprintln(out, "2) JavaScript (Node.js)")
	fmt.Fprintln(out, "3) Bash")
	fmt.Fprintln(out)
	choice, err := prompt(reader, out, "Select language [1-3]: ")
	if err != nil {
		return "", err
	}
	switch choice {
	case "1":
		return langPython, nil
	case "2":
		return langJavaScript, nil
	case "3":
		return langBash, nil
	default:
		return "", fmt.Errorf("invalid choice")
	}
}

func promptProcessorType(reader *bufio.Reader, out io.Writer) (scaffoldType, error) {
	fmt.Fprintln(out, "Step 2: Choose processor type")
	fmt.Fprintln(out, "1) Passthrough (no-op, for testing)")
	fmt.Fprintln(out, "2) Validator (accept/reject based on rules)")
	fmt.Fprintln(out, "3) Transformer (modify payload)")
	fmt.Fprintln(out, "4) Custom (minimal template)")
	fmt.Fprintln(out)
	choice, err := prompt(reader, out, "Select type [1-4]: ")
	if err != nil {
		return "", err
	}
	switch choice {
	case "1":
		return typePassthrough, nil
	case "2":
		return typeValidator, nil
	case "3":
		return typeTransformer, nil
	case "4":
		return typeCustom, nil
	default:
		return "", fmt.Errorf("invalid choice")
	}
}

func promptProcessorName(reader *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprintln(out, "Step 3: Enter processor name")
	name, err := prompt(reader, out, "Processor name (e.g., my_processor): ")
	if err != nil {
		return "", err
	}
	if name == "" {
		return "", fmt.Errorf("processor name cannot be empty")
	}
	sanitized := sanitizeName(name)
	if sanitized == "" {
		return "", fmt.Errorf("processor name must contain alphanumeric characters")
	}
	fmt.Fprintf(out, "Processor name: %s\n\n", sanitized)
	return sanitized, nil
}

func promptOutputDir(reader *bufio.Reader, out io.Writer) (string, error) {
	fmt.Fprintln(out, "Step 4: Choose output directory")
	defaultDir, err := defaultProcessorDir()
	if err != nil {
		return "", err
	}
	line, err := prompt(reader, out, fmt.Sprintf("Output directory [%s]: ", defaultDir))
	if err != nil {
		return "", err
	}
	if line == "" {
		return defaultDir, nil
	}
	return line, nil
}

func promptOverwrite(reader *bufio.Reader, out io.Writer, path string) (bool, error) {
	fmt.Fprintf(out, "Error: File already exists: %s\n", path)
	line, err := prompt(reader, out, "Overwrite? [y/N]: ")
	if err != nil {
		return false, err
	}
	line = strings.TrimSpace(line)
	return line == "y" || line == "Y", nil
}

func promptAddToConfig(reader *bufio.Reader, out io.Writer) (bool, error) {
	fmt.Fprintln(out, "Step 5: Add to toolgate config")
	line, err := prompt(reader, out, "Add this processor to ~/.toolgate/config.json now? [y/N]: ")
	if err != nil {
		return false, err
	}
	line = strings.TrimSpace(line)
	return line == "y" || line == "Y", nil
}

func prompt(reader *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func sanitizeName(name string) string {
	normalized := strings.ReplaceAll(name, " ", "_")
	var b strings.Builder
	for _, r := range normalized {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func defaultProcessorDir() (string, error) {
	workingDir := common.GetCurrentWorkingDir()
	if workingDir == "" {
		return "", fmt.Errorf("failed to resolve working directory")
	}
	return workingDir, nil
}

func extensionForLanguage(lang scaffoldLanguage) string {
	switch lang {
	case langPython:
		return "py"
	case langJavaScript:
		return "js"
	case langBash:
		return "sh"
	default:
		return "txt"
	}
}

func commandForLanguage(lang scaffoldLanguage) string {
	switch lang {
	case langPython:
		return "python3"
	case langJavaScript:
		return "node"
	case langBash:
		return "bash"
	default:
		return ""
	}
}

func generateProcessorTemplate(lang scaffoldLanguage, procType scaffoldType, name string) (string, error) {
	var template string
	var logic string

	switch lang {
	case langPython:
		template = pythonTemplate
		logic = pythonLogic(procType)
	case langJavaScript:
		template = javascriptTemplate
		logic = javascriptLogic(procType)
	case langBash:
		template = bashTemplate
		logic = bashLogic(procType)
	default:
		return "", fmt.Errorf("unsupported language")
	}

	content := strings.ReplaceAll(template, "PROCESSOR_LOGIC", logic)
	content = strings.ReplaceAll(content, "PROCESSOR_NAME", name)
	content = strings.ReplaceAll(content, "PROCESSOR_TYPE", string(procType))
	content = strings.ReplaceAll(content, "TIMESTAMP", time.Now().UTC().Format(time.RFC3339))
	return content, nil
}

func pythonLogic(procType scaffoldType) string {
	switch procType {
	case typePassthrough:
		return "    # Passthrough: return payload unchanged"
	case typeValidator:
		return `    # Example: reject a tool_call_request naming a destructive tool
    if event["type"] == "tool_call_request" and "delete" in payload.get("name", "").lower():
        return {
            "status": 403,
            "payload": {},
            "error": "destructive tool calls are not allowed",
            "metadata": {"processor_name": "PROCESSOR_NAME"}
        }`
	case typeTransformer:
		return `    # Example: tag routing decisions with a marker field
    if event["type"] == "routing":
        payload["annotated_by"] = "PROCESSOR_NAME"`
	case typeCustom:
		return `    # TODO: add custom logic here
    # event["type"] is one of "routing", "tool_call_request", "tool_call_response"`
	default:
		return ""
	}
}

func javascriptLogic(procType scaffoldType) string {
	switch procType {
	case typePassthrough:
		return "  // Passthrough: return payload unchanged"
	case typeValidator:
		return `  // Example: reject a tool_call_request naming a destructive tool
  if (event.type === "tool_call_request" && (payload.name || "").toLowerCase().includes("delete")) {
    return {
      status: 403,
      payload: {},
      error: "destructive tool calls are not allowed",
      metadata: { processor_name: "PROCESSOR_NAME" }
    };
  }`
	case typeTransformer:
		return `  // Example: tag routing decisions with a marker field
  if (event.type === "routing") {
    payload.annotated_by = "PROCESSOR_NAME";
  }`
	case typeCustom:
		return "  // TODO: add custom logic here"
	default:
		return ""
	}
}

func bashLogic(procType scaffoldType) string {
	switch procType {
	case typePassthrough:
		return "# Passthrough: return payload unchanged"
	case typeValidator:
		return `# Example: reject a tool_call_request naming a destructive tool
NAME=$(echo "$PAYLOAD" | jq -r ".name // empty")
if [ "$TYPE" = "tool_call_request" ] && echo "$NAME" | grep -iq "delete"; then
  jq -n '{status: 403, payload: {}, error: "destructive tool calls are not allowed", metadata: {processor_name: "PROCESSOR_NAME"}}'
  exit 0
fi`
	case typeTransformer:
		return `# Example: tag routing decisions with a marker field
if [ "$TYPE" = "routing" ]; then
  PAYLOAD=$(echo "$PAYLOAD" | jq '.annotated_by = "PROCESSOR_NAME"')
fi`
	case typeCustom:
		return "# TODO: add custom logic here"
	default:
		return ""
	}
}

func writeTestInput(path string) error {
	const testPayload = `{
  "type": "routing",
  "timestamp": "2026-01-01T10:00:00Z",
  "connection": {
    "server_name": "",
    "transport": "stdio",
    "session_id": "test123"
  },
  "payload": {
    "selected": ["fs.read_file"],
    "confidence": 0.82
  },
  "metadata": {
    "processor_chain": [],
    "original_payload": {}
  }
}
`
	//nolint:gosec // file is non-sensitive
	if err := os.WriteFile(path, []byte(testPayload), 0o644); err != nil {
		return fmt.Errorf("failed to write test input: %w", err)
	}
	return nil
}

func addProcessorToConfig(name string, lang scaffoldLanguage, outputFile string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	for _, p := range cfg.Processors {
		if p.Name == name {
			return fmt.Errorf("processor %q already exists in config", name)
		}
	}
	command := commandForLanguage(lang)
	if command == "" {
		return fmt.Errorf("unsupported language")
	}
	cfg.Processors = append(cfg.Processors, config.ProcessorConfig{
		Name:    name,
		Type:    string(config.CLIProcessor),
		Enabled: true,
		Timeout: 15,
		Config: map[string]interface{}{
			"command": command,
			"args":    []interface{}{outputFile},
		},
	})
	path, err := config.GetConfigPath()
	if err != nil {
		return err
	}
	return config.SaveConfig(cfg, path)
}

func printNextSteps(out io.Writer, lang scaffoldLanguage, name, outputFile string, addedToConfig bool) {
	fmt.Fprintln(out)
	if !addedToConfig {
		fmt.Fprintf(out, "Add to toolgate config (~/.toolgate/config.json):\n")
		fmt.Fprintln(out, "   {")
		fmt.Fprintln(out, "     \"processors\": [")
		fmt.Fprintln(out, "       {")
		fmt.Fprintf(out, "         \"name\": \"%s\",\n", name)
		fmt.Fprintln(out, "         \"type\": \"cli\",")
		fmt.Fprintf(out, "         \"config\": {\"command\": %q, \"args\": [%q]},\n", commandForLanguage(lang), outputFile)
		fmt.Fprintln(out, "         \"enabled\": true")
		fmt.Fprintln(out, "       }")
		fmt.Fprintln(out, "     ]")
		fmt.Fprintln(out, "   }")
		fmt.Fprintln(out)
	}
	fmt.Fprintln(out, "Happy coding!")
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

const pythonTemplate = `#!/usr/bin/env python3
"""
toolgate processor: PROCESSOR_NAME
Type: PROCESSOR_TYPE
Generated: TIMESTAMP
"""

import sys
import json

def process(event):
    """
    Args:
        event: {type, timestamp, connection, payload, metadata}
            type is one of "routing", "tool_call_request", "tool_call_response".

    Returns:
        dict: {status, payload, error, metadata}
    """
    payload = event["payload"]

PROCESSOR_LOGIC

    return {
        "status": 200,
        "payload": payload,
        "error": None,
        "metadata": {"processor_name": "PROCESSOR_NAME"}
    }

def main():
    try:
        event = json.load(sys.stdin)
        result = process(event)
        print(json.dumps(result))
        sys.exit(0)
    except Exception as e:
        result = {
            "status": 500,
            "payload": {},
            "error": str(e),
            "metadata": {"processor_name": "PROCESSOR_NAME"}
        }
        print(json.dumps(result))
        sys.exit(0)

if __name__ == "__main__":
    main()
`

const javascriptTemplate = `#!/usr/bin/env node
/**
 * toolgate processor: PROCESSOR_NAME
 * Type: PROCESSOR_TYPE
 * Generated: TIMESTAMP
 */

function process(event) {
  const payload = event.payload;

PROCESSOR_LOGIC

  return {
    status: 200,
    payload: payload,
    error: null,
    metadata: { processor_name: 'PROCESSOR_NAME' }
  };
}

function main() {
  let input = '';
  process.stdin.on('data', chunk => { input += chunk; });
  process.stdin.on('end', () => {
    try {
      const event = JSON.parse(input);
      const result = process(event);
      console.log(JSON.stringify(result));
      process.exit(0);
    } catch (err) {
      const result = {
        status: 500,
        payload: {},
        error: err.message,
        metadata: { processor_name: 'PROCESSOR_NAME' }
      };
      console.log(JSON.stringify(result));
      process.exit(0);
    }
  });
}

main();
`

const bashTemplate = `#!/bin/bash
# toolgate processor: PROCESSOR_NAME
# Type: PROCESSOR_TYPE
# Generated: TIMESTAMP

INPUT=$(cat)
TYPE=$(echo "$INPUT" | jq -r '.type')
PAYLOAD=$(echo "$INPUT" | jq -c '.payload')

PROCESSOR_LOGIC

jq -n \
  --argjson payload "$PAYLOAD" \
  '{status: 200, payload: $payload, error: null, metadata: {processor_name: "PROCESSOR_NAME"}}'

exit 0
`
