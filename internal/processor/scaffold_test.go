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
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestRunScaffoldInteractivePython walks the prompt sequence for a Python
// passthrough processor and declines config registration.
func TestRunScaffoldInteractivePython(t *testing.T) {
	tempDir := t.TempDir()
	input := strings.Join([]string{
		"1",           // language: python
		"1",           // type: passthrough
		"my_processor",
		tempDir,
		"n", // don't add to config
	}, "\n")
	var output bytes.Buffer

	err := RunScaffoldInteractive(strings.NewReader(input), &output)
	require.NoError(t, err)

	processorPath := filepath.Join(tempDir, "my_processor.py")
	require.True(t, exists(processorPath))
	data, readErr := os.ReadFile(processorPath)
	require.NoError(t, readErr)
	require.Contains(t, string(data), "toolgate processor: my_processor")
	require.Contains(t, output.String(), "Processor created")

	testInputPath := filepath.Join(tempDir, "my_processor_test.json")
	require.True(t, exists(testInputPath))
}

func TestRunScaffoldInteractiveCancelOverwrite(t *testing.T) {
	tempDir := t.TempDir()
	processorPath := filepath.Join(tempDir, "existing.sh")
	require.NoError(t, os.WriteFile(processorPath, []byte("original"), 0o644))

	input := strings.Join([]string{
		"3", // bash
		"1", // passthrough
		"existing",
		tempDir,
		"n", // decline overwrite
	}, "\n")
	var output bytes.Buffer

	err := RunScaffoldInteractive(strings.NewReader(input), &output)
	require.NoError(t, err)
	require.Contains(t, output.String(), "Cancelled")

	data, readErr := os.ReadFile(processorPath)
	require.NoError(t, readErr)
	require.Equal(t, "original", string(data))
}

func TestRunScaffoldInteractiveInvalidLanguage(t *testing.T) {
	input := strings.Join([]string{"9"}, "\n")
	var output bytes.Buffer
	err := RunScaffoldInteractive(strings.NewReader(input), &output)
	require.Error(t, err)
}

func TestRunScaffoldInteractiveEmptyName(t *testing.T) {
	tempDir := t.TempDir()
	input := strings.Join([]string{"2", "2", "", tempDir}, "\n")
	var output bytes.Buffer
	err := RunScaffoldInteractive(strings.NewReader(input), &output)
	require.Error(t, err)
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "my_proc", sanitizeName("my proc"))
	require.Equal(t, "weirdname", sanitizeName("weird!@#name"))
}

func TestGenerateProcessorTemplateJavaScript(t *testing.T) {
	content, err := generateProcessorTemplate(langJavaScript, typeValidator, "guard")
	require.NoError(t, err)
	require.Contains(t, content, "guard")
	require.Contains(t, content, "tool_call_request")
}

func TestGenerateProcessorTemplateUnsupportedLanguage(t *testing.T) {
	_, err := generateProcessorTemplate(scaffoldLanguage("ruby"), typeCustom, "x")
	require.Error(t, err)
}

func TestExtensionForLanguage(t *testing.T) {
	require.Equal(t, "py", extensionForLanguage(langPython))
	require.Equal(t, "js", extensionForLanguage(langJavaScript))
	require.Equal(t, "sh", extensionForLanguage(langBash))
}
