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
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/toolgate/toolgate/internal/config"
)

func TestNewChainEmptyProcessorsIsValid(t *testing.T) {
	chain, err := NewChain(nil, "fs", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, chain)
}

// TestRunEmptyChainIsPassthrough verifies that with no configured
// processors, Run returns the payload unchanged with status 200.
func TestRunEmptyChainIsPassthrough(t *testing.T) {
	chain, err := NewChain(nil, "fs", "sess-1")
	require.NoError(t, err)

	payload := map[string]interface{}{"selected": []interface{}{"fs.read_file"}}
	result, err := chain.Run(EventRouting, payload)
	require.NoError(t, err)
	require.Equal(t, 200, result.Status)
	require.False(t, result.Rejected())
	require.Equal(t, payload, result.ModifiedPayload)
	require.Empty(t, result.ProcessorChain)
}

func TestRunSkipsDisabledProcessors(t *testing.T) {
	chain, err := NewChain([]config.ProcessorConfig{
		{Name: "off", Type: "cli", Enabled: false, Config: map[string]interface{}{"command": "false"}},
	}, "fs", "sess-1")
	require.NoError(t, err)

	result, err := chain.Run(EventRouting, map[string]interface{}{"selected": []interface{}{}})
	require.NoError(t, err)
	require.Equal(t, 200, result.Status)
	require.Empty(t, result.ProcessorChain)
}

// TestRunAppliesProcessorModification verifies a processor that rewrites
// the payload is reflected in the final ModifiedPayload and tracked in
// ProcessorChain.
func TestRunAppliesProcessorModification(t *testing.T) {
	chain, err := NewChain([]config.ProcessorConfig{
		{
			Name: "tag", Type: "cli", Enabled: true, Timeout: 5,
			Config: map[string]interface{}{
				"command": "bash",
				"args":    []interface{}{"-c", `cat >/dev/null; echo '{"status":200,"payload":{"tagged":true},"error":null}'`},
			},
		},
	}, "fs", "sess-1")
	require.NoError(t, err)

	result, err := chain.Run(EventToolCallRequest, map[string]interface{}{"name": "fs.read_file"})
	require.NoError(t, err)
	require.Equal(t, 200, result.Status)
	require.Equal(t, []string{"tag"}, result.ProcessorChain)
	require.Equal(t, true, result.ModifiedPayload["tagged"])
}

// TestRunStopsChainOnRejection verifies a processor returning a 4xx status
// short-circuits the chain and later processors never run.
func TestRunStopsChainOnRejection(t *testing.T) {
	chain, err := NewChain([]config.ProcessorConfig{
		{
			Name: "reject", Type: "cli", Enabled: true, Timeout: 5,
			Config: map[string]interface{}{
				"command": "bash",
				"args":    []interface{}{"-c", `cat >/dev/null; echo '{"status":403,"payload":{},"error":"blocked"}'`},
			},
		},
		{
			Name: "never-runs", Type: "cli", Enabled: true, Timeout: 5,
			Config: map[string]interface{}{"command": "false"},
		},
	}, "fs", "sess-1")
	require.NoError(t, err)

	result, err := chain.Run(EventToolCallRequest, map[string]interface{}{"name": "fs.delete_file"})
	require.NoError(t, err)
	require.True(t, result.Rejected())
	require.Equal(t, 403, result.Status)
	require.Equal(t, []string{"reject"}, result.ProcessorChain)
	require.Equal(t, "blocked", *result.Error)
}

func TestRunTreatsExecutionFailureAs500(t *testing.T) {
	chain, err := NewChain([]config.ProcessorConfig{
		{Name: "bad-type", Type: "webhook", Enabled: true},
	}, "fs", "sess-1")
	require.NoError(t, err)

	result, err := chain.Run(EventRouting, map[string]interface{}{})
	require.NoError(t, err)
	require.Equal(t, 500, result.Status)
	require.Empty(t, result.ProcessorChain)
}

func TestFormatGatewayErrorRejectsNonErrorStatus(t *testing.T) {
	_, err := FormatGatewayError(&Result{Status: 200}, nil)
	require.Error(t, err)
}

func TestFormatGatewayErrorShapesRejection(t *testing.T) {
	reason := "blocked"
	result := &Result{Status: 403, ProcessorChain: []string{"reject"}, Error: &reason, Metadata: map[string]interface{}{}}
	data, err := FormatGatewayError(result, []byte(`1`))
	require.NoError(t, err)
	require.Contains(t, string(data), `"code":-32001`)
	require.Contains(t, string(data), `"rejection_reason":"blocked"`)
}
