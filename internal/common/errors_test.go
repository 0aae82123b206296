package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGatewayErrorDataCarriesCode(t *testing.T) {
	gerr := NewGatewayError(ErrToolNotFound, "no tool named \"ghost\" is known", nil)
	data := gerr.Data()
	require.Equal(t, string(ErrToolNotFound), data["code"])
	require.NotContains(t, data, "downstream")
	require.NotContains(t, data, "details")
}

func TestGatewayErrorDataCarriesWrappedDetails(t *testing.T) {
	gerr := NewGatewayError(ErrServerUnavailable, "downstream dead", errors.New("dial tcp: refused"))
	data := gerr.Data()
	require.Equal(t, string(ErrServerUnavailable), data["code"])
	require.Equal(t, "dial tcp: refused", data["details"])
}

// TestGatewayErrorWithDownstreamPreservesBody verifies a downstream-reported
// tool error's body survives unchanged into the MCP error envelope's
// data.downstream field (spec.md §4.5 step 4, §7).
func TestGatewayErrorWithDownstreamPreservesBody(t *testing.T) {
	body := []map[string]any{{"type": "text", "text": "permission denied"}}

	gerr := NewGatewayError(ErrToolExecutionError, "tool \"fs.write_file\" reported an error", nil).
		WithDownstream(body)

	require.Equal(t, body, gerr.Downstream)

	data := gerr.Data()
	require.Equal(t, string(ErrToolExecutionError), data["code"])
	require.Equal(t, body, data["downstream"])
	require.NotContains(t, data, "details")
}

// TestGatewayErrorWithDownstreamChainsFromNewGatewayError verifies
// WithDownstream returns the same *GatewayError it was called on, so call
// sites can build and attach the downstream body in one expression.
func TestGatewayErrorWithDownstreamChainsFromNewGatewayError(t *testing.T) {
	gerr := NewGatewayError(ErrToolExecutionError, "boom", nil)
	chained := gerr.WithDownstream("raw downstream text")
	require.Same(t, gerr, chained)
	require.Equal(t, "raw downstream text", gerr.Downstream)
}
