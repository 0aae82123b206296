package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	urfavecli "github.com/urfave/cli/v3"
)

func writeTestLogFile(t *testing.T, path string, lines []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// TestHandleLogsCommandOutputsEntries verifies the logs command reads and
// displays lines from a JSONL file under the resolved logs directory.
func TestHandleLogsCommandOutputsEntries(t *testing.T) {
	tempDir := t.TempDir()
	t.Setenv("TOOLGATE_LOG_DIR", tempDir)

	writeTestLogFile(t, filepath.Join(tempDir, "events_2026-01-05.jsonl"), []string{
		`{"kind":"tool_call_proxy_end","session_id":"sess-123"}`,
	})

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := &urfavecli.Command{
		Writer:    outBuf,
		ErrWriter: errBuf,
		Flags: []urfavecli.Flag{
			&urfavecli.IntFlag{Name: "limit", Value: defaultLogDisplayLimit},
		},
	}

	require.NoError(t, handleLogsCommand(context.Background(), cmd))
	require.Contains(t, outBuf.String(), "Log directory")
	require.Contains(t, outBuf.String(), "sess-123")
	require.Zero(t, errBuf.Len())
}

// TestHandleLogsCommandNoDirectory verifies a missing logs directory
// produces a helpful stderr message rather than an error.
func TestHandleLogsCommandNoDirectory(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "missing")
	t.Setenv("TOOLGATE_LOG_DIR", tempDir)

	outBuf := &bytes.Buffer{}
	errBuf := &bytes.Buffer{}
	cmd := &urfavecli.Command{
		Writer:    outBuf,
		ErrWriter: errBuf,
		Flags: []urfavecli.Flag{
			&urfavecli.IntFlag{Name: "limit", Value: defaultLogDisplayLimit},
		},
	}

	require.NoError(t, handleLogsCommand(context.Background(), cmd))
	require.Contains(t, errBuf.String(), "No logs found")
}
