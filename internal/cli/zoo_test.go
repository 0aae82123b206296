package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	urfavecli "github.com/urfave/cli/v3"

	"github.com/toolgate/toolgate/internal/config"
)

func TestHandleZooStatsWithNoDownstreamServers(t *testing.T) {
	home := withTempHome(t)
	path := filepath.Join(home, ".toolgate", "config.json")
	require.NoError(t, config.SaveConfig(config.DefaultConfig(), path))

	out := &bytes.Buffer{}
	cmd := &urfavecli.Command{Writer: out}
	require.NoError(t, handleZooStats(context.Background(), cmd))
	require.Contains(t, out.String(), "Total tools indexed: 0")
}
