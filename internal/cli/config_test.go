package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	urfavecli "github.com/urfave/cli/v3"

	"github.com/toolgate/toolgate/internal/config"
)

func withTempHome(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	return dir
}

func newCmdWithFlags(flags map[string]bool) *urfavecli.Command {
	cmd := &urfavecli.Command{}
	for name, value := range flags {
		cmd.Flags = append(cmd.Flags, &urfavecli.BoolFlag{Name: name})
		_ = cmd.Set(name, boolString(value))
	}
	return cmd
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func TestHandleConfigInitCreatesDefaultConfig(t *testing.T) {
	withTempHome(t)
	cmd := newCmdWithFlags(map[string]bool{"force": false, "quickstart": false})

	require.NoError(t, handleConfigInit(context.Background(), cmd))

	path, err := config.GetConfigPath()
	require.NoError(t, err)
	require.FileExists(t, path)

	cfg, err := config.LoadConfigFromPath(path)
	require.NoError(t, err)
	require.Empty(t, cfg.DownstreamServers)
}

func TestHandleConfigInitRefusesToOverwriteWithoutForce(t *testing.T) {
	withTempHome(t)
	path, err := config.GetConfigPath()
	require.NoError(t, err)
	require.NoError(t, config.SaveConfig(config.DefaultConfig(), path))

	before, err := os.Stat(path)
	require.NoError(t, err)

	cmd := newCmdWithFlags(map[string]bool{"force": false, "quickstart": false})
	require.NoError(t, handleConfigInit(context.Background(), cmd))

	after, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())
}

func TestHandleConfigValidateRejectsBadConfig(t *testing.T) {
	home := withTempHome(t)
	dir := filepath.Join(home, ".toolgate")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.json"),
		[]byte(`{"downstream_servers":[{"name":"fs","transport":"bogus"}]}`), 0o644))

	err := handleConfigValidate(context.Background(), &urfavecli.Command{})
	require.Error(t, err)
}

func TestHandleConfigValidateAcceptsDefaultConfig(t *testing.T) {
	home := withTempHome(t)
	path := filepath.Join(home, ".toolgate", "config.json")
	require.NoError(t, config.SaveConfig(config.DefaultConfig(), path))

	require.NoError(t, handleConfigValidate(context.Background(), &urfavecli.Command{}))
}
