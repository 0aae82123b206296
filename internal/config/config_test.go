package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigPassesValidation(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, ValidateConfig(cfg))
	require.Equal(t, 10, cfg.Router.MaxPerServer)
}

func TestLoadConfigFromPathBackfillsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"router":{"max_tools":3}}`), 0o644))

	cfg, err := LoadConfigFromPath(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Router.MaxTools)
	require.Equal(t, 10, cfg.Router.MaxPerServer)
	require.Equal(t, "stdio", cfg.Server.Transport)
}

func TestValidateConfigRejectsBadDownstream(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DownstreamServers = []DownstreamServerConfig{{Name: "fs", Transport: "stdio"}}
	err := ValidateConfig(cfg)
	require.Error(t, err)
}

func TestValidateConfigRejectsDuplicateNames(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DownstreamServers = []DownstreamServerConfig{
		{Name: "fs", Transport: "stdio", Command: "fs-server"},
		{Name: "fs", Transport: "stdio", Command: "fs-server"},
	}
	err := ValidateConfig(cfg)
	require.Error(t, err)
}
