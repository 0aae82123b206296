package config

import "fmt"

// ValidateConfig checks cfg against the invariants the rest of the gateway
// assumes hold: router bounds are sane, every downstream server is
// nameable and has a transport the pool understands.
func ValidateConfig(cfg *GlobalConfig) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Server.Transport != "" && cfg.Server.Transport != "stdio" {
		return fmt.Errorf("server.transport %q is not supported (only \"stdio\")", cfg.Server.Transport)
	}
	if cfg.Router.MaxTools < 0 {
		return fmt.Errorf("router.max_tools must be >= 0")
	}
	if cfg.Router.MaxPerServer < 0 {
		return fmt.Errorf("router.max_per_server must be >= 0")
	}
	if cfg.Router.MinConfidence < 0 || cfg.Router.MinConfidence > 1 {
		return fmt.Errorf("router.min_confidence must be within [0,1]")
	}
	switch cfg.Router.Mode {
	case "", "hybrid", "semantic", "keyword":
	default:
		return fmt.Errorf("router.mode %q must be one of hybrid|semantic|keyword", cfg.Router.Mode)
	}

	seen := make(map[string]bool, len(cfg.DownstreamServers))
	for i, ds := range cfg.DownstreamServers {
		if err := validateDownstreamServer(i, ds); err != nil {
			return err
		}
		if seen[ds.Name] {
			return fmt.Errorf("downstream_servers[%d]: duplicate server name %q", i, ds.Name)
		}
		seen[ds.Name] = true
	}
	return nil
}

func validateDownstreamServer(i int, ds DownstreamServerConfig) error {
	if ds.Name == "" {
		return fmt.Errorf("downstream_servers[%d]: name is required", i)
	}
	switch ds.Transport {
	case "stdio":
		if ds.Command == "" {
			return fmt.Errorf("downstream_servers[%d] (%s): stdio transport requires command", i, ds.Name)
		}
	case "http":
		if ds.URL == "" {
			return fmt.Errorf("downstream_servers[%d] (%s): http transport requires url", i, ds.Name)
		}
	default:
		return fmt.Errorf("downstream_servers[%d] (%s): transport %q must be stdio or http", i, ds.Name, ds.Transport)
	}
	return nil
}
