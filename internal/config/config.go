// Package config loads the daemon's configuration file. The loader itself
// is treated as an external collaborator with a stated interface, but the
// repository needs one working implementation to run end to end.
package config

import (
	"fmt"
	"net/netip"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/hgojf/keepalive/internal/endpoint"
	"github.com/hgojf/keepalive/internal/privsep"
)

// Config is the immutable, fully-resolved configuration handed to the
// supervisor, and is immutable after load.
type Config struct {
	Listeners      []endpoint.Endpoint
	Clients        []endpoint.Endpoint
	TimeoutSeconds int
}

// fileListener/fileClient/fileConfig mirror the TOML schema documented in
// the documented TOML schema; they exist only as the unmarshal target, never
// exposed outside this package.
type fileListener struct {
	Address string `toml:"address"`
	Port    uint16 `toml:"port"`
}

type fileClient struct {
	Address string `toml:"address"`
}

type fileConfig struct {
	Timeout int            `toml:"timeout"`
	Listen  []fileListener `toml:"listen"`
	Client  []fileClient   `toml:"client"`
}

// Load parses and validates the TOML file at path. A read or parse error,
// a missing [[listen]] entry, or an unparsable address is returned as an
// error, fatal at startup. A missing or non-positive timeout falls back to
// privsep.DefaultTimeoutSeconds.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	if fc.Timeout <= 0 {
		fc.Timeout = privsep.DefaultTimeoutSeconds
	}

	cfg := &Config{TimeoutSeconds: fc.Timeout}

	if len(fc.Listen) == 0 {
		return nil, fmt.Errorf("config: %s: at least one [[listen]] entry required", path)
	}
	for _, l := range fc.Listen {
		addr, err := netip.ParseAddr(l.Address)
		if err != nil {
			return nil, fmt.Errorf("config: listen address %q: %w", l.Address, err)
		}
		cfg.Listeners = append(cfg.Listeners, endpoint.NewEndpoint(addr, l.Port))
	}

	for _, c := range fc.Client {
		addr, err := netip.ParseAddr(c.Address)
		if err != nil {
			return nil, fmt.Errorf("config: client address %q: %w", c.Address, err)
		}
		cfg.Clients = append(cfg.Clients, endpoint.NewEndpoint(addr, 0))
	}

	return cfg, nil
}
