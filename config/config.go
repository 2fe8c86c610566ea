// Package config loads the agent's configuration from a YAML file with
// an environment-variable overlay, in the same koanf-based shape as
// rib-ingester/internal/config: defaults set before Load, a struct tagged
// for unmarshal, then Validate before the caller ever sees it.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Config is the top-level configuration for one bgpd process.
type Config struct {
	RouterID         string         `koanf:"router_id"`
	LocalAS          uint32         `koanf:"local_as"`
	ListenAddr       string         `koanf:"listen_addr"`
	LogLevel         string         `koanf:"log_level"`
	DecisionInterval time.Duration  `koanf:"decision_interval"`
	MeshOpenTimeout  time.Duration  `koanf:"mesh_open_timeout"`
	Peers            []PeerConfig   `koanf:"peers"`
}

// PeerConfig describes one configured peer.
type PeerConfig struct {
	Key      string `koanf:"key"`
	PeerIP   string `koanf:"peer_ip"`
	Hostname bool   `koanf:"hostname"`
	Port     int    `koanf:"port"`
	PeerAS   uint32 `koanf:"peer_as"`
	LocalIP  string `koanf:"local_ip"`

	HoldTime             time.Duration `koanf:"hold_time"`
	ConnectRetryInterval time.Duration `koanf:"connect_retry_interval"`

	Passive              bool `koanf:"passive"`
	AcceptAnySource      bool `koanf:"accept_any_source"`
	RouteReflectorClient bool `koanf:"route_reflector_client"`

	ImportPrefixList []string `koanf:"import_prefix_list"`
	ExportPrefixList []string `koanf:"export_prefix_list"`
}

// Load reads path (if non-empty) as YAML, overlays BGPD_-prefixed
// environment variables, fills in defaults, and validates the result.
// Mirrors rib-ingester/internal/config.Load's three-stage shape.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: loading %s: %w", path, err)
		}
	}

	// BGPD_LOCAL_AS=65001, BGPD_LISTEN_ADDR=:179, etc.
	if err := k.Load(env.Provider("BGPD_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "BGPD_")
		s = strings.ToLower(s)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("config: loading environment: %w", err)
	}

	cfg := &Config{
		ListenAddr:       ":179",
		LogLevel:         "info",
		DecisionInterval: 5 * time.Second,
		MeshOpenTimeout:  30 * time.Second,
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshaling: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the fields every peer and the agent itself require.
func (c *Config) Validate() error {
	if c.RouterID == "" {
		return fmt.Errorf("config: router_id is required")
	}
	if c.LocalAS == 0 {
		return fmt.Errorf("config: local_as is required")
	}
	seen := make(map[string]bool, len(c.Peers))
	for _, p := range c.Peers {
		if p.Key == "" {
			return fmt.Errorf("config: peers[].key is required")
		}
		if seen[p.Key] {
			return fmt.Errorf("config: duplicate peer key %q", p.Key)
		}
		seen[p.Key] = true
		if p.AcceptAnySource {
			if !p.Passive {
				return fmt.Errorf("config: peer %q: accept_any_source requires passive", p.Key)
			}
			if p.PeerAS == 0 {
				return fmt.Errorf("config: peer %q: accept_any_source requires peer_as", p.Key)
			}
		} else if p.PeerIP == "" {
			return fmt.Errorf("config: peer %q: peer_ip is required unless accept_any_source", p.Key)
		}
	}
	return nil
}
