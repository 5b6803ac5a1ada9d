// Package engineconfig is the engine's own operating configuration: where
// the slice-definition store lives, the policy mode bitmask, and the
// admin-surface listen address. It is a YAML file, separate from the
// relational slice-definition store (spec §6.3), adapted from the
// teacher control-plane's pkg/config DSL + loader.
package engineconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nec-oss/sliceengine/internal/resolver"
)

// Config is the root of the engine's YAML operating config.
type Config struct {
	SliceDBPath     string   `yaml:"slice_db_path"`
	Mode            []string `yaml:"mode"`
	AdminListenAddr string   `yaml:"admin_listen_addr"`
	LogLevel        string   `yaml:"log_level"`
}

// ModeBits translates the config's human-readable mode names into the
// resolver.Mode bitmask spec §6.4 defines.
func (c *Config) ModeBits() (resolver.Mode, error) {
	var m resolver.Mode
	for _, name := range c.Mode {
		switch name {
		case "loose_mac_based_slicing":
			m |= resolver.LooseMACBasedSlicing
		case "restrict_hosts_on_port":
			m |= resolver.RestrictHostsOnPort
		default:
			return 0, fmt.Errorf("engineconfig: unknown mode flag %q", name)
		}
	}
	return m, nil
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
