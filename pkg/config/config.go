package config

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// ManifestFileName is the project manifest listing the dependencies to pin.
const ManifestFileName = "pkgpin.toml"

type Config struct {
	Project ProjectConfig `toml:"project"`
	// Dependencies maps a local name to a locator spec such as
	// "npm+async$^1.5.0" or "nuget+elmah$[1.0,2.0)".
	Dependencies map[string]string `toml:"dependencies"`
}

type ProjectConfig struct {
	Name string `toml:"name"`
}

// Names returns the dependency names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Dependencies))
	for name := range c.Dependencies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func UnmarshalConfig(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if cfg.Dependencies == nil {
		cfg.Dependencies = map[string]string{}
	}
	return cfg, nil
}

func (c *Config) Marshal() ([]byte, error) {
	return toml.Marshal(c)
}

func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	cfg, err := UnmarshalConfig(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func SaveFile(path string, cfg *Config) error {
	data, err := cfg.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
