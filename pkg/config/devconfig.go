package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/charmbracelet/log"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// LocalConfigFile is the project-local developer config filename.
const LocalConfigFile = "pkgpin.local.toml"

// Backends are the registry backends pkgpin can resolve against.
var Backends = []string{"npm", "nuget"}

// DevConfig holds developer-specific configuration that is NOT committed
// to version control. It is resolved with Viper precedence:
// CLI flags > pkgpin.local.toml (project-local) > ~/.pkgpin/config.toml (global).
type DevConfig struct {
	// Backends lists the enabled registry backends.
	Backends    []string      `toml:"backends,omitempty" mapstructure:"backends"`
	NpmRegistry string        `toml:"npm_registry,omitempty" mapstructure:"npm_registry"`
	NpmClient   string        `toml:"npm_client,omitempty" mapstructure:"npm_client"`
	Npmrc       string        `toml:"npmrc,omitempty" mapstructure:"npmrc"`
	NugetFeed   string        `toml:"nuget_feed,omitempty" mapstructure:"nuget_feed"`
	Timeout     time.Duration `toml:"timeout,omitempty" mapstructure:"timeout"`
	LogLevel    string        `toml:"log_level,omitempty" mapstructure:"log_level"`
	Output      string        `toml:"output,omitempty" mapstructure:"output"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("backends", Backends)
	v.SetDefault("npm_client", "http")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("log_level", "info")
	v.SetDefault("output", "text")
}

// LoadDevConfig resolves developer configuration using Viper's merge
// semantics. Non-zero values in overrides (keyed like the config file, set
// from CLI flags) take highest precedence.
func LoadDevConfig(overrides map[string]any) (*DevConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	globalPath := filepath.Join(home, ".pkgpin", "config.toml")
	return loadDevConfig(overrides, globalPath, LocalConfigFile)
}

// loadDevConfig is the internal implementation that accepts explicit paths,
// making it testable without touching the real home directory.
func loadDevConfig(overrides map[string]any, globalPath, localPath string) (*DevConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	defaults(v)

	// Lowest priority: global config
	v.SetConfigFile(globalPath)
	// Read global config; ignore if missing.
	_ = v.ReadInConfig()

	// Higher priority: project-local config
	if _, err := os.Stat(localPath); err == nil {
		v.SetConfigFile(localPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
	}

	// Highest priority: CLI flags
	for key, value := range overrides {
		if !isZero(value) {
			v.Set(key, value)
		}
	}

	cfg := &DevConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling dev config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func isZero(v any) bool {
	switch v := v.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []string:
		return len(v) == 0
	case time.Duration:
		return v == 0
	case bool:
		return !v
	}
	return false
}

func (c *DevConfig) Validate() error {
	if err := c.ValidateBackends(); err != nil {
		return err
	}
	switch c.NpmClient {
	case "http", "cli":
	default:
		return fmt.Errorf("npm_client must be \"http\" or \"cli\", got %q", c.NpmClient)
	}
	switch c.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output must be text, json or yaml, got %q", c.Output)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout)
	}
	return nil
}

// ValidateBackends rejects backends pkgpin does not know.
func (c *DevConfig) ValidateBackends() error {
	for _, b := range c.Backends {
		if !slices.Contains(Backends, b) {
			return fmt.Errorf("unknown backend %q (known: %v)", b, Backends)
		}
	}
	return nil
}

// Enabled reports whether backend is enabled.
func (c *DevConfig) Enabled(backend string) bool {
	return slices.Contains(c.Backends, backend)
}

// WriteLocalDevConfig persists developer config to pkgpin.local.toml in the
// given project directory.
func WriteLocalDevConfig(projectDir string, cfg *DevConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling dev config: %w", err)
	}

	path := filepath.Join(projectDir, LocalConfigFile)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
