package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkgpin/pkgpin/pkg/config"
)

const ManifestFile = config.ManifestFileName

// IgnoredFiles are the developer-local files that should not be committed.
var IgnoredFiles = []string{
	config.LocalConfigFile,
}

// InferName derives a project name from the given directory path.
func InferName(dir string) string {
	return filepath.Base(dir)
}

// Init creates a pkgpin.toml manifest in dir with the given project name
// and dependencies. Returns an error if the manifest already exists.
func Init(dir, name string, deps map[string]string) error {
	path := filepath.Join(dir, ManifestFile)

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", ManifestFile)
	}

	if deps == nil {
		deps = map[string]string{}
	}
	cfg := &config.Config{
		Project:      config.ProjectConfig{Name: name},
		Dependencies: deps,
	}

	if err := config.SaveFile(path, cfg); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// AddDependency records spec under name in the manifest in dir, replacing
// any previous entry of that name.
func AddDependency(dir, name, spec string) error {
	path := filepath.Join(dir, ManifestFile)
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	cfg.Dependencies[name] = spec
	return config.SaveFile(path, cfg)
}

// EnsureGitignore ensures that each entry appears somewhere in the .gitignore
// file within dir. Only entries not already present are appended. Returns the
// list of entries that were actually added.
func EnsureGitignore(dir string, entries []string) ([]string, error) {
	path := filepath.Join(dir, ".gitignore")

	existing, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	present := make(map[string]bool)
	for _, line := range strings.Split(string(existing), "\n") {
		present[strings.TrimSpace(line)] = true
	}

	var toAdd []string
	for _, entry := range entries {
		if !present[entry] {
			toAdd = append(toAdd, entry)
		}
	}

	if len(toAdd) == 0 {
		return nil, nil
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		if _, err := f.WriteString("\n"); err != nil {
			return nil, err
		}
	}

	for _, entry := range toAdd {
		if _, err := f.WriteString(entry + "\n"); err != nil {
			return nil, err
		}
	}

	return toAdd, nil
}
