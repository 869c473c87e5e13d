package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// PinFileName is written next to the manifest by `pkgpin pin`.
const PinFileName = "pkgpin.lock"

const LockFileVersion = 1

// LockFile records the fully resolved locator of every manifest
// dependency.
type LockFile struct {
	Version int   `toml:"version" json:"version"`
	Pins    []Pin `toml:"pins" json:"pins"`
}

type Pin struct {
	Name string `toml:"name" json:"name"`
	// Spec is the manifest entry the pin was resolved from.
	Spec    string `toml:"spec" json:"spec"`
	Locator string `toml:"locator" json:"locator"`
	Full    string `toml:"full" json:"full"`
	Title   string `toml:"title,omitempty" json:"title,omitempty"`
	URL     string `toml:"url,omitempty" json:"url,omitempty"`
	// Integrity is the digest of the downloaded contents, when the pin was
	// made with downloads enabled.
	Integrity string `toml:"integrity,omitempty" json:"integrity,omitempty"`
}

// Find returns the pin named name.
func (lf *LockFile) Find(name string) (Pin, bool) {
	if lf == nil {
		return Pin{}, false
	}
	i := slices.IndexFunc(lf.Pins, func(p Pin) bool { return p.Name == name })
	if i < 0 {
		return Pin{}, false
	}
	return lf.Pins[i], true
}

// Sort orders pins by name.
func (lf *LockFile) Sort() {
	slices.SortFunc(lf.Pins, func(a, b Pin) int { return strings.Compare(a.Name, b.Name) })
}

// LoadLockFile reads a pin file. A missing file is not an error and yields
// nil.
func LoadLockFile(path string) (*LockFile, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	lf := &LockFile{}
	if err := toml.Unmarshal(data, lf); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if lf.Version != LockFileVersion {
		return nil, fmt.Errorf("%s: unsupported pin file version %d", path, lf.Version)
	}
	return lf, nil
}

func SaveLockFile(path string, lf *LockFile) error {
	lf.Version = LockFileVersion
	lf.Sort()
	data, err := toml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling pin file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
