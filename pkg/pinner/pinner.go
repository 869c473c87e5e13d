// Package pinner turns the dependencies of a manifest into pins: fully
// resolved locators recorded in the pin file.
package pinner

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/pkgpin/pkgpin/pkg/config"
	"github.com/pkgpin/pkgpin/pkg/fetcher"
	"github.com/pkgpin/pkgpin/pkg/locator"
	"github.com/pkgpin/pkgpin/pkg/store"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 8

type Pinner struct {
	Registry *fetcher.Registry
	// Store, when set, receives the contents of every pinned package and
	// the pin records their digest.
	Store *store.Store
	// Concurrency bounds how many dependencies resolve at once.
	Concurrency int
}

// PinAll resolves every dependency of cfg concurrently and returns the new
// pin file, sorted by name. A dependency whose spec is unchanged since
// existing was written is resolved from its pinned locator instead, so it
// keeps its revision while still being checked against the registry.
// The first failure cancels the remaining resolutions.
func (p *Pinner) PinAll(ctx context.Context, cfg *config.Config, existing *config.LockFile) (*config.LockFile, error) {
	names := cfg.Names()
	pins := make([]config.Pin, len(names))

	limit := p.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, name := range names {
		spec := cfg.Dependencies[name]
		g.Go(func() error {
			pin, err := p.Pin(ctx, name, spec, existing)
			if err != nil {
				return err
			}
			pins[i] = *pin
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	lf := &config.LockFile{Version: config.LockFileVersion, Pins: pins}
	lf.Sort()
	return lf, nil
}

// Pin resolves a single dependency.
func (p *Pinner) Pin(ctx context.Context, name, spec string, existing *config.LockFile) (*config.Pin, error) {
	logger := log.FromContext(ctx).With("dependency", name)

	l := locator.Parse(spec)
	if prev, ok := existing.Find(name); ok && prev.Spec == spec && prev.Locator != "" {
		logger.Debug("reusing pin", "locator", prev.Locator)
		l = locator.Parse(prev.Locator)
	}

	f, err := p.Registry.For(l)
	if err != nil {
		return nil, fmt.Errorf("pinning %q: %w", name, err)
	}
	resolved, err := fetcher.Resolve(ctx, f, l)
	if err != nil {
		return nil, fmt.Errorf("pinning %q: %w", name, err)
	}

	pin := &config.Pin{
		Name:    name,
		Spec:    spec,
		Locator: resolved.String(),
		Full:    resolved.FullString(),
	}
	meta := resolved.Package().Metadata
	pin.Title, _ = meta["title"].(string)
	pin.URL, _ = meta["url"].(string)

	if p.Store != nil {
		entry, err := p.Store.Put(resolved, func(dir string) error {
			_, err := f.Download(ctx, resolved.Clone(), dir)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("downloading %q: %w", name, err)
		}
		pin.Integrity = entry.Digest
		logger.Debug("stored", "dir", entry.Dir, "digest", entry.Digest)
	}

	logger.Info("pinned", "locator", pin.Locator)
	return pin, nil
}
