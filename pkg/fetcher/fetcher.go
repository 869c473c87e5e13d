// Package fetcher defines the three-stage resolution pipeline shared by all
// registry backends.
//
// Resolution runs ResolveFetcher, ResolvePackage and ResolveRevision in that
// order, each stage reading the component the previous stage resolved.
// Backends implement Fetcher and call Base for the default behaviour of any
// stage they extend.
package fetcher

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkgpin/pkgpin/pkg/locator"
)

type Fetcher interface {
	// Name returns the canonical registry name, e.g. "npm".
	Name() string
	// ResolveFetcher verifies that the locator belongs to this registry.
	ResolveFetcher(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error)
	// ResolvePackage confirms the package against the registry and attaches
	// its metadata. It is a no-op for an already resolved package unless
	// force is set.
	ResolvePackage(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error)
	// ResolveRevision turns the revision specifier into a concrete revision.
	ResolveRevision(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error)
	// Download resolves the locator and writes the package contents to dir.
	Download(ctx context.Context, l *locator.Locator, dir string) (*locator.Locator, error)
}

// Base holds the default stage behaviour. Backends embed no state from it;
// they call its methods explicitly before extending a stage.
type Base struct{}

// ResolveFetcher fails with ErrMissingFetcher when no fetcher is set.
func (Base) ResolveFetcher(_ context.Context, l *locator.Locator, _ bool) (*locator.Locator, error) {
	l = orEmpty(l)
	if !l.Fetcher().IsSet() {
		return nil, fmt.Errorf("%w in %q", ErrMissingFetcher, l)
	}
	return l, nil
}

func (Base) ResolvePackage(_ context.Context, l *locator.Locator, _ bool) (*locator.Locator, error) {
	return orEmpty(l), nil
}

func (Base) ResolveRevision(_ context.Context, l *locator.Locator, _ bool) (*locator.Locator, error) {
	return orEmpty(l), nil
}

// Download only resolves; there is nothing to materialize by default.
func (Base) Download(ctx context.Context, f Fetcher, l *locator.Locator, _ string) (*locator.Locator, error) {
	return Resolve(ctx, f, l)
}

// MatchFetcher checks the fetcher component against name, ignoring case,
// and on success replaces it with the resolved canonical name.
func (Base) MatchFetcher(l *locator.Locator, name string) (*locator.Locator, error) {
	if !strings.EqualFold(l.Fetcher().Value, name) {
		return nil, fmt.Errorf("%w: %s resolution attempted on %q", ErrBackendMismatch, name, l)
	}
	if f := l.Fetcher(); f.Resolved && f.Value == name {
		return l, nil
	}
	if err := l.Set(locator.Fetcher, locator.Resolved(name, nil)); err != nil {
		return nil, err
	}
	return l, nil
}

func orEmpty(l *locator.Locator) *locator.Locator {
	if l == nil {
		return locator.Parse("")
	}
	return l
}
