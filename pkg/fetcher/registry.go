package fetcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pkgpin/pkgpin/pkg/locator"
)

// Registry tracks Fetcher instances by registry name. Names are matched
// case-insensitively.
// Note: Register is NOT thread safe; build the registry before resolving.
// Lookups and resolution are safe for concurrent use.
type Registry struct {
	fetchers map[string]Fetcher
}

func NewRegistry(fetchers ...Fetcher) (*Registry, error) {
	r := &Registry{fetchers: make(map[string]Fetcher)}
	for _, f := range fetchers {
		if err := r.Register(f); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(f Fetcher) error {
	key := strings.ToLower(f.Name())
	if _, ok := r.fetchers[key]; ok {
		return fmt.Errorf("failed to register fetcher %q: other fetcher already registered", f.Name())
	}
	r.fetchers[key] = f
	return nil
}

func (r *Registry) Get(name string) (Fetcher, bool) {
	f, ok := r.fetchers[strings.ToLower(name)]
	return f, ok
}

// Names returns a sorted list of all registered registry names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.fetchers))
	for _, f := range r.fetchers {
		names = append(names, f.Name())
	}
	sort.Strings(names)
	return names
}

// For picks the fetcher named by the locator's fetcher component.
func (r *Registry) For(l *locator.Locator) (Fetcher, error) {
	name := l.Fetcher().Value
	if name == "" {
		return nil, fmt.Errorf("%w in %q", ErrMissingFetcher, l)
	}
	f, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: no fetcher registered for %q (known: %s)", ErrBackendMismatch, name, strings.Join(r.Names(), ", "))
	}
	return f, nil
}

// Resolve parses spec and resolves it with the fetcher its prefix names.
func (r *Registry) Resolve(ctx context.Context, spec string) (*locator.Locator, error) {
	l := locator.Parse(spec)
	f, err := r.For(l)
	if err != nil {
		return nil, err
	}
	return Resolve(ctx, f, l)
}

// Download resolves spec with the matching fetcher and writes the package
// contents to dir.
func (r *Registry) Download(ctx context.Context, spec, dir string) (*locator.Locator, error) {
	l := locator.Parse(spec)
	f, err := r.For(l)
	if err != nil {
		return nil, err
	}
	return Download(ctx, f, l, dir)
}
