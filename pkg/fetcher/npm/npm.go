// Package npm resolves and downloads packages from an npm registry.
//
// Locators look like npm+async$^1.5.0. The package may also be given as a
// registry URL (https://www.npmjs.com/package/async); the revision may be a
// dist-tag, an exact version or a semver range and defaults to "latest".
package npm

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/charmbracelet/log"
	"github.com/pkgpin/pkgpin/pkg/archive"
	"github.com/pkgpin/pkgpin/pkg/fetcher"
	"github.com/pkgpin/pkgpin/pkg/locator"
)

const Name = "npm"

var registryURLPattern = regexp.MustCompile(`(?i)(?:www\.)?npmjs\.(?:com|org)/(?:package/)?([a-z0-9\-]+)`)

type Fetcher struct {
	fetcher.Base

	registry Registry
	client   *http.Client
}

var _ fetcher.Fetcher = &Fetcher{}

type Option func(*Fetcher)

// WithDownloadClient sets the HTTP client used to fetch tarballs.
func WithDownloadClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func New(registry Registry, opts ...Option) *Fetcher {
	f := &Fetcher{registry: registry, client: http.DefaultClient}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Fetcher) Name() string { return Name }

func (f *Fetcher) ResolveFetcher(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	l, err := f.Base.ResolveFetcher(ctx, l, force)
	if err != nil {
		return nil, err
	}
	return f.MatchFetcher(l, Name)
}

func (f *Fetcher) ResolvePackage(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	l, err := f.Base.ResolvePackage(ctx, l, force)
	if err != nil {
		return nil, err
	}

	pkg := l.Package()
	if !pkg.IsSet() {
		return nil, fmt.Errorf("%w: no package in %q", fetcher.ErrPackageNotFound, l)
	}
	if pkg.Resolved && !force {
		return l, nil
	}

	name := PackageName(pkg.Value)
	info, err := f.registry.Package(ctx, name)
	if err != nil {
		return nil, err
	}
	log.FromContext(ctx).Debug("fetched npm package", "name", info.Title, "versions", len(info.Revisions), "latest", info.Latest)

	if err := l.Set(locator.Package, locator.Component{
		Value:    info.Title,
		Full:     info.Title,
		Resolved: true,
		Metadata: info.Metadata(),
	}); err != nil {
		return nil, err
	}
	return l, nil
}

func (f *Fetcher) ResolveRevision(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	l, err := f.Base.ResolveRevision(ctx, l, force)
	if err != nil {
		return nil, err
	}
	if l.Revision().Resolved && !force {
		return l, nil
	}

	spec := l.Revision().Value
	if spec == "" {
		spec = "latest"
	}

	v, err := f.registry.Version(ctx, l.Package().Value, spec)
	if err != nil {
		return nil, err
	}

	if err := l.Set(locator.Revision, locator.Resolved(v.Version, v.Raw)); err != nil {
		return nil, err
	}
	return l, nil
}

// Download resolves l and unpacks the version's tarball into dir.
func (f *Fetcher) Download(ctx context.Context, l *locator.Locator, dir string) (*locator.Locator, error) {
	l, err := fetcher.Resolve(ctx, f, l)
	if err != nil {
		return nil, err
	}

	name, version := l.Package().Value, l.Revision().Value
	tarball, err := f.registry.Tarball(ctx, name, version)
	if err != nil {
		return nil, fmt.Errorf("locating tarball for %s@%s: %w", name, version, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tarball, nil)
	if err != nil {
		return nil, fetcher.Transport("creating request", tarball, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fetcher.Transport("GET", tarball, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fetcher.Transport("GET", tarball, fmt.Errorf("status %d", resp.StatusCode))
	}

	// npm tarballs wrap their contents in a single top-level directory
	if err := archive.ExtractTarGz(resp.Body, dir, 1); err != nil {
		return nil, fetcher.Transport("extracting", tarball, err)
	}
	log.FromContext(ctx).Info("downloaded", "locator", l, "dir", dir)
	return l, nil
}

// PackageName extracts the bare package name from a registry URL, or
// returns spec unchanged when it is not one.
func PackageName(spec string) string {
	if m := registryURLPattern.FindStringSubmatch(spec); m != nil {
		return m[1]
	}
	return spec
}
