// Package nuget resolves and downloads packages from a NuGet OData feed.
//
// Locators look like nuget+elmah$[1.0,2.0). The revision may be "latest"
// (the default), an exact version the feed advertises, or a version
// interval resolved by versionrange.
package nuget

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/pkgpin/pkgpin/pkg/archive"
	"github.com/pkgpin/pkgpin/pkg/fetcher"
	"github.com/pkgpin/pkgpin/pkg/locator"
	"github.com/pkgpin/pkgpin/pkg/versionrange"
)

const Name = "nuget"

type Fetcher struct {
	fetcher.Base

	feed   Feed
	client *http.Client
}

var _ fetcher.Fetcher = &Fetcher{}

type Option func(*Fetcher)

// WithDownloadClient sets the HTTP client used to fetch .nupkg files.
func WithDownloadClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

func New(feed Feed, opts ...Option) *Fetcher {
	f := &Fetcher{feed: feed, client: http.DefaultClient}
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

	entries, err := f.feed.Search(ctx, pkg.Value)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no NuGet package titled %q", fetcher.ErrPackageNotFound, pkg.Value)
	}
	log.FromContext(ctx).Debug("fetched nuget package", "id", entries[0].ID, "versions", len(entries))

	meta := metadata(entries)
	if err := l.Set(locator.Package, locator.Component{
		Value:    entries[0].ID,
		Full:     entries[0].ID,
		Resolved: true,
		Metadata: meta,
	}); err != nil {
		return nil, err
	}
	return l, nil
}

// metadata summarizes a package from its feed entries. Scalar fields come
// from the latest entry, or the first one when none is flagged latest.
func metadata(entries []Entry) map[string]any {
	head := entries[0]
	latest := ""
	revisions := make([]string, 0, len(entries))
	for _, e := range entries {
		revisions = append(revisions, e.Version)
		if e.IsLatest && latest == "" {
			head, latest = e, e.Version
		}
	}
	return map[string]any{
		"title":       head.Name(),
		"url":         head.ProjectURL,
		"authors":     splitAuthors(head.Authors),
		"description": head.Description,
		"revisions":   revisions,
		"latest":      latest,
	}
}

func splitAuthors(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func (f *Fetcher) ResolveRevision(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	l, err := f.Base.ResolveRevision(ctx, l, force)
	if err != nil {
		return nil, err
	}
	if l.Revision().Resolved && !force {
		return l, nil
	}

	revisions, latest, err := f.revisions(ctx, l)
	if err != nil {
		return nil, err
	}

	spec := strings.TrimSpace(l.Revision().Value)
	var version string
	switch {
	case spec == "" || strings.EqualFold(spec, "latest"):
		version = latest
		if version == "" && len(revisions) > 0 {
			version = revisions[0]
		}
	case versionrange.IsInterval(spec):
		v, ok, err := versionrange.Resolve(spec, revisions)
		if err != nil {
			return nil, err
		}
		if ok {
			version = v
		}
	default:
		if i := slices.IndexFunc(revisions, func(r string) bool { return strings.EqualFold(r, spec) }); i >= 0 {
			version = revisions[i]
		}
	}
	if version == "" {
		return nil, fmt.Errorf("%w: no version of %s matches %q", fetcher.ErrRevisionNotFound, l.Package().Value, spec)
	}

	if err := l.Set(locator.Revision, locator.Resolved(version, map[string]any{
		"version": version,
		"query":   spec,
	})); err != nil {
		return nil, err
	}
	return l, nil
}

// revisions returns the advertised versions, in feed order, and the latest
// version. They come from the resolved package metadata when present and
// from the feed otherwise.
func (f *Fetcher) revisions(ctx context.Context, l *locator.Locator) ([]string, string, error) {
	meta := l.Package().Metadata
	if revs, ok := meta["revisions"].([]string); ok {
		latest, _ := meta["latest"].(string)
		return revs, latest, nil
	}

	entries, err := f.feed.Search(ctx, l.Package().Value)
	if err != nil {
		return nil, "", err
	}
	if len(entries) == 0 {
		return nil, "", fmt.Errorf("%w: no NuGet package titled %q", fetcher.ErrPackageNotFound, l.Package().Value)
	}
	meta = metadata(entries)
	return meta["revisions"].([]string), meta["latest"].(string), nil
}

// Download resolves l and extracts the version's .nupkg into dir.
func (f *Fetcher) Download(ctx context.Context, l *locator.Locator, dir string) (*locator.Locator, error) {
	l, err := fetcher.Resolve(ctx, f, l)
	if err != nil {
		return nil, err
	}

	id, version := l.Package().Value, l.Revision().Value
	u, err := f.feed.PackageURL(ctx, id, version)
	if err != nil {
		return nil, fmt.Errorf("locating package %s %s: %w", id, version, err)
	}

	tmp, err := os.CreateTemp("", "pkgpin-*.nupkg")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := f.fetch(ctx, u, tmp); err != nil {
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("writing %s: %w", tmp.Name(), err)
	}

	if err := archive.ExtractZip(tmp.Name(), dir); err != nil {
		return nil, fetcher.Transport("extracting", u, err)
	}
	log.FromContext(ctx).Info("downloaded", "locator", l, "dir", dir)
	return l, nil
}

func (f *Fetcher) fetch(ctx context.Context, u string, w io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fetcher.Transport("creating request", u, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return fetcher.Transport("GET", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fetcher.Transport("GET", u, fmt.Errorf("status %d", resp.StatusCode))
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fetcher.Transport("GET", u, err)
	}
	return nil
}
