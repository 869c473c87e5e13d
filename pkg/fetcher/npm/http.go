package npm

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pkgpin/pkgpin/pkg/fetcher"
)

// DefaultRegistry is the public npm registry.
const DefaultRegistry = "https://registry.npmjs.org"

// HTTPRegistry queries the registry's JSON API directly. The registry URL
// and auth token are loaded once, from the explicit options or an .npmrc
// file, before the first request.
type HTTPRegistry struct {
	baseURL string
	npmrc   string
	client  *http.Client

	ready *fetcher.Readiness
	token string
}

var _ Registry = &HTTPRegistry{}

type HTTPOption func(*HTTPRegistry)

// WithBaseURL sets the registry URL, taking precedence over .npmrc.
func WithBaseURL(u string) HTTPOption {
	return func(r *HTTPRegistry) { r.baseURL = u }
}

// WithNpmrc reads registry and auth token settings from the given .npmrc.
func WithNpmrc(path string) HTTPOption {
	return func(r *HTTPRegistry) { r.npmrc = path }
}

func WithHTTPClient(c *http.Client) HTTPOption {
	return func(r *HTTPRegistry) { r.client = c }
}

func NewHTTPRegistry(opts ...HTTPOption) *HTTPRegistry {
	r := &HTTPRegistry{client: http.DefaultClient}
	for _, opt := range opts {
		opt(r)
	}
	r.ready = fetcher.NewReadiness(r.load)
	return r
}

func (r *HTTPRegistry) load(ctx context.Context) error {
	var rc npmrc
	if r.npmrc != "" {
		var err error
		rc, err = readNpmrc(r.npmrc)
		if err != nil {
			return err
		}
	}

	if r.baseURL == "" {
		r.baseURL = rc.registry
	}
	if r.baseURL == "" {
		r.baseURL = DefaultRegistry
	}
	r.baseURL = strings.TrimRight(r.baseURL, "/")

	u, err := url.Parse(r.baseURL)
	if err != nil {
		return fmt.Errorf("parsing npm registry URL %q: %w", r.baseURL, err)
	}
	r.token = rc.tokenFor(u)
	return nil
}

type packument struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	DistTags    map[string]string `json:"dist-tags"`
	Versions    map[string]struct {
		Version string `json:"version"`
		Dist    struct {
			Tarball string `json:"tarball"`
		} `json:"dist"`
	} `json:"versions"`
	Time        map[string]string `json:"time"`
	Maintainers []person          `json:"maintainers"`
	Homepage    string            `json:"homepage"`
	Bugs        urlField          `json:"bugs"`
	Repository  urlField          `json:"repository"`
}

func (r *HTTPRegistry) packument(ctx context.Context, name string) (*packument, error) {
	if err := r.ready.Wait(ctx); err != nil {
		return nil, fmt.Errorf("loading npm registry config: %w", err)
	}

	u := r.baseURL + "/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fetcher.Transport("creating request", u, err)
	}
	req.Header.Set("Accept", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fetcher.Transport("GET", u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", fetcher.ErrPackageNotFound, name)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fetcher.Transport("GET", u, fmt.Errorf("npm registry returned status %d", resp.StatusCode))
	}

	doc := &packument{}
	if err := json.NewDecoder(resp.Body).Decode(doc); err != nil {
		return nil, fetcher.Transport("decoding", u, err)
	}
	if doc.Name == "" || len(doc.Versions) == 0 {
		return nil, fmt.Errorf("%w: %s has no published versions", fetcher.ErrPackageNotFound, name)
	}
	return doc, nil
}

func (r *HTTPRegistry) Package(ctx context.Context, name string) (*PackageInfo, error) {
	doc, err := r.packument(ctx, name)
	if err != nil {
		return nil, err
	}

	info := &PackageInfo{
		Title:       doc.Name,
		URL:         packageURL(doc.Homepage, doc.Bugs, doc.Repository),
		Description: doc.Description,
		Latest:      doc.DistTags["latest"],
		Authors:     authors(doc.Maintainers),
	}
	for i, id := range sortedVersions(slices.Collect(maps.Keys(doc.Versions)), doc.Time) {
		info.Revisions = append(info.Revisions, Revision{ID: id, Position: i})
	}
	return info, nil
}

func (r *HTTPRegistry) Version(ctx context.Context, name, spec string) (*VersionInfo, error) {
	doc, err := r.packument(ctx, name)
	if err != nil {
		if errors.Is(err, fetcher.ErrPackageNotFound) {
			return nil, fmt.Errorf("%w: %s@%s: %w", fetcher.ErrRevisionNotFound, name, spec, err)
		}
		return nil, err
	}

	v, ok := pickVersion(doc, spec)
	if !ok {
		return nil, fmt.Errorf("%w: no version of %s matches %q", fetcher.ErrRevisionNotFound, name, spec)
	}

	return &VersionInfo{
		Version: v,
		Raw: map[string]any{
			"version":   v,
			"tarball":   doc.Versions[v].Dist.Tarball,
			"published": doc.Time[v],
		},
	}, nil
}

func (r *HTTPRegistry) Tarball(ctx context.Context, name, version string) (string, error) {
	doc, err := r.packument(ctx, name)
	if err != nil {
		return "", err
	}
	v, ok := doc.Versions[version]
	if !ok || v.Dist.Tarball == "" {
		return "", fmt.Errorf("%w: %s@%s has no tarball", fetcher.ErrRevisionNotFound, name, version)
	}
	return v.Dist.Tarball, nil
}

// pickVersion resolves spec the way npm does: dist-tags first, then exact
// versions, then the highest version satisfying a semver range. A range
// that the "latest" tag satisfies resolves to "latest".
func pickVersion(doc *packument, spec string) (string, bool) {
	if spec == "" {
		spec = "latest"
	}
	if v, ok := doc.DistTags[spec]; ok {
		return v, true
	}
	if _, ok := doc.Versions[spec]; ok {
		return spec, true
	}

	c, err := semver.NewConstraint(spec)
	if err != nil {
		return "", false
	}

	if latest, ok := doc.DistTags["latest"]; ok {
		if v, err := semver.NewVersion(latest); err == nil && c.Check(v) {
			return latest, true
		}
	}

	var best *semver.Version
	var bestID string
	for id := range doc.Versions {
		v, err := semver.NewVersion(id)
		if err != nil || !c.Check(v) {
			continue
		}
		if best == nil || v.GreaterThan(best) {
			best, bestID = v, id
		}
	}
	return bestID, best != nil
}

// sortedVersions orders versions oldest to newest by publication time.
// When any version lacks a parseable timestamp the whole list falls back to
// semver precedence, with unparseable versions last, lexically.
func sortedVersions(ids []string, published map[string]string) []string {
	times := make(map[string]time.Time, len(ids))
	for _, id := range ids {
		t, err := time.Parse(time.RFC3339, published[id])
		if err != nil {
			times = nil
			break
		}
		times[id] = t
	}

	slices.SortFunc(ids, func(a, b string) int {
		if times != nil {
			if c := times[a].Compare(times[b]); c != 0 {
				return c
			}
		}
		return compareSemver(a, b)
	})
	return ids
}

func compareSemver(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA == nil && errB == nil:
		return va.Compare(vb)
	case errA == nil:
		return -1
	case errB == nil:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

type npmrc struct {
	registry string
	tokens   map[string]string
}

// readNpmrc reads the registry and per-registry _authToken settings of an
// .npmrc file. Values may reference environment variables as ${VAR}.
func readNpmrc(path string) (npmrc, error) {
	rc := npmrc{tokens: map[string]string{}}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return rc, nil
		}
		return rc, fmt.Errorf("reading %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = os.ExpandEnv(strings.Trim(strings.TrimSpace(value), `"`))

		switch {
		case key == "registry":
			rc.registry = value
		case strings.HasPrefix(key, "//") && strings.HasSuffix(key, ":_authToken"):
			rc.tokens[strings.TrimSuffix(key, ":_authToken")] = value
		}
	}
	if err := scanner.Err(); err != nil {
		return rc, fmt.Errorf("reading %s: %w", path, err)
	}
	return rc, nil
}

// tokenFor returns the auth token configured for the registry at u.
func (rc npmrc) tokenFor(u *url.URL) string {
	key := "//" + u.Host + strings.TrimRight(u.Path, "/") + "/"
	if tok, ok := rc.tokens[key]; ok {
		return tok
	}
	return rc.tokens["//"+u.Host+"/"]
}
