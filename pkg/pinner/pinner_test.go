package pinner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/pkgpin/pkgpin/pkg/config"
	"github.com/pkgpin/pkgpin/pkg/fetcher"
	"github.com/pkgpin/pkgpin/pkg/locator"
	"github.com/pkgpin/pkgpin/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves packages whose latest revision is latest. Packages
// named "missing" do not exist.
type fakeFetcher struct {
	fetcher.Base
	latest    string
	downloads atomic.Int32
}

func (f *fakeFetcher) Name() string { return "fake" }

func (f *fakeFetcher) ResolveFetcher(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	l, err := f.Base.ResolveFetcher(ctx, l, force)
	if err != nil {
		return nil, err
	}
	return f.MatchFetcher(l, "fake")
}

func (f *fakeFetcher) ResolvePackage(_ context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	pkg := l.Package()
	if pkg.Resolved && !force {
		return l, nil
	}
	if pkg.Value == "missing" {
		return nil, fetcher.ErrPackageNotFound
	}
	meta := map[string]any{"title": strings.ToUpper(pkg.Value), "url": "https://example.test/" + pkg.Value}
	return l, l.Set(locator.Package, locator.Resolved(pkg.Value, meta))
}

func (f *fakeFetcher) ResolveRevision(_ context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	if l.Revision().Resolved && !force {
		return l, nil
	}
	rev := l.Revision().Value
	if rev == "" {
		rev = f.latest
	}
	return l, l.Set(locator.Revision, locator.Resolved(rev, nil))
}

func (f *fakeFetcher) Download(ctx context.Context, l *locator.Locator, dir string) (*locator.Locator, error) {
	l, err := fetcher.Resolve(ctx, f, l)
	if err != nil {
		return nil, err
	}
	f.downloads.Add(1)
	return l, os.WriteFile(filepath.Join(dir, "VERSION"), []byte(l.Revision().Value), 0o644)
}

func newPinner(t *testing.T, latest string) (*Pinner, *fakeFetcher) {
	t.Helper()
	f := &fakeFetcher{latest: latest}
	reg, err := fetcher.NewRegistry(f)
	require.NoError(t, err)
	return &Pinner{Registry: reg, Concurrency: 2}, f
}

func TestPinAll(t *testing.T) {
	tests := map[string]struct {
		deps     map[string]string
		existing *config.LockFile
		want     map[string]string
		wantErr  error
	}{
		"empty manifest": {
			deps: map[string]string{},
			want: map[string]string{},
		},
		"fresh pins": {
			deps: map[string]string{"b": "fake+beta", "a": "fake+alpha$1.0.0"},
			want: map[string]string{"a": "fake+alpha$1.0.0", "b": "fake+beta$2.0.0"},
		},
		"unchanged spec keeps pinned revision": {
			deps: map[string]string{"a": "fake+alpha"},
			existing: &config.LockFile{Pins: []config.Pin{
				{Name: "a", Spec: "fake+alpha", Locator: "fake+alpha$1.5.0"},
			}},
			want: map[string]string{"a": "fake+alpha$1.5.0"},
		},
		"changed spec re-resolves": {
			deps: map[string]string{"a": "fake+alpha$3.0.0"},
			existing: &config.LockFile{Pins: []config.Pin{
				{Name: "a", Spec: "fake+alpha", Locator: "fake+alpha$1.5.0"},
			}},
			want: map[string]string{"a": "fake+alpha$3.0.0"},
		},
		"unknown backend": {
			deps:    map[string]string{"a": "pypi+requests"},
			wantErr: fetcher.ErrBackendMismatch,
		},
		"missing package fails the whole pin": {
			deps:    map[string]string{"a": "fake+alpha", "m": "fake+missing"},
			wantErr: fetcher.ErrPackageNotFound,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			p, _ := newPinner(t, "2.0.0")

			lf, err := p.PinAll(context.Background(), &config.Config{Dependencies: tc.deps}, tc.existing)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, lf)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, config.LockFileVersion, lf.Version)
			require.Len(t, lf.Pins, len(tc.want))

			for i, pin := range lf.Pins {
				if i > 0 {
					assert.Less(t, lf.Pins[i-1].Name, pin.Name, "pins not sorted")
				}
				assert.Equal(t, tc.want[pin.Name], pin.Locator)
				assert.Equal(t, tc.deps[pin.Name], pin.Spec)
				assert.Empty(t, pin.Integrity)
			}
		})
	}
}

func TestPinMetadata(t *testing.T) {
	p, _ := newPinner(t, "2.0.0")

	pin, err := p.Pin(context.Background(), "a", "FAKE+alpha", nil)
	require.NoError(t, err)
	assert.Equal(t, config.Pin{
		Name:    "a",
		Spec:    "FAKE+alpha",
		Locator: "fake+alpha$2.0.0",
		Full:    "fake+alpha$2.0.0",
		Title:   "ALPHA",
		URL:     "https://example.test/alpha",
	}, *pin)
}

func TestPinAllWithStore(t *testing.T) {
	p, f := newPinner(t, "2.0.0")
	p.Store = store.New(t.TempDir())

	cfg := &config.Config{Dependencies: map[string]string{"a": "fake+alpha", "b": "fake+beta$1.0.0"}}
	lf, err := p.PinAll(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, int32(2), f.downloads.Load())

	for _, pin := range lf.Pins {
		assert.True(t, strings.HasPrefix(pin.Integrity, "sha256:"), "pin %s has integrity %q", pin.Name, pin.Integrity)
	}

	data, err := os.ReadFile(p.Store.Path("fake", "alpha", "2.0.0", "VERSION"))
	require.NoError(t, err)
	assert.Equal(t, "2.0.0", string(data))
}
