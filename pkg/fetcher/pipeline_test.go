package fetcher

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkgpin/pkgpin/pkg/locator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher resolves every package and revision it is given and records
// the order stages ran in.
type fakeFetcher struct {
	Base

	name       string
	packageErr error
	revision   string

	mu    sync.Mutex
	calls []string
}

var _ Fetcher = &fakeFetcher{}

func (f *fakeFetcher) record(stage string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, stage)
}

func (f *fakeFetcher) Name() string { return f.name }

func (f *fakeFetcher) ResolveFetcher(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	f.record("fetcher")
	l, err := f.Base.ResolveFetcher(ctx, l, force)
	if err != nil {
		return nil, err
	}
	return f.MatchFetcher(l, f.name)
}

func (f *fakeFetcher) ResolvePackage(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	f.record("package")
	if f.packageErr != nil {
		return nil, f.packageErr
	}
	if l.Package().Resolved && !force {
		return l, nil
	}
	return l, l.Set(locator.Package, locator.Resolved(l.Package().Value, map[string]any{"title": l.Package().Value}))
}

func (f *fakeFetcher) ResolveRevision(ctx context.Context, l *locator.Locator, force bool) (*locator.Locator, error) {
	f.record("revision")
	rev := l.Revision().Value
	if rev == "" || rev == "latest" {
		rev = f.revision
	}
	return l, l.Set(locator.Revision, locator.Resolved(rev, nil))
}

func (f *fakeFetcher) Download(ctx context.Context, l *locator.Locator, dir string) (*locator.Locator, error) {
	return f.Base.Download(ctx, f, l, dir)
}

func TestResolve(t *testing.T) {
	tests := map[string]struct {
		spec       string
		packageErr error
		want       string
		wantErr    error
		wantCalls  []string
	}{
		"full locator": {
			spec:      "fake+pkg$1.0.0",
			want:      "fake+pkg$1.0.0",
			wantCalls: []string{"fetcher", "package", "revision"},
		},
		"latest defaults": {
			spec:      "fake+pkg",
			want:      "fake+pkg$2.0.0",
			wantCalls: []string{"fetcher", "package", "revision"},
		},
		"fetcher name is case insensitive": {
			spec:      "FAKE+pkg$1.0.0",
			want:      "fake+pkg$1.0.0",
			wantCalls: []string{"fetcher", "package", "revision"},
		},
		"missing fetcher": {
			spec:      "pkg$1.0.0",
			wantErr:   ErrMissingFetcher,
			wantCalls: []string{"fetcher"},
		},
		"other backend": {
			spec:      "git+http://example.com/repo.git$abc123",
			wantErr:   ErrBackendMismatch,
			wantCalls: []string{"fetcher"},
		},
		"package stage error stops pipeline": {
			spec:       "fake+pkg",
			packageErr: ErrPackageNotFound,
			wantErr:    ErrPackageNotFound,
			wantCalls:  []string{"fetcher", "package"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			f := &fakeFetcher{name: "fake", revision: "2.0.0", packageErr: tc.packageErr}

			got, err := ResolveString(context.Background(), f, tc.spec)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				assert.Nil(t, got, "partial locator returned")
			} else {
				require.NoError(t, err)
				assert.Equal(t, tc.want, got.String())
				assert.True(t, got.IsResolved())
				assert.True(t, got.Frozen())
			}
			assert.Equal(t, tc.wantCalls, f.calls)
		})
	}
}

func TestPipelineStates(t *testing.T) {
	f := &fakeFetcher{name: "fake", revision: "2.0.0"}
	p := NewPipeline(f, locator.Parse("fake+pkg"), false)

	want := []State{PackagePending, RevisionPending, Resolved, Resolved}
	for i, w := range want {
		require.Equal(t, w, p.Step(context.Background()), "step %d", i)
	}
}

func TestPipelineCanceled(t *testing.T) {
	f := &fakeFetcher{name: "fake", revision: "2.0.0"}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := NewPipeline(f, locator.Parse("fake+pkg"), false)
	_, err := p.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, Failed, p.State())
	assert.Empty(t, f.calls)
}

func TestBaseResolveFetcher(t *testing.T) {
	var b Base

	_, err := b.ResolveFetcher(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrMissingFetcher)

	l := locator.Parse("npm+async")
	got, err := b.ResolveFetcher(context.Background(), l, false)
	require.NoError(t, err)
	assert.Same(t, l, got)
	assert.False(t, got.Fetcher().Resolved, "default stage must not mark the fetcher resolved")
}

func TestBaseDefaultsOnlyNormalize(t *testing.T) {
	var b Base

	l, err := b.ResolvePackage(context.Background(), nil, false)
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = b.ResolveRevision(context.Background(), nil, false)
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestMatchFetcherKeepsResolvedLocator(t *testing.T) {
	f := &fakeFetcher{name: "fake", revision: "2.0.0"}
	l, err := ResolveString(context.Background(), f, "fake+pkg")
	require.NoError(t, err)

	again, err := Resolve(context.Background(), f, l.Clone())
	require.NoError(t, err)
	assert.Equal(t, l.String(), again.String())

	_, err = f.MatchFetcher(l, "other")
	assert.ErrorIs(t, err, ErrBackendMismatch)
}

func TestTransportError(t *testing.T) {
	cause := errors.New("connection refused")
	err := Transport("GET", "https://registry.example/async", cause)

	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "https://registry.example/async", te.URL)
	assert.NoError(t, Transport("GET", "x", nil))
}

func TestReadinessRunsOnce(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	r := NewReadiness(func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- r.Wait(context.Background())
		}()
	}

	time.Sleep(10 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestReadinessSharesError(t *testing.T) {
	initErr := errors.New("config load failed")
	var runs atomic.Int32
	r := NewReadiness(func(ctx context.Context) error {
		runs.Add(1)
		return initErr
	})

	for range 3 {
		assert.ErrorIs(t, r.Wait(context.Background()), initErr)
	}
	assert.Equal(t, int32(1), runs.Load())
}

func TestReadinessCallerCancel(t *testing.T) {
	release := make(chan struct{})
	r := NewReadiness(func(ctx context.Context) error {
		<-release
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, r.Wait(ctx), context.Canceled)

	close(release)
	assert.NoError(t, r.Wait(context.Background()), "init inherited the first caller's cancellation")
}

func TestConcurrentResolve(t *testing.T) {
	f := &fakeFetcher{name: "fake", revision: "2.0.0"}

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			spec := "fake+pkg"
			if i%2 == 0 {
				spec = "other+pkg"
			}
			l, err := ResolveString(context.Background(), f, spec)
			if i%2 == 0 {
				assert.ErrorIs(t, err, ErrBackendMismatch, spec)
				return
			}
			if assert.NoError(t, err, spec) {
				assert.Equal(t, "fake+pkg$2.0.0", l.String())
			}
		}()
	}
	wg.Wait()
}
