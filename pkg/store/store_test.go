package store

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pkgpin/pkgpin/pkg/locator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resolved(fetcher, pkg, rev string) *locator.Locator {
	l := locator.Parse("")
	l.Set(locator.Fetcher, locator.Resolved(fetcher, nil))
	l.Set(locator.Package, locator.Resolved(pkg, nil))
	l.Set(locator.Revision, locator.Resolved(rev, nil))
	return l
}

func TestDir(t *testing.T) {
	root := "/tmp/store-root"

	tests := map[string]struct {
		loc     *locator.Locator
		want    string
		wantErr bool
	}{
		"plain package": {
			loc:  resolved("npm", "async", "1.5.0"),
			want: filepath.Join(root, "npm", "async", "1.5.0"),
		},
		"scoped package stays one segment": {
			loc:  resolved("npm", "@types/node", "20.1.0"),
			want: filepath.Join(root, "npm", "@types%2Fnode", "20.1.0"),
		},
		"unresolved locator": {
			loc:     locator.Parse("npm+async$1.5.0"),
			wantErr: true,
		},
		"parent directory component": {
			loc:     resolved("npm", "..", "1.0.0"),
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := New(root).Dir(tc.loc)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDirUnresolvedError(t *testing.T) {
	_, err := New(t.TempDir()).Dir(locator.Parse("npm+async"))
	assert.ErrorIs(t, err, ErrUnresolved)
}

func TestPut(t *testing.T) {
	tests := map[string]struct {
		previous map[string]string
		fill     map[string]string
		fillErr  error
		want     map[string]string
	}{
		"fresh package": {
			fill: map[string]string{"package.json": "{}", "lib/index.js": "x"},
			want: map[string]string{"package.json": "{}", "lib/index.js": "x"},
		},
		"replaces previous contents": {
			previous: map[string]string{"stale.txt": "old"},
			fill:     map[string]string{"package.json": "{}"},
			want:     map[string]string{"package.json": "{}"},
		},
		"failed fill keeps previous contents": {
			previous: map[string]string{"package.json": "old"},
			fill:     map[string]string{"partial": "x"},
			fillErr:  errors.New("connection reset"),
			want:     map[string]string{"package.json": "old"},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			s := New(t.TempDir())
			l := resolved("npm", "async", "1.5.0")

			if tc.previous != nil {
				_, err := s.Put(l, writeFiles(tc.previous, nil))
				require.NoError(t, err)
			}

			entry, err := s.Put(l, writeFiles(tc.fill, tc.fillErr))
			if tc.fillErr != nil {
				require.ErrorIs(t, err, tc.fillErr)
			} else {
				require.NoError(t, err)
				assert.Contains(t, entry.Digest, hashPrefix)
			}

			dir, err := s.Dir(l)
			require.NoError(t, err)
			assert.Equal(t, tc.want, readFiles(t, dir))

			staged, err := os.ReadDir(s.Path(stagingDir))
			require.NoError(t, err)
			assert.Empty(t, staged)
		})
	}
}

func TestPutConcurrent(t *testing.T) {
	s := New(t.TempDir())
	files := map[string]string{"package.json": `{"name":"async"}`}

	const n = 32
	entries := make([]*Entry, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries[i], errs[i] = s.Put(resolved("npm", "async", "1.5.0"), writeFiles(files, nil))
		}()
	}
	wg.Wait()

	for i := range n {
		require.NoError(t, errs[i], "put %d", i)
		assert.Equal(t, entries[0].Digest, entries[i].Digest)
	}
	assert.Equal(t, files, readFiles(t, entries[0].Dir))

	staged, err := os.ReadDir(s.Path(stagingDir))
	require.NoError(t, err)
	assert.Empty(t, staged)
}

func TestExistsAndRemove(t *testing.T) {
	s := New(t.TempDir())
	l := resolved("nuget", "elmah", "1.2.2")

	ok, err := s.Exists(l)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Put(l, writeFiles(map[string]string{"elmah.nuspec": "<package/>"}, nil))
	require.NoError(t, err)
	ok, err = s.Exists(l)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Remove(l))
	ok, err = s.Exists(l)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDigest(t *testing.T) {
	computeExpected := func(pairs [][2]string) string {
		h := sha256.New()
		for _, p := range pairs {
			fmt.Fprintf(h, "%s\x00%d\x00%s", p[0], len(p[1]), p[1])
		}
		return hashPrefix + hex.EncodeToString(h.Sum(nil))
	}

	tests := map[string]struct {
		files map[string]string
		// pairs is the sorted list the digest is computed over
		pairs [][2]string
	}{
		"single file": {
			files: map[string]string{"a.txt": "alpha"},
			pairs: [][2]string{{"a.txt", "alpha"}},
		},
		"multiple files sorted order": {
			files: map[string]string{"b.txt": "bravo", "a.txt": "alpha", "c.txt": "charlie"},
			pairs: [][2]string{{"a.txt", "alpha"}, {"b.txt", "bravo"}, {"c.txt", "charlie"}},
		},
		"nested files use slash paths": {
			files: map[string]string{"sub/z.txt": "zulu", "a.txt": "alpha"},
			pairs: [][2]string{{"a.txt", "alpha"}, {"sub/z.txt", "zulu"}},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, writeFiles(tc.files, nil)(dir))

			got, err := Digest(dir)
			require.NoError(t, err)
			assert.Equal(t, computeExpected(tc.pairs), got)
		})
	}
}

func TestDigestFramesEntries(t *testing.T) {
	tests := map[string][2]map[string]string{
		"path and content boundary": {
			{"a": "bc"},
			{"ab": "c"},
		},
		"file boundary": {
			{"a": "xb", "c": ""},
			{"a": "x", "bc": ""},
		},
	}

	for name, pair := range tests {
		t.Run(name, func(t *testing.T) {
			var digests []string
			for _, files := range pair {
				dir := t.TempDir()
				require.NoError(t, writeFiles(files, nil)(dir))
				d, err := Digest(dir)
				require.NoError(t, err)
				digests = append(digests, d)
			}
			assert.NotEqual(t, digests[0], digests[1])
		})
	}
}

func TestDigestNonExistent(t *testing.T) {
	_, err := Digest(filepath.Join(t.TempDir(), "no-such-dir"))
	require.Error(t, err)
}

// writeFiles returns a fill function writing files into its directory and
// then failing with err, if set.
func writeFiles(files map[string]string, err error) func(string) error {
	return func(dir string) error {
		for rel, content := range files {
			full := filepath.Join(dir, filepath.FromSlash(rel))
			if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
				return err
			}
			if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
				return err
			}
		}
		return err
	}
}

func readFiles(t *testing.T, dir string) map[string]string {
	t.Helper()
	got := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(dir, path)
		got[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return got
}
