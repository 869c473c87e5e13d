package npm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/pkgpin/pkgpin/pkg/fetcher"
)

var packageFields = []string{"name", "versions", "description", "repository", "homepage", "bugs", "dist-tags", "maintainers"}

// CLIRegistry answers registry queries through the local npm client
// (`npm view --json`). The client location and its configured registry
// are looked up once, before the first query.
type CLIRegistry struct {
	bin      string
	registry string

	ready *fetcher.Readiness
	path  string
}

var _ Registry = &CLIRegistry{}

// NewCLIRegistry returns a registry backed by the npm binary bin ("npm" when
// empty). A non-empty registry URL is passed to every npm invocation.
func NewCLIRegistry(bin, registry string) *CLIRegistry {
	if bin == "" {
		bin = "npm"
	}
	r := &CLIRegistry{bin: bin, registry: registry}
	r.ready = fetcher.NewReadiness(r.load)
	return r
}

func (r *CLIRegistry) load(ctx context.Context) error {
	path, err := exec.LookPath(r.bin)
	if err != nil {
		return fmt.Errorf("locating npm client: %w", err)
	}
	r.path = path

	if r.registry == "" {
		out, err := exec.CommandContext(ctx, r.path, "config", "get", "registry").Output()
		if err != nil {
			return fmt.Errorf("reading npm registry config: %w", execError(err))
		}
		r.registry = strings.TrimSpace(string(out))
	}
	return nil
}

// view runs `npm view <spec> <fields...> --json` and returns its raw
// output. Empty output means npm found nothing matching spec.
func (r *CLIRegistry) view(ctx context.Context, spec string, fields ...string) ([]byte, error) {
	if err := r.ready.Wait(ctx); err != nil {
		return nil, fmt.Errorf("loading npm client: %w", err)
	}

	args := append([]string{"view", spec}, fields...)
	args = append(args, "--json")
	if r.registry != "" {
		args = append(args, "--registry", r.registry)
	}

	query := "npm " + strings.Join(args, " ")
	out, err := exec.CommandContext(ctx, r.path, args...).Output()
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", fetcher.ErrPackageNotFound, spec)
		}
		return nil, fetcher.Transport("exec", query, execError(err))
	}
	return bytes.TrimSpace(out), nil
}

func (r *CLIRegistry) Package(ctx context.Context, name string) (*PackageInfo, error) {
	out, err := r.view(ctx, name, packageFields...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", fetcher.ErrPackageNotFound, name)
	}

	var data struct {
		Name        string            `json:"name"`
		Versions    stringList        `json:"versions"`
		Description string            `json:"description"`
		Repository  urlField          `json:"repository"`
		Homepage    string            `json:"homepage"`
		Bugs        urlField          `json:"bugs"`
		DistTags    map[string]string `json:"dist-tags"`
		Maintainers []person          `json:"maintainers"`
	}
	if err := json.Unmarshal(out, &data); err != nil {
		return nil, fetcher.Transport("decoding", "npm view "+name, err)
	}
	if data.Name == "" {
		return nil, fmt.Errorf("%w: %s", fetcher.ErrPackageNotFound, name)
	}

	info := &PackageInfo{
		Title:       data.Name,
		URL:         packageURL(data.Homepage, data.Bugs, data.Repository),
		Description: data.Description,
		Latest:      data.DistTags["latest"],
		Authors:     authors(data.Maintainers),
	}
	for i, id := range data.Versions {
		info.Revisions = append(info.Revisions, Revision{ID: id, Position: i})
	}
	return info, nil
}

func (r *CLIRegistry) Version(ctx context.Context, name, spec string) (*VersionInfo, error) {
	if spec == "" {
		spec = "latest"
	}
	query := name + "@" + spec

	out, err := r.view(ctx, query, "version")
	if err != nil {
		if errors.Is(err, fetcher.ErrPackageNotFound) {
			return nil, fmt.Errorf("%w: %s: %w", fetcher.ErrRevisionNotFound, query, err)
		}
		return nil, err
	}

	// a range matching several versions yields an array, in ascending
	// order; npm itself installs the highest
	var versions stringList
	if len(out) > 0 {
		if err := json.Unmarshal(out, &versions); err != nil {
			return nil, fetcher.Transport("decoding", "npm view "+query+" version", err)
		}
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: no version of %s matches %q", fetcher.ErrRevisionNotFound, name, spec)
	}

	v := versions[len(versions)-1]
	return &VersionInfo{
		Version: v,
		Raw:     map[string]any{"version": v, "query": query, "matches": []string(versions)},
	}, nil
}

func (r *CLIRegistry) Tarball(ctx context.Context, name, version string) (string, error) {
	out, err := r.view(ctx, name+"@"+version, "dist.tarball")
	if err != nil {
		return "", err
	}
	var tarball stringList
	if len(out) > 0 {
		if err := json.Unmarshal(out, &tarball); err != nil {
			return "", fetcher.Transport("decoding", "npm view "+name+"@"+version+" dist.tarball", err)
		}
	}
	if len(tarball) == 0 {
		return "", fmt.Errorf("%w: %s@%s has no tarball", fetcher.ErrRevisionNotFound, name, version)
	}
	return tarball[0], nil
}

// stringList decodes npm's --json output for a single field, which is a
// string when one value matched and an array when several did.
type stringList []string

func (l *stringList) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*l = []string{s}
		return nil
	}
	var ss []string
	if err := json.Unmarshal(data, &ss); err != nil {
		return err
	}
	*l = ss
	return nil
}

func isNotFound(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && bytes.Contains(exitErr.Stderr, []byte("E404"))
}

func execError(err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return err
}
