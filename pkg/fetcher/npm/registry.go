package npm

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Registry is the npm registry query collaborator.
type Registry interface {
	// Package returns metadata for the named package, or an error wrapping
	// fetcher.ErrPackageNotFound.
	Package(ctx context.Context, name string) (*PackageInfo, error)
	// Version resolves a version specifier (a dist-tag, an exact version or
	// a semver range) to a concrete version, or an error wrapping
	// fetcher.ErrRevisionNotFound.
	Version(ctx context.Context, name, spec string) (*VersionInfo, error)
	// Tarball returns the tarball URL of a concrete version.
	Tarball(ctx context.Context, name, version string) (string, error)
}

// Revision is a published version and its position in publication order.
type Revision struct {
	ID       string `json:"revision_id"`
	Position int    `json:"position"`
}

type PackageInfo struct {
	Title       string     `json:"title"`
	URL         string     `json:"url,omitempty"`
	Description string     `json:"description,omitempty"`
	Revisions   []Revision `json:"revisions"`
	Latest      string     `json:"latest,omitempty"`
	Authors     []string   `json:"authors"`
}

// Metadata returns the package info in the form attached to a locator
// component.
func (p *PackageInfo) Metadata() map[string]any {
	return map[string]any{
		"title":       p.Title,
		"url":         p.URL,
		"description": p.Description,
		"revisions":   p.Revisions,
		"latest":      p.Latest,
		"authors":     p.Authors,
	}
}

// VersionInfo is a resolved version together with the registry's raw
// answer to the version query.
type VersionInfo struct {
	Version string
	Raw     map[string]any
}

var emailPattern = regexp.MustCompile(`<([^<>\s]+@[^<>\s]+)>`)

// person is an npm "people field": either {"name","email","url"} or the
// string shorthand "Name <email> (url)".
type person struct {
	Name  string
	Email string
}

func (p *person) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		p.Name = strings.TrimSpace(s)
		if m := emailPattern.FindStringSubmatch(s); m != nil {
			p.Email = m[1]
			p.Name = strings.TrimSpace(s[:strings.Index(s, "<")])
		}
		return nil
	}

	var obj struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	p.Name, p.Email = obj.Name, obj.Email
	return nil
}

// urlField is a field that is either a plain URL string or an object with
// a "url" key, like "bugs" and "repository".
type urlField string

func (u *urlField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*u = urlField(s)
		return nil
	}
	var obj struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	*u = urlField(obj.URL)
	return nil
}

// packageURL picks the homepage, then the issue tracker, then the
// repository.
func packageURL(homepage string, bugs, repository urlField) string {
	for _, u := range []string{homepage, string(bugs), string(repository)} {
		if u != "" {
			return u
		}
	}
	return ""
}

func authors(maintainers []person) []string {
	out := make([]string, 0, len(maintainers))
	for _, m := range maintainers {
		if m.Email != "" {
			out = append(out, m.Email)
		}
	}
	return out
}
