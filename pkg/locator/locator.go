// Package locator implements the package locator: a registry (fetcher),
// a package within it and a revision, each independently resolvable.
//
// The compact string form is
//
//	[<fetcher>+]<package>[$<revision>]
//
// e.g. "npm+async$1.5.0". There is no escaping of '+' or '$' inside
// components.
package locator

import (
	"errors"
	"fmt"
	"maps"
	"regexp"
	"strings"
)

// Kind names one of the three locator components.
type Kind int

const (
	Fetcher Kind = iota
	Package
	Revision
)

func (k Kind) String() string {
	switch k {
	case Fetcher:
		return "fetcher"
	case Package:
		return "package"
	case Revision:
		return "revision"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ErrFrozen is returned when a component of a fully resolved locator is
// reassigned.
var ErrFrozen = errors.New("locator is resolved and frozen")

var specPattern = regexp.MustCompile(`(?i)^(?:([a-z]+)\+)?([^$]+)(?:\$)?([^$]*)$`)

// Auth carries registry credentials alongside a locator. It is never
// interpreted by the locator itself.
type Auth struct {
	Username string `json:"username,omitempty" toml:"username,omitempty"`
	Password string `json:"password,omitempty" toml:"password,omitempty"`
	Token    string `json:"token,omitempty" toml:"token,omitempty"`
}

// Spec is the structured construction form of a Locator.
type Spec struct {
	Fetcher  string `json:"fetcher,omitempty" toml:"fetcher,omitempty"`
	Package  string `json:"package,omitempty" toml:"package,omitempty"`
	Revision string `json:"revision,omitempty" toml:"revision,omitempty"`
	Auth     *Auth  `json:"auth,omitempty" toml:"auth,omitempty"`
}

// Parts holds the short values of the three components.
type Parts struct {
	Fetcher  string
	Package  string
	Revision string
}

type Locator struct {
	components [3]Component
	auth       *Auth
	frozen     bool
}

// Parse builds a Locator from its string form. It never fails: text that
// does not match the grammar yields an empty locator, and anything else is
// left for the resolution stages to reject.
func Parse(s string) *Locator {
	l := &Locator{}
	m := specPattern.FindStringSubmatch(s)
	if m == nil {
		return l
	}
	l.components[Fetcher] = NewComponent(m[1])
	l.components[Package] = NewComponent(m[2])
	l.components[Revision] = NewComponent(m[3])
	return l
}

// FromSpec builds a Locator from its structured form.
func FromSpec(spec Spec) *Locator {
	l := &Locator{auth: spec.Auth}
	l.components[Fetcher] = NewComponent(spec.Fetcher)
	l.components[Package] = NewComponent(spec.Package)
	l.components[Revision] = NewComponent(spec.Revision)
	return l
}

func (l *Locator) Fetcher() Component  { return l.components[Fetcher] }
func (l *Locator) Package() Component  { return l.components[Package] }
func (l *Locator) Revision() Component { return l.components[Revision] }

// Get returns the component of the given kind, or the zero Component for
// an unknown kind.
func (l *Locator) Get(k Kind) Component {
	if k < Fetcher || k > Revision {
		return Component{}
	}
	return l.components[k]
}

// Auth returns the credentials the locator was constructed with, if any.
func (l *Locator) Auth() *Auth {
	return l.auth
}

// Set replaces a component. The component is normalized before it is
// stored, so the locator never holds a partial record.
func (l *Locator) Set(k Kind, c Component) error {
	if l.frozen {
		return fmt.Errorf("setting %s of %s: %w", k, l, ErrFrozen)
	}
	if k < Fetcher || k > Revision {
		return fmt.Errorf("unknown locator component %s", k)
	}
	l.components[k] = normalize(c)
	return nil
}

// SetValue assigns a plain string to a component: value and full are both
// set to s, and resolution state and metadata are cleared.
func (l *Locator) SetValue(k Kind, s string) error {
	return l.Set(k, NewComponent(s))
}

// IsResolved reports whether all three components have been resolved.
func (l *Locator) IsResolved() bool {
	for _, c := range l.components {
		if !c.Resolved {
			return false
		}
	}
	return true
}

// Freeze marks the locator terminal. Later Set calls fail with ErrFrozen.
func (l *Locator) Freeze() {
	l.frozen = true
}

func (l *Locator) Frozen() bool {
	return l.frozen
}

// Clone returns an unfrozen deep copy of l.
func (l *Locator) Clone() *Locator {
	c := &Locator{}
	for i, comp := range l.components {
		comp.Metadata = maps.Clone(comp.Metadata)
		c.components[i] = comp
	}
	if l.auth != nil {
		a := *l.auth
		c.auth = &a
	}
	return c
}

// String returns the short form fetcher+package$revision built from the
// component values.
func (l *Locator) String() string {
	var b strings.Builder
	if f := l.Fetcher(); f.IsSet() {
		b.WriteString(f.Value)
		b.WriteByte('+')
	}
	b.WriteString(l.Package().Value)
	if r := l.Revision(); r.IsSet() {
		b.WriteByte('$')
		b.WriteString(r.Value)
	}
	return b.String()
}

// FullString is like String but prefers each component's full form.
func (l *Locator) FullString() string {
	var b strings.Builder
	if f := l.Fetcher(); f.IsSet() {
		b.WriteString(f.FullOrValue())
		b.WriteByte('+')
	}
	b.WriteString(l.Package().FullOrValue())
	if r := l.Revision(); r.IsSet() {
		b.WriteByte('$')
		b.WriteString(r.FullOrValue())
	}
	return b.String()
}

// PackageString returns fetcher+package, omitting the revision.
func (l *Locator) PackageString() string {
	var b strings.Builder
	if f := l.Fetcher(); f.IsSet() {
		b.WriteString(f.Value)
		b.WriteByte('+')
	}
	b.WriteString(l.Package().Value)
	return b.String()
}

func (l *Locator) Parts() Parts {
	return Parts{
		Fetcher:  l.Fetcher().Value,
		Package:  l.Package().Value,
		Revision: l.Revision().Value,
	}
}

// Spec returns the structured form of the locator's short values.
func (l *Locator) Spec() Spec {
	return Spec{
		Fetcher:  l.Fetcher().Value,
		Package:  l.Package().Value,
		Revision: l.Revision().Value,
		Auth:     l.auth,
	}
}
