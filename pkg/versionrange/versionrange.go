// Package versionrange resolves NuGet-style version intervals such as
// "[1.0,2.0)" against a list of known revisions.
package versionrange

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// ErrMalformedInterval is returned for interval specifiers that violate the
// grammar or bracket rules, and for singleton intervals naming a revision
// that does not exist.
var ErrMalformedInterval = errors.New("malformed version interval")

const components = 3

var (
	intervalPattern  = regexp.MustCompile(`^([\[(])\s*([^,\[\]()]*?)\s*,\s*([^,\[\]()]*?)\s*([\])])$`)
	singletonPattern = regexp.MustCompile(`^([\[(])\s*([^,\[\]()]+?)\s*([\])])$`)
)

// Compare compares two dotted versions numerically. Each version is padded
// with zero components to three, and only the first three components are
// compared. The result is the signed difference at the first differing
// component, or zero.
func Compare(a, b string) int {
	av, bv := split(a), split(b)
	for i := 0; i < components; i++ {
		if d := av[i] - bv[i]; d != 0 {
			return d
		}
	}
	return 0
}

func split(v string) [components]int {
	var out [components]int
	for i, part := range strings.SplitN(v, ".", components+1) {
		if i == components {
			break
		}
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		out[i] = n
	}
	return out
}

// IsInterval reports whether spec has the shape of an interval, either
// "<open><low>,<high><close>" or a singleton "<open><v><close>".
func IsInterval(spec string) bool {
	spec = strings.TrimSpace(spec)
	return intervalPattern.MatchString(spec) || singletonPattern.MatchString(spec)
}

// Bound is one end of an interval.
type Bound struct {
	Version   string
	Inclusive bool
}

// admitsAbove reports whether v satisfies b as a lower bound.
func (b *Bound) admitsAbove(v string) bool {
	c := Compare(v, b.Version)
	return c > 0 || (b.Inclusive && c == 0)
}

// admitsBelow reports whether v satisfies b as an upper bound.
func (b *Bound) admitsBelow(v string) bool {
	c := Compare(v, b.Version)
	return c < 0 || (b.Inclusive && c == 0)
}

// Interval is a parsed version interval. A nil bound is unbounded.
type Interval struct {
	Low  *Bound
	High *Bound

	exact string
}

// Parse parses an interval specifier.
func Parse(spec string) (Interval, error) {
	spec = strings.TrimSpace(spec)

	if m := singletonPattern.FindStringSubmatch(spec); m != nil {
		if m[1] != "[" || m[3] != "]" {
			return Interval{}, fmt.Errorf("%w %q: a single version must be written [v]", ErrMalformedInterval, spec)
		}
		return Interval{exact: m[2]}, nil
	}

	m := intervalPattern.FindStringSubmatch(spec)
	if m == nil {
		return Interval{}, fmt.Errorf("%w %q", ErrMalformedInterval, spec)
	}
	open, low, high, closing := m[1], m[2], m[3], m[4]

	var iv Interval
	switch {
	case low == "" && high == "":
		return Interval{}, fmt.Errorf("%w %q: no bounds given", ErrMalformedInterval, spec)
	case low == "":
		if open == "[" {
			return Interval{}, fmt.Errorf("%w %q: missing lower bound cannot be inclusive", ErrMalformedInterval, spec)
		}
		iv.High = &Bound{Version: high, Inclusive: closing == "]"}
	case high == "":
		if closing == "]" {
			return Interval{}, fmt.Errorf("%w %q: missing upper bound cannot be inclusive", ErrMalformedInterval, spec)
		}
		iv.Low = &Bound{Version: low, Inclusive: open == "["}
	default:
		iv.Low = &Bound{Version: low, Inclusive: open == "["}
		iv.High = &Bound{Version: high, Inclusive: closing == "]"}
	}
	return iv, nil
}

// Contains reports whether v lies within the interval.
func (iv Interval) Contains(v string) bool {
	if iv.exact != "" {
		return v == iv.exact
	}
	if iv.Low != nil && !iv.Low.admitsAbove(v) {
		return false
	}
	if iv.High != nil && !iv.High.admitsBelow(v) {
		return false
	}
	return true
}

// Resolve returns the first revision, in the order given, that satisfies
// spec. The list is not sorted: with an ascending registry order this is the
// lowest satisfying version, with any other order it is simply the first
// match.
//
// A singleton "[v]" resolves to v only when v is one of revisions, and
// otherwise fails with ErrMalformedInterval.
func Resolve(spec string, revisions []string) (string, bool, error) {
	iv, err := Parse(spec)
	if err != nil {
		return "", false, err
	}

	if iv.exact != "" {
		if !slices.Contains(revisions, iv.exact) {
			return "", false, fmt.Errorf("%w %q: revision does not exist", ErrMalformedInterval, spec)
		}
		return iv.exact, true, nil
	}

	for _, rev := range revisions {
		if iv.Contains(rev) {
			return rev, true, nil
		}
	}
	return "", false, nil
}
