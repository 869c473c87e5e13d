package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/pkgpin/pkgpin/pkg/locator"
	"sigs.k8s.io/yaml"
)

// result is the structured form of a resolved locator.
type result struct {
	Spec     string            `json:"spec"`
	Locator  string            `json:"locator"`
	Full     string            `json:"full"`
	Fetcher  locator.Component `json:"fetcher"`
	Package  locator.Component `json:"package"`
	Revision locator.Component `json:"revision"`
	Dir      string            `json:"dir,omitempty"`
	Digest   string            `json:"digest,omitempty"`
}

func newResult(spec string, l *locator.Locator) result {
	return result{
		Spec:     spec,
		Locator:  l.String(),
		Full:     l.FullString(),
		Fetcher:  l.Fetcher(),
		Package:  l.Package(),
		Revision: l.Revision(),
	}
}

// render writes v in the configured output format. text renders the
// human-readable form.
func render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling output: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshaling output: %w", err)
		}
		_, err = w.Write(data)
		return err
	default:
		return text(w)
	}
}
