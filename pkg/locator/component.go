package locator

// Component is one part of a Locator.
type Component struct {
	// Value is the normalized short identifier, e.g. a package name.
	Value string `json:"value"`
	// Full is the original or verbose form, e.g. a URL or a range. It
	// defaults to Value.
	Full string `json:"full"`
	// Resolved is set once the owning resolution stage has confirmed the
	// component against the registry.
	Resolved bool `json:"resolved"`
	// Metadata is registry-returned data attached on resolution.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// NewComponent returns the normalized component for a plain string.
func NewComponent(s string) Component {
	return normalize(Component{Value: s, Full: s})
}

// Resolved returns a resolved component whose value and full form are both
// value.
func Resolved(value string, metadata map[string]any) Component {
	return normalize(Component{Value: value, Full: value, Resolved: true, Metadata: metadata})
}

func (c Component) IsSet() bool {
	return c.Value != ""
}

func (c Component) FullOrValue() string {
	if c.Full != "" {
		return c.Full
	}
	return c.Value
}

func normalize(c Component) Component {
	if c.Full == "" {
		c.Full = c.Value
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}
