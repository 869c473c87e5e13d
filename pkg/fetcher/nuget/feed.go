package nuget

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkgpin/pkgpin/pkg/fetcher"
)

// DefaultFeed is the public NuGet v2 OData feed.
const DefaultFeed = "https://www.nuget.org/api/v2"

// maxPages bounds how many <link rel="next"> pages a single search follows.
const maxPages = 50

// Feed is the NuGet feed query collaborator.
type Feed interface {
	// Search returns every feed entry whose title matches title,
	// case-insensitively, in feed order. An unknown title yields no entries.
	Search(ctx context.Context, title string) ([]Entry, error)
	// PackageURL returns the download URL of a package version.
	PackageURL(ctx context.Context, id, version string) (string, error)
}

// Entry is one package version advertised by a feed.
type Entry struct {
	ID          string
	Title       string
	Version     string
	Authors     string
	Description string
	ProjectURL  string
	IsLatest    bool
}

// Name is the entry's display title, or its id when the feed has none.
func (e Entry) Name() string {
	if e.Title != "" {
		return e.Title
	}
	return e.ID
}

// atomFeed is the subset of an OData v2 Atom document a search reads.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
	Links   []atomLink  `xml:"link"`
}

type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}

type atomEntry struct {
	Title  string `xml:"title"`
	Author struct {
		Name string `xml:"name"`
	} `xml:"author"`
	Summary    string `xml:"summary"`
	Properties struct {
		ID              string `xml:"Id"`
		Title           string `xml:"Title"`
		Version         string `xml:"Version"`
		Authors         string `xml:"Authors"`
		Description     string `xml:"Description"`
		ProjectURL      string `xml:"ProjectUrl"`
		IsLatestVersion string `xml:"IsLatestVersion"`
	} `xml:"properties"`
}

func (a atomEntry) entry() Entry {
	p := a.Properties
	e := Entry{
		ID:          p.ID,
		Title:       p.Title,
		Version:     p.Version,
		Authors:     p.Authors,
		Description: p.Description,
		ProjectURL:  p.ProjectURL,
		IsLatest:    strings.EqualFold(strings.TrimSpace(p.IsLatestVersion), "true"),
	}
	// the Atom title carries the package id
	if e.ID == "" {
		e.ID = strings.TrimSpace(a.Title)
	}
	if e.Authors == "" {
		e.Authors = a.Author.Name
	}
	if e.Description == "" {
		e.Description = a.Summary
	}
	return e
}

// ODataFeed queries a NuGet v2 OData feed over HTTP.
type ODataFeed struct {
	baseURL string
	client  *http.Client

	ready *fetcher.Readiness
}

var _ Feed = &ODataFeed{}

// NewODataFeed returns a feed client for baseURL (DefaultFeed when empty).
// A nil client uses http.DefaultClient.
func NewODataFeed(baseURL string, client *http.Client) *ODataFeed {
	if client == nil {
		client = http.DefaultClient
	}
	f := &ODataFeed{baseURL: baseURL, client: client}
	f.ready = fetcher.NewReadiness(f.load)
	return f
}

func (f *ODataFeed) load(context.Context) error {
	if f.baseURL == "" {
		f.baseURL = DefaultFeed
	}
	f.baseURL = strings.TrimRight(f.baseURL, "/")
	u, err := url.Parse(f.baseURL)
	if err != nil {
		return fmt.Errorf("parsing NuGet feed URL %q: %w", f.baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("NuGet feed URL %q must be http or https", f.baseURL)
	}
	return nil
}

func (f *ODataFeed) Search(ctx context.Context, title string) ([]Entry, error) {
	if err := f.ready.Wait(ctx); err != nil {
		return nil, fmt.Errorf("loading NuGet feed: %w", err)
	}

	query := url.Values{}
	query.Set("$filter", fmt.Sprintf("tolower(Title) eq '%s'", odataString(strings.ToLower(title))))
	next := f.baseURL + "/Packages()?" + query.Encode()

	var entries []Entry
	for page := 0; next != "" && page < maxPages; page++ {
		doc, err := f.page(ctx, next)
		if err != nil {
			return nil, err
		}
		for _, a := range doc.Entries {
			e := a.entry()
			if strings.EqualFold(e.Name(), title) || strings.EqualFold(e.ID, title) {
				entries = append(entries, e)
			}
		}

		next = ""
		for _, l := range doc.Links {
			if l.Rel == "next" {
				next = l.Href
			}
		}
	}
	return entries, nil
}

func (f *ODataFeed) page(ctx context.Context, u string) (*atomFeed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fetcher.Transport("creating request", u, err)
	}
	req.Header.Set("Accept", "application/atom+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fetcher.Transport("GET", u, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fetcher.Transport("GET", u, fmt.Errorf("NuGet feed returned status %d", resp.StatusCode))
	}

	doc := &atomFeed{}
	if err := xml.NewDecoder(resp.Body).Decode(doc); err != nil {
		return nil, fmt.Errorf("%w: unparseable feed response from %s: %v", fetcher.ErrPackageNotFound, u, err)
	}
	return doc, nil
}

func (f *ODataFeed) PackageURL(ctx context.Context, id, version string) (string, error) {
	if err := f.ready.Wait(ctx); err != nil {
		return "", fmt.Errorf("loading NuGet feed: %w", err)
	}
	return f.baseURL + "/package/" + url.PathEscape(id) + "/" + url.PathEscape(version), nil
}

// odataString escapes s for use inside a single-quoted OData literal.
func odataString(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
