package fhir

import (
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/ehr/fhir2/pkg/pagination"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Total        *int          `json:"total,omitempty"`
	Link         []BundleLink  `json:"link,omitempty"`
	Entry        []BundleEntry `json:"entry,omitempty"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
}

type BundleLink struct {
	Relation string `json:"relation"`
	URL      string `json:"url"`
}

type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource,omitempty"`
	Search   *BundleSearch   `json:"search,omitempty"`
}

type BundleSearch struct {
	Mode string `json:"mode,omitempty"`
}

// SearchBundleParams holds pagination and link information for a search bundle.
type SearchBundleParams struct {
	BaseURL string
	// Query is the request's search input; paging keys in it are ignored.
	Query  url.Values
	Count  int
	Offset int
	Total  int
}

// NewSearchBundle creates a searchset Bundle with self/next/previous links.
// Entries that fail to marshal are skipped.
func NewSearchBundle(resources []Resource, params SearchBundleParams) *Bundle {
	now := time.Now().UTC()
	entries := make([]BundleEntry, 0, len(resources))
	for _, r := range resources {
		raw, err := json.Marshal(r)
		if err != nil {
			continue
		}
		entries = append(entries, BundleEntry{
			FullURL:  fullURL(params.BaseURL, r),
			Resource: raw,
			Search:   &BundleSearch{Mode: "match"},
		})
	}

	total := params.Total
	return &Bundle{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        &total,
		Timestamp:    &now,
		Link:         buildPaginationLinks(params),
		Entry:        entries,
	}
}

func fullURL(baseURL string, r Resource) string {
	if r.GetID() == "" {
		return ""
	}
	ref := FormatReference(r.GetResourceType(), r.GetID())
	base := strings.TrimSuffix(baseURL, "/")
	// baseURL is the search URL, e.g. http://host/fhir/R4/DiagnosticReport
	if i := strings.LastIndex(base, "/"+r.GetResourceType()); i >= 0 && i+len(r.GetResourceType())+1 == len(base) {
		base = base[:i]
	}
	if base == "" {
		return ref
	}
	return base + "/" + ref
}

// buildPaginationLinks creates self, next, and previous links for searchset bundles.
func buildPaginationLinks(params SearchBundleParams) []BundleLink {
	pg := pagination.Params{Limit: params.Count, Offset: params.Offset}
	links := pg.Links(params.BaseURL, params.Query, params.Total)
	out := make([]BundleLink, len(links))
	for i, l := range links {
		out[i] = BundleLink{Relation: l.Relation, URL: l.URL}
	}
	return out
}
