package fhir

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// SearchParam describes a search parameter for use with the CapabilityBuilder.
type SearchParam struct {
	Name          string `json:"name"`
	Type          string `json:"type"`
	Documentation string `json:"documentation,omitempty"`
}

type resourceEntry struct {
	interactions []string
	searchParams []SearchParam
}

// CapabilityBuilder accumulates the resources exposed by one FHIR version of
// the server and builds its CapabilityStatement.
type CapabilityBuilder struct {
	mu        sync.RWMutex
	resources map[string]*resourceEntry

	BaseURL       string
	ServerVersion string
	FHIRVersion   string
}

// NewCapabilityBuilder creates a builder. fhirVersion is the full version
// string, e.g. "4.0.1" or "3.0.2".
func NewCapabilityBuilder(baseURL, serverVersion, fhirVersion string) *CapabilityBuilder {
	return &CapabilityBuilder{
		resources:     make(map[string]*resourceEntry),
		BaseURL:       baseURL,
		ServerVersion: serverVersion,
		FHIRVersion:   fhirVersion,
	}
}

// AddResource registers a resource type. Registering a type twice merges the
// interactions and search parameters.
func (b *CapabilityBuilder) AddResource(resourceType string, interactions []string, searchParams []SearchParam) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.resources[resourceType]
	if !ok {
		entry = &resourceEntry{}
		b.resources[resourceType] = entry
	}

	seen := make(map[string]bool, len(entry.interactions))
	for _, i := range entry.interactions {
		seen[i] = true
	}
	for _, i := range interactions {
		if !seen[i] {
			entry.interactions = append(entry.interactions, i)
			seen[i] = true
		}
	}

	seenParams := make(map[string]bool, len(entry.searchParams))
	for _, p := range entry.searchParams {
		seenParams[p.Name] = true
	}
	for _, p := range searchParams {
		if !seenParams[p.Name] {
			entry.searchParams = append(entry.searchParams, p)
			seenParams[p.Name] = true
		}
	}
}

// ResourceTypes returns the registered types sorted alphabetically.
func (b *CapabilityBuilder) ResourceTypes() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	types := make([]string, 0, len(b.resources))
	for rt := range b.resources {
		types = append(types, rt)
	}
	sort.Strings(types)
	return types
}

// Build constructs the CapabilityStatement as a map suitable for JSON
// serialization. Resources are sorted alphabetically by type.
func (b *CapabilityBuilder) Build() map[string]interface{} {
	types := b.ResourceTypes()

	b.mu.RLock()
	defer b.mu.RUnlock()

	resources := make([]map[string]interface{}, 0, len(types))
	for _, rt := range types {
		entry := b.resources[rt]

		interactions := make([]map[string]string, len(entry.interactions))
		for i, code := range entry.interactions {
			interactions[i] = map[string]string{"code": code}
		}
		res := map[string]interface{}{
			"type":        rt,
			"interaction": interactions,
		}
		if len(entry.searchParams) > 0 {
			res["searchParam"] = entry.searchParams
		}
		resources = append(resources, res)
	}

	return map[string]interface{}{
		"resourceType": "CapabilityStatement",
		"status":       "active",
		"date":         time.Now().UTC().Format("2006-01-02"),
		"kind":         "instance",
		"fhirVersion":  b.FHIRVersion,
		"format":       []string{"application/fhir+json", "json"},
		"software": map[string]string{
			"name":    "FHIR2 Module",
			"version": b.ServerVersion,
		},
		"implementation": map[string]string{
			"description": "FHIR2 module for the host EHR",
			"url":         b.BaseURL,
		},
		"rest": []map[string]interface{}{
			{
				"mode":     "server",
				"resource": resources,
			},
		},
	}
}

// Handler serves the CapabilityStatement at GET metadata.
func (b *CapabilityBuilder) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, b.Build())
	}
}
