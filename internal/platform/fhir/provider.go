package fhir

import "github.com/labstack/echo/v4"

// Version is the FHIR release a resource provider serves.
type Version string

const (
	VersionR4 Version = "R4"
	VersionR3 Version = "R3"
)

// FHIRVersion returns the full version published in the CapabilityStatement.
func (v Version) FHIRVersion() string {
	switch v {
	case VersionR3:
		return "3.0.2"
	default:
		return "4.0.1"
	}
}

// ResourceProvider exposes one resource type for one FHIR version.
// RegisterRoutes receives the version group, e.g. /fhir/R4.
type ResourceProvider interface {
	ResourceType() string
	FHIRVersion() Version
	RegisterRoutes(g *echo.Group)
}

// SearchParamsProvider is implemented by providers that support search.
type SearchParamsProvider interface {
	SearchParams() []SearchParam
}

// InteractionsProvider lists the interactions a provider supports. Providers
// that do not implement it are advertised as read and search-type only.
type InteractionsProvider interface {
	Interactions() []string
}

func interactionsOf(p ResourceProvider) []string {
	if ip, ok := p.(InteractionsProvider); ok {
		return ip.Interactions()
	}
	return []string{"read", "search-type"}
}

func searchParamsOf(p ResourceProvider) []SearchParam {
	if sp, ok := p.(SearchParamsProvider); ok {
		return sp.SearchParams()
	}
	return nil
}
