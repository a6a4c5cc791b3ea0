package fhir

import (
	"fmt"
	"net/http"
	"sort"
	"sync/atomic"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// Server routes FHIR requests to the resource providers currently loaded.
// The provider set can be swapped at any time; in-flight requests finish on
// the router they started on.
type Server struct {
	logger        zerolog.Logger
	prefix        string
	baseURL       string
	serverVersion string
	current       atomic.Pointer[routes]
}

type routes struct {
	router    *echo.Echo
	providers []ResourceProvider
}

// ProviderInfo summarizes a loaded provider.
type ProviderInfo struct {
	ResourceType string   `json:"resourceType"`
	FHIRVersion  Version  `json:"fhirVersion"`
	Interactions []string `json:"interactions"`
}

// NewServer creates a server whose routes live under prefix (e.g. "/fhir").
// baseURL is the externally visible URL of prefix.
func NewServer(prefix, baseURL, serverVersion string, logger zerolog.Logger) *Server {
	s := &Server{
		logger:        logger.With().Str("component", "fhir-server").Logger(),
		prefix:        prefix,
		baseURL:       baseURL,
		serverVersion: serverVersion,
	}
	s.current.Store(s.build(nil))
	return s
}

// SetProviders builds a router for providers and makes it current. Two
// providers for the same resource type and version are rejected.
func (s *Server) SetProviders(providers []ResourceProvider) error {
	seen := map[string]bool{}
	for _, p := range providers {
		key := string(p.FHIRVersion()) + "/" + p.ResourceType()
		if seen[key] {
			return fmt.Errorf("duplicate resource provider for %s", key)
		}
		seen[key] = true
	}

	s.current.Store(s.build(providers))
	s.logger.Info().Int("providers", len(providers)).Msg("FHIR routes rebuilt")
	return nil
}

// Providers describes the loaded providers sorted by version and type.
func (s *Server) Providers() []ProviderInfo {
	r := s.current.Load()
	out := make([]ProviderInfo, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, ProviderInfo{
			ResourceType: p.ResourceType(),
			FHIRVersion:  p.FHIRVersion(),
			Interactions: interactionsOf(p),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FHIRVersion != out[j].FHIRVersion {
			return out[i].FHIRVersion > out[j].FHIRVersion
		}
		return out[i].ResourceType < out[j].ResourceType
	})
	return out
}

// Handler forwards a request to the current router. Mount it on prefix+"/*".
func (s *Server) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		s.current.Load().router.ServeHTTP(c.Response(), c.Request())
		return nil
	}
}

// ServeHTTP lets the server be used as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.current.Load().router.ServeHTTP(w, r)
}

func (s *Server) build(providers []ResourceProvider) *routes {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler(s.logger)

	byVersion := map[Version][]ResourceProvider{}
	for _, p := range providers {
		byVersion[p.FHIRVersion()] = append(byVersion[p.FHIRVersion()], p)
	}

	for _, v := range []Version{VersionR4, VersionR3} {
		list := byVersion[v]
		if len(list) == 0 {
			continue
		}
		g := e.Group(s.prefix + "/" + string(v))
		capability := NewCapabilityBuilder(s.baseURL+"/"+string(v), s.serverVersion, v.FHIRVersion())
		for _, p := range list {
			p.RegisterRoutes(g)
			capability.AddResource(p.ResourceType(), interactionsOf(p), searchParamsOf(p))
		}
		g.GET("/metadata", capability.Handler())
	}

	return &routes{router: e, providers: append([]ResourceProvider(nil), providers...)}
}
