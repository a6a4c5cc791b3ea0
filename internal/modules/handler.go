package modules

import (
	"context"
	"errors"
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhir2/internal/platform/fhir"
	"github.com/ehr/fhir2/internal/platform/plugin"
)

// Lifecycle is the part of the module host the admin API drives.
type Lifecycle interface {
	Modules() []*plugin.Module
	IsStarted(name string) bool
	Start(ctx context.Context, name string) error
	Stop(ctx context.Context, name string) error
	Refresh(ctx context.Context) error
}

// ProviderLister describes the FHIR providers being served.
type ProviderLister interface {
	Providers() []fhir.ProviderInfo
}

// Handler exposes module administration under /modules.
type Handler struct {
	host      Lifecycle
	providers ProviderLister
}

func NewHandler(host Lifecycle, providers ProviderLister) *Handler {
	return &Handler{host: host, providers: providers}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/modules")
	g.GET("", h.List)
	g.POST("/refresh", h.Refresh)
	g.GET("/fhir/providers", h.Providers)
	g.POST("/:name/start", h.Start)
	g.POST("/:name/stop", h.Stop)
}

// ModuleInfo is the admin view of a module.
type ModuleInfo struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Started         bool              `json:"started"`
	RequiredModules map[string]string `json:"requiredModules,omitempty"`
	AwareOfModules  map[string]string `json:"awareOfModules,omitempty"`
	Services        []ServiceInfo     `json:"services,omitempty"`
}

type ServiceInfo struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Component bool   `json:"component"`
}

// Describe builds the admin view of m.
func Describe(m *plugin.Module, started bool) ModuleInfo {
	info := ModuleInfo{
		Name:            m.Name,
		Version:         m.Version,
		Started:         started,
		RequiredModules: m.RequiredModules,
		AwareOfModules:  m.AwareOfModules,
	}
	for _, d := range m.Services {
		info.Services = append(info.Services, ServiceInfo{Name: d.Name, Kind: string(d.Kind), Component: d.Component})
	}
	sort.SliceStable(info.Services, func(i, j int) bool { return info.Services[i].Kind < info.Services[j].Kind })
	return info
}

func (h *Handler) List(c echo.Context) error {
	modules := h.host.Modules()
	out := make([]ModuleInfo, 0, len(modules))
	for _, m := range modules {
		out = append(out, Describe(m, h.host.IsStarted(m.Name)))
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Start(c echo.Context) error {
	name := c.Param("name")
	if err := h.host.Start(c.Request().Context(), name); err != nil {
		return lifecycleError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"name": name, "started": true})
}

func (h *Handler) Stop(c echo.Context) error {
	name := c.Param("name")
	if err := h.host.Stop(c.Request().Context(), name); err != nil {
		return lifecycleError(err)
	}
	return c.JSON(http.StatusOK, map[string]any{"name": name, "started": false})
}

func (h *Handler) Refresh(c echo.Context) error {
	if err := h.host.Refresh(c.Request().Context()); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Providers(c echo.Context) error {
	return c.JSON(http.StatusOK, h.providers.Providers())
}

func lifecycleError(err error) error {
	if errors.Is(err, plugin.ErrNotInstalled) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	return echo.NewHTTPError(http.StatusConflict, err.Error())
}
