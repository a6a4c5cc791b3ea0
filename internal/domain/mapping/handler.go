package mapping

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhir2/pkg/pagination"
)

// Handler exposes the mapping tables on the admin API.
type Handler struct {
	units   *DurationUnitMap
	sources *ConceptSourceMap
}

func NewHandler(units *DurationUnitMap, sources *ConceptSourceMap) *Handler {
	return &Handler{units: units, sources: sources}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/duration-unit-maps", h.ListDurationUnitMaps)
	api.POST("/duration-unit-maps", h.CreateDurationUnitMap)
	api.DELETE("/duration-unit-maps/:uuid", h.RetireDurationUnitMap)

	api.GET("/concept-sources", h.ListConceptSources)
	api.POST("/concept-sources", h.CreateConceptSource)
}

type durationUnitMapRequest struct {
	ConceptID  int64  `json:"concept_id"`
	UnitOfTime string `json:"unit_of_time"`
	Creator    string `json:"creator"`
}

func (h *Handler) CreateDurationUnitMap(c echo.Context) error {
	var req durationUnitMapRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.ConceptID <= 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "concept_id is required")
	}
	if req.Creator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "creator is required")
	}

	m := &FhirDurationUnitMap{
		ConceptID:  req.ConceptID,
		UnitOfTime: req.UnitOfTime,
		Auditable:  Auditable{Creator: req.Creator},
	}
	if err := h.units.Save(c.Request().Context(), m); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) ListDurationUnitMaps(c echo.Context) error {
	pg := pagination.FromContext(c)
	includeRetired := c.QueryParam("include_retired") == "true"
	items, total, err := h.units.List(c.Request().Context(), includeRetired, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) RetireDurationUnitMap(c echo.Context) error {
	by := c.QueryParam("retired_by")
	if by == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "retired_by is required")
	}
	m, err := h.units.Retire(c.Request().Context(), c.Param("uuid"), by, c.QueryParam("reason"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "duration unit map not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) CreateConceptSource(c echo.Context) error {
	var src FhirConceptSource
	if err := c.Bind(&src); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if src.Creator == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "creator is required")
	}
	src.ID = 0
	if err := h.sources.Save(c.Request().Context(), &src); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, src)
}

func (h *Handler) ListConceptSources(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.sources.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}
