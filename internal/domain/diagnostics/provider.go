package diagnostics

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhir2/internal/platform/fhir"
	"github.com/ehr/fhir2/pkg/pagination"
)

var diagnosticReportSearchParams = []fhir.SearchParam{
	{Name: "_id", Type: "token"},
	{Name: "_lastUpdated", Type: "date"},
	{Name: "patient", Type: "reference"},
	{Name: "subject", Type: "reference"},
	{Name: "encounter", Type: "reference"},
	{Name: "code", Type: "token"},
	{Name: "status", Type: "token"},
	{Name: "issued", Type: "date"},
}

var diagnosticReportInteractions = []string{"read", "search-type", "create", "update", "delete"}

// wireCodec converts between the R4 model and a version's wire form.
type wireCodec struct {
	encode func(*fhir.DiagnosticReport) fhir.Resource
	decode func([]byte) (*fhir.DiagnosticReport, error)
}

var r4Codec = wireCodec{
	encode: func(r *fhir.DiagnosticReport) fhir.Resource { return r },
	decode: func(data []byte) (*fhir.DiagnosticReport, error) {
		var r fhir.DiagnosticReport
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return &r, nil
	},
}

var r3Codec = wireCodec{
	encode: func(r *fhir.DiagnosticReport) fhir.Resource { return fhir.DiagnosticReportToSTU3(r) },
	decode: func(data []byte) (*fhir.DiagnosticReport, error) {
		var r fhir.DiagnosticReportSTU3
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return fhir.DiagnosticReportFromSTU3(&r), nil
	},
}

type diagnosticReportRoutes struct {
	svc     *DiagnosticReportService
	baseURL string
	codec   wireCodec
}

func (p *diagnosticReportRoutes) register(g *echo.Group) {
	g.GET("/DiagnosticReport", p.search)
	g.POST("/DiagnosticReport/_search", p.search)
	g.GET("/DiagnosticReport/:id", p.read)
	g.POST("/DiagnosticReport", p.create)
	g.PUT("/DiagnosticReport/:id", p.update)
	g.DELETE("/DiagnosticReport/:id", p.delete)
}

func (p *diagnosticReportRoutes) read(c echo.Context) error {
	r, err := p.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p.codec.encode(r))
}

func (p *diagnosticReportRoutes) search(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := fhir.ExtractSearchParams(c)
	if sort := c.QueryParam("_sort"); sort != "" {
		params["_sort"] = sort
	}

	items, total, err := p.svc.Search(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return err
	}
	resources := make([]fhir.Resource, len(items))
	for i, item := range items {
		resources[i] = p.codec.encode(item)
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL: p.baseURL + "/DiagnosticReport",
		Query:   pagination.Values(c),
		Count:   pg.Limit,
		Offset:  pg.Offset,
		Total:   total,
	}))
}

func (p *diagnosticReportRoutes) create(c echo.Context) error {
	res, err := p.body(c)
	if err != nil {
		return err
	}
	created, err := p.svc.Create(c.Request().Context(), res)
	if err != nil {
		return err
	}
	c.Response().Header().Set("Location", p.baseURL+"/DiagnosticReport/"+created.ID)
	return c.JSON(http.StatusCreated, p.codec.encode(created))
}

func (p *diagnosticReportRoutes) update(c echo.Context) error {
	res, err := p.body(c)
	if err != nil {
		return err
	}
	updated, err := p.svc.Update(c.Request().Context(), c.Param("id"), res)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p.codec.encode(updated))
}

func (p *diagnosticReportRoutes) delete(c echo.Context) error {
	if err := p.svc.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, fhir.NewOutcomeBuilder().
		AddIssue(fhir.IssueSeverityInformation, fhir.IssueTypeInformational,
			"Successfully deleted DiagnosticReport/"+c.Param("id")).
		Build())
}

func (p *diagnosticReportRoutes) body(c echo.Context) (*fhir.DiagnosticReport, error) {
	var envelope struct {
		ResourceType string `json:"resourceType"`
	}
	data, err := readBody(c)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fhir.NewInvalidRequestError(fmt.Sprintf("invalid DiagnosticReport body: %v", err))
	}
	if envelope.ResourceType != "DiagnosticReport" {
		return nil, fhir.NewInvalidRequestError(fmt.Sprintf("expected resourceType DiagnosticReport, got %q", envelope.ResourceType))
	}
	res, err := p.codec.decode(data)
	if err != nil {
		return nil, fhir.NewInvalidRequestError(fmt.Sprintf("invalid DiagnosticReport body: %v", err))
	}
	return res, nil
}

func readBody(c echo.Context) ([]byte, error) {
	data, err := io.ReadAll(c.Request().Body)
	var tooLarge *echo.HTTPError
	if errors.As(err, &tooLarge) {
		return nil, tooLarge
	}
	if err != nil {
		return nil, fhir.NewInvalidRequestError(fmt.Sprintf("read request body: %v", err))
	}
	if len(data) == 0 {
		return nil, fhir.NewInvalidRequestError("request body is empty")
	}
	return data, nil
}

// DiagnosticReportFhirResourceProvider serves R4 DiagnosticReports.
type DiagnosticReportFhirResourceProvider struct {
	routes diagnosticReportRoutes
}

func NewDiagnosticReportFhirResourceProvider(svc *DiagnosticReportService, baseURL string) *DiagnosticReportFhirResourceProvider {
	return &DiagnosticReportFhirResourceProvider{routes: diagnosticReportRoutes{svc: svc, baseURL: baseURL, codec: r4Codec}}
}

func (p *DiagnosticReportFhirResourceProvider) ResourceType() string         { return "DiagnosticReport" }
func (p *DiagnosticReportFhirResourceProvider) FHIRVersion() fhir.Version    { return fhir.VersionR4 }
func (p *DiagnosticReportFhirResourceProvider) RegisterRoutes(g *echo.Group) { p.routes.register(g) }
func (p *DiagnosticReportFhirResourceProvider) SearchParams() []fhir.SearchParam {
	return diagnosticReportSearchParams
}
func (p *DiagnosticReportFhirResourceProvider) Interactions() []string {
	return diagnosticReportInteractions
}

// DiagnosticReportFhirResourceProviderR3 serves the same reports in STU3 form.
type DiagnosticReportFhirResourceProviderR3 struct {
	routes diagnosticReportRoutes
}

func NewDiagnosticReportFhirResourceProviderR3(svc *DiagnosticReportService, baseURL string) *DiagnosticReportFhirResourceProviderR3 {
	return &DiagnosticReportFhirResourceProviderR3{routes: diagnosticReportRoutes{svc: svc, baseURL: baseURL, codec: r3Codec}}
}

func (p *DiagnosticReportFhirResourceProviderR3) ResourceType() string         { return "DiagnosticReport" }
func (p *DiagnosticReportFhirResourceProviderR3) FHIRVersion() fhir.Version    { return fhir.VersionR3 }
func (p *DiagnosticReportFhirResourceProviderR3) RegisterRoutes(g *echo.Group) { p.routes.register(g) }
func (p *DiagnosticReportFhirResourceProviderR3) SearchParams() []fhir.SearchParam {
	return diagnosticReportSearchParams
}
func (p *DiagnosticReportFhirResourceProviderR3) Interactions() []string {
	return diagnosticReportInteractions
}
