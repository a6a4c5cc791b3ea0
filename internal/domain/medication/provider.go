package medication

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/ehr/fhir2/internal/platform/fhir"
	"github.com/ehr/fhir2/pkg/pagination"
)

// MedicationRequestFhirResourceProvider serves R4 MedicationRequest reads and
// searches.
type MedicationRequestFhirResourceProvider struct {
	svc     *MedicationRequestService
	baseURL string
}

func NewMedicationRequestFhirResourceProvider(svc *MedicationRequestService, baseURL string) *MedicationRequestFhirResourceProvider {
	return &MedicationRequestFhirResourceProvider{svc: svc, baseURL: baseURL}
}

func (p *MedicationRequestFhirResourceProvider) ResourceType() string { return "MedicationRequest" }

func (p *MedicationRequestFhirResourceProvider) FHIRVersion() fhir.Version { return fhir.VersionR4 }

func (p *MedicationRequestFhirResourceProvider) RegisterRoutes(g *echo.Group) {
	g.GET("/MedicationRequest", p.Search)
	g.POST("/MedicationRequest/_search", p.Search)
	g.GET("/MedicationRequest/:id", p.Read)
}

func (p *MedicationRequestFhirResourceProvider) SearchParams() []fhir.SearchParam {
	return []fhir.SearchParam{
		{Name: "_id", Type: "token"},
		{Name: "_lastUpdated", Type: "date"},
		{Name: "patient", Type: "reference"},
		{Name: "subject", Type: "reference"},
		{Name: "encounter", Type: "reference"},
		{Name: "requester", Type: "reference"},
		{Name: "medication", Type: "reference"},
		{Name: "code", Type: "token"},
		{Name: "status", Type: "token"},
		{Name: "authoredon", Type: "date"},
	}
}

func (p *MedicationRequestFhirResourceProvider) Read(c echo.Context) error {
	mr, err := p.svc.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, mr)
}

func (p *MedicationRequestFhirResourceProvider) Search(c echo.Context) error {
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
		resources[i] = item
	}
	return c.JSON(http.StatusOK, fhir.NewSearchBundle(resources, fhir.SearchBundleParams{
		BaseURL: p.baseURL + "/MedicationRequest",
		Query:   pagination.Values(c),
		Count:   pg.Limit,
		Offset:  pg.Offset,
		Total:   total,
	}))
}
