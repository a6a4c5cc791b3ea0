package mapping

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func newTestHandler(t *testing.T) (*Handler, *echo.Echo) {
	orm := newTestDB(t)
	h := NewHandler(NewDurationUnitMap(orm, zerolog.Nop()), NewConceptSourceMap(orm, zerolog.Nop()))
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return h, e
}

func doRequest(e *echo.Echo, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestHandler_CreateAndRetireDurationUnitMap(t *testing.T) {
	_, e := newTestHandler(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/duration-unit-maps", `{"concept_id":1072,"unit_of_time":"d","creator":"admin"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var created FhirDurationUnitMap
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if created.UUID == "" || created.UnitOfTime != "d" {
		t.Errorf("unexpected body %s", rec.Body.String())
	}

	rec = doRequest(e, http.MethodDelete, "/api/v1/duration-unit-maps/"+created.UUID+"?retired_by=admin&reason=wrong", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/duration-unit-maps", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Total != 0 {
		t.Errorf("expected retired row to be hidden, total=%d", list.Total)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/duration-unit-maps?include_retired=true", "")
	json.Unmarshal(rec.Body.Bytes(), &list)
	if list.Total != 1 {
		t.Errorf("expected 1 row including retired, total=%d", list.Total)
	}
}

func TestHandler_CreateDurationUnitMap_BadRequest(t *testing.T) {
	_, e := newTestHandler(t)

	tests := []struct {
		name string
		body string
	}{
		{"missing concept", `{"unit_of_time":"d","creator":"admin"}`},
		{"missing creator", `{"concept_id":1,"unit_of_time":"d"}`},
		{"unknown unit", `{"concept_id":1,"unit_of_time":"fortnight","creator":"admin"}`},
		{"invalid JSON", `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPost, "/api/v1/duration-unit-maps", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandler_RetireDurationUnitMap_NotFound(t *testing.T) {
	_, e := newTestHandler(t)

	rec := doRequest(e, http.MethodDelete, "/api/v1/duration-unit-maps/"+bogusUUID+"?retired_by=admin", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodDelete, "/api/v1/duration-unit-maps/"+bogusUUID, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without retired_by, got %d", rec.Code)
	}
}

func TestHandler_ConceptSources(t *testing.T) {
	_, e := newTestHandler(t)

	rec := doRequest(e, http.MethodPost, "/api/v1/concept-sources", `{"concept_source_name":"LOINC","url":"http://loinc.org","creator":"admin"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(e, http.MethodPost, "/api/v1/concept-sources", `{"concept_source_name":"CIEL","creator":"admin"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400 without url, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/api/v1/concept-sources", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var list struct {
		Data  []FhirConceptSource `json:"data"`
		Total int                 `json:"total"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if list.Total != 1 || list.Data[0].URL != "http://loinc.org" || list.Data[0].Name != "LOINC" {
		t.Errorf("unexpected list %s", rec.Body.String())
	}
}
