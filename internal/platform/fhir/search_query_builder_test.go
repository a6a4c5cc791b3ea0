package fhir

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

var testConfigs = map[string]SearchParamConfig{
	"patient": {Type: SearchParamReference, Column: "subject_uuid"},
	"code":    {Type: SearchParamToken, Column: "code_uuid"},
	"issued":  {Type: SearchParamDate, Column: "issued"},
	"text":    {Type: SearchParamString, Column: "conclusion"},
}

func TestSearchQuery_ApplyParams(t *testing.T) {
	q := NewSearchQuery("fhir_diagnostic_report", "id, uuid")
	q.Add("voided = $1", false)
	q.ApplyParams(map[string]string{
		"patient":    "Patient/p1",
		"code":       "c1",
		"text:exact": "Normal",
		"unknown":    "ignored",
	}, testConfigs)

	want := "SELECT COUNT(*) FROM fhir_diagnostic_report WHERE 1=1 AND voided = $1 AND code_uuid = $2 AND subject_uuid = $3 AND conclusion = $4"
	if q.CountSQL() != want {
		t.Errorf("unexpected count sql:\n got %s\nwant %s", q.CountSQL(), want)
	}
	if len(q.CountArgs()) != 4 {
		t.Fatalf("expected 4 args, got %d", len(q.CountArgs()))
	}
	if q.CountArgs()[2] != "p1" {
		t.Errorf("expected reference id p1, got %v", q.CountArgs()[2])
	}
}

func TestSearchQuery_DataSQL(t *testing.T) {
	q := NewSearchQuery("t", "a, b")
	q.ApplyParams(map[string]string{"code": "x"}, testConfigs)
	q.ApplySort("-issued,code,bogus", "id", testConfigs)

	want := "SELECT a, b FROM t WHERE 1=1 AND code_uuid = $1 ORDER BY issued DESC, code_uuid ASC LIMIT $2 OFFSET $3"
	if q.DataSQL() != want {
		t.Errorf("unexpected data sql:\n got %s\nwant %s", q.DataSQL(), want)
	}
	args := q.DataArgs(20, 40)
	if len(args) != 3 || args[1] != 20 || args[2] != 40 {
		t.Errorf("unexpected data args %v", args)
	}
}

func TestSearchQuery_ApplySortDefault(t *testing.T) {
	q := NewSearchQuery("t", "a")
	q.ApplySort("", "date_created DESC", testConfigs)
	if q.orderBy != "date_created DESC" {
		t.Errorf("expected default order, got %s", q.orderBy)
	}
}

func TestExtractSearchParams(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/?patient=p1&_count=10&_lastUpdated=ge2024&_sort=issued", nil)
	c := e.NewContext(req, httptest.NewRecorder())

	params := ExtractSearchParams(c)
	if params["patient"] != "p1" {
		t.Errorf("expected patient param, got %v", params)
	}
	if params["_lastUpdated"] != "ge2024" {
		t.Errorf("expected _lastUpdated param, got %v", params)
	}
	if _, ok := params["_count"]; ok {
		t.Error("expected _count to be excluded")
	}
	if _, ok := params["_sort"]; ok {
		t.Error("expected _sort to be excluded")
	}
}
