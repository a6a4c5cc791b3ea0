package diagnostics

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

const (
	reportUUID    = "bdd7e368-3d1a-42a9-9538-395391b64adf"
	wrongUUID     = "df34a1c1-f57b-4c33-bee5-e601b56b9d5b"
	patientUUID   = "5946f880-b197-400b-9caa-a3c661d23041"
	cd4UUID       = "5497AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	loincSystem   = "http://loinc.org"
	cd4LoincCode  = "24467-3"
	observationID = "obs-1"
)

type mockConcepts struct{}

func (mockConcepts) Get(ctx context.Context, uuid string) *concept.Concept {
	if uuid == cd4UUID {
		return &concept.Concept{UUID: cd4UUID, Name: "CD4 COUNT"}
	}
	return nil
}

func (mockConcepts) ToFHIR(ctx context.Context, c *concept.Concept) *fhir.CodeableConcept {
	if c == nil {
		return nil
	}
	return &fhir.CodeableConcept{Text: c.Name, Coding: []fhir.Coding{{Code: c.UUID, Display: c.Name}}}
}

func (m mockConcepts) ToHost(ctx context.Context, cc *fhir.CodeableConcept) *concept.Concept {
	if cc == nil {
		return nil
	}
	for _, coding := range cc.Coding {
		if coding.System == loincSystem && coding.Code == cd4LoincCode {
			return m.Get(ctx, cd4UUID)
		}
		if coding.System == "" {
			if c := m.Get(ctx, coding.Code); c != nil {
				return c
			}
		}
	}
	return nil
}

type mockReportRepo struct {
	reports   map[string]*DiagnosticReport
	nextID    int64
	err       error
	lastQuery map[string]string
}

func newMockReportRepo(reports ...*DiagnosticReport) *mockReportRepo {
	m := &mockReportRepo{reports: map[string]*DiagnosticReport{}}
	for _, r := range reports {
		m.reports[r.UUID] = r
	}
	return m
}

func (m *mockReportRepo) GetByUUID(ctx context.Context, id string) (*DiagnosticReport, error) {
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.reports[id]
	if !ok || r.Voided {
		return nil, nil
	}
	copied := *r
	return &copied, nil
}

func (m *mockReportRepo) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*DiagnosticReport, int, error) {
	m.lastQuery = params
	if m.err != nil {
		return nil, 0, m.err
	}
	var out []*DiagnosticReport
	for _, r := range m.reports {
		if r.Voided {
			continue
		}
		if p, ok := params["patient"]; ok && !strings.HasSuffix(p, r.PatientUUID) {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, len(out), nil
}

func (m *mockReportRepo) Create(ctx context.Context, r *DiagnosticReport) error {
	if m.err != nil {
		return m.err
	}
	m.nextID++
	r.ID = m.nextID
	if r.UUID == "" {
		r.UUID = fmt.Sprintf("generated-%d", r.ID)
	}
	r.DateCreated = time.Now()
	copied := *r
	m.reports[r.UUID] = &copied
	return nil
}

func (m *mockReportRepo) Update(ctx context.Context, r *DiagnosticReport) error {
	if m.err != nil {
		return m.err
	}
	if _, ok := m.reports[r.UUID]; !ok {
		return fmt.Errorf("update: %w", ErrNotFound)
	}
	now := time.Now()
	r.DateChanged = &now
	copied := *r
	m.reports[r.UUID] = &copied
	return nil
}

func (m *mockReportRepo) Delete(ctx context.Context, id string) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	r, ok := m.reports[id]
	if !ok || r.Voided {
		return false, nil
	}
	r.Voided = true
	return true, nil
}

func sampleReport() *DiagnosticReport {
	issued := time.Date(2024, 2, 10, 8, 30, 0, 0, time.UTC)
	return &DiagnosticReport{
		ID:            1,
		UUID:          reportUUID,
		Status:        "final",
		Code:          &concept.Concept{UUID: cd4UUID},
		PatientUUID:   patientUUID,
		EncounterUUID: "enc-1",
		Issued:        &issued,
		Performers:    []string{"prov-1"},
		Results:       []string{observationID},
		Conclusion:    "normal",
		Creator:       "admin",
		DateCreated:   issued,
	}
}

func sampleResource() *fhir.DiagnosticReport {
	return &fhir.DiagnosticReport{
		ResourceType: "DiagnosticReport",
		Status:       "preliminary",
		Code:         &fhir.CodeableConcept{Coding: []fhir.Coding{{System: loincSystem, Code: cd4LoincCode}}},
		Subject:      &fhir.Reference{Reference: "Patient/" + patientUUID},
		Result:       []fhir.Reference{{Reference: "Observation/" + observationID}},
		Conclusion:   "pending review",
	}
}

func newTestTranslator(t *testing.T) *DiagnosticReportTranslator {
	t.Helper()
	terminology, err := fhir.LoadTerminology()
	require.NoError(t, err)
	return NewDiagnosticReportTranslator(mockConcepts{}, terminology, zerolog.Nop())
}

func newTestService(t *testing.T, repo *mockReportRepo) *DiagnosticReportService {
	t.Helper()
	tr := newTestTranslator(t)
	return NewDiagnosticReportService(repo, tr, tr.terminology)
}
