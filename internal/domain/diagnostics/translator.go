package diagnostics

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

// ConceptTranslator converts report codes.
type ConceptTranslator interface {
	ToFHIR(ctx context.Context, c *concept.Concept) *fhir.CodeableConcept
	ToHost(ctx context.Context, cc *fhir.CodeableConcept) *concept.Concept
	Get(ctx context.Context, uuid string) *concept.Concept
}

// labCategory is the v2-0074 section every stored report belongs to.
const labCategory = "LAB"

type DiagnosticReportTranslator struct {
	concepts    ConceptTranslator
	terminology *fhir.Terminology
	logger      zerolog.Logger
}

func NewDiagnosticReportTranslator(concepts ConceptTranslator, terminology *fhir.Terminology, logger zerolog.Logger) *DiagnosticReportTranslator {
	return &DiagnosticReportTranslator{
		concepts:    concepts,
		terminology: terminology,
		logger:      logger.With().Str("component", "diagnosticReportTranslator").Logger(),
	}
}

func (t *DiagnosticReportTranslator) ToFHIR(ctx context.Context, r *DiagnosticReport) *fhir.DiagnosticReport {
	if r == nil {
		return nil
	}

	lastUpdated := r.LastUpdated()
	out := &fhir.DiagnosticReport{
		ResourceType: "DiagnosticReport",
		ID:           r.UUID,
		Meta:         &fhir.Meta{LastUpdated: &lastUpdated},
		Status:       r.Status,
		Category:     []fhir.CodeableConcept{t.category()},
		Subject:      fhir.NewReference("Patient", r.PatientUUID),
		Encounter:    fhir.NewReference("Encounter", r.EncounterUUID),
		Issued:       r.Issued,
		Conclusion:   r.Conclusion,
	}
	if r.Code != nil {
		code := r.Code
		if code.Name == "" && code.UUID != "" {
			if full := t.concepts.Get(ctx, code.UUID); full != nil {
				code = full
			}
		}
		out.Code = t.concepts.ToFHIR(ctx, code)
	}
	for _, p := range r.Performers {
		out.Performer = append(out.Performer, *fhir.NewReference("Practitioner", p))
	}
	for _, o := range r.Results {
		out.Result = append(out.Result, *fhir.NewReference("Observation", o))
	}
	return out
}

func (t *DiagnosticReportTranslator) category() fhir.CodeableConcept {
	coding := fhir.Coding{System: fhir.SystemDiagnosticServiceSection, Code: labCategory}
	if t.terminology != nil {
		coding = t.terminology.Coding(fhir.SystemDiagnosticServiceSection, labCategory)
	}
	return fhir.CodeableConcept{Coding: []fhir.Coding{coding}}
}

// ToHost applies res to existing, or to a new report when existing is nil.
// References of the wrong type and codes that match no concept are rejected.
func (t *DiagnosticReportTranslator) ToHost(ctx context.Context, existing *DiagnosticReport, res *fhir.DiagnosticReport) (*DiagnosticReport, error) {
	if res == nil {
		return nil, fhir.NewInvalidRequestError("DiagnosticReport resource is required")
	}
	// a new report gets its uuid from the server, never from res.ID
	r := &DiagnosticReport{}
	if existing != nil {
		copied := *existing
		r = &copied
	}

	r.Status = res.Status
	r.Issued = res.Issued
	r.Conclusion = res.Conclusion

	r.Code = nil
	if res.Code != nil {
		c := t.concepts.ToHost(ctx, res.Code)
		if c == nil {
			return nil, fhir.NewInvalidRequestError("DiagnosticReport.code does not match any known concept")
		}
		r.Code = c
	}

	var err error
	if r.PatientUUID, err = referenceUUID(res.Subject, "Patient", "subject"); err != nil {
		return nil, err
	}
	if r.EncounterUUID, err = referenceUUID(res.Encounter, "Encounter", "encounter"); err != nil {
		return nil, err
	}

	r.Performers = nil
	for i := range res.Performer {
		id, err := referenceUUID(&res.Performer[i], "Practitioner", "performer")
		if err != nil {
			return nil, err
		}
		r.Performers = append(r.Performers, id)
	}
	r.Results = nil
	for i := range res.Result {
		id, err := referenceUUID(&res.Result[i], "Observation", "result")
		if err != nil {
			return nil, err
		}
		r.Results = append(r.Results, id)
	}
	return r, nil
}

func referenceUUID(ref *fhir.Reference, resourceType, element string) (string, error) {
	if ref == nil || ref.Reference == "" {
		return "", nil
	}
	id, ok := fhir.ReferenceID(ref, resourceType)
	if !ok {
		return "", fhir.NewInvalidRequestError(fmt.Sprintf(
			"DiagnosticReport.%s must reference a %s, got %q", element, resourceType, ref.Reference))
	}
	return id, nil
}
