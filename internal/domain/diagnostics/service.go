package diagnostics

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"github.com/google/uuid"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

// auditUser is recorded as creator and changer of reports written over FHIR.
const auditUser = "fhir2"

var diagnosticReportInvariants = []fhir.Invariant{
	{Key: "dr-code", Expression: "code.exists()", Human: "DiagnosticReport.code is required"},
	{Key: "dr-subject", Expression: "subject.exists()", Human: "DiagnosticReport.subject is required"},
	{Key: "dr-status", Expression: "status.exists()", Human: "DiagnosticReport.status is required"},
}

type DiagnosticReportService struct {
	reports     DiagnosticReportRepository
	translator  *DiagnosticReportTranslator
	terminology *fhir.Terminology
}

func NewDiagnosticReportService(reports DiagnosticReportRepository, translator *DiagnosticReportTranslator, terminology *fhir.Terminology) *DiagnosticReportService {
	return &DiagnosticReportService{reports: reports, translator: translator, terminology: terminology}
}

func (s *DiagnosticReportService) Get(ctx context.Context, id string) (*fhir.DiagnosticReport, error) {
	r, err := s.reports.GetByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load diagnostic report: %w", err)
	}
	if r == nil {
		return nil, fhir.NewResourceNotFoundError("DiagnosticReport", id)
	}
	return s.translator.ToFHIR(ctx, r), nil
}

func (s *DiagnosticReportService) Search(ctx context.Context, params map[string]string, limit, offset int) ([]*fhir.DiagnosticReport, int, error) {
	if status, ok := params["status"]; ok && !s.validStatus(status) {
		return nil, 0, fhir.NewInvalidRequestError(fmt.Sprintf("unknown DiagnosticReport status %q", status))
	}

	params, ok := s.resolveCode(ctx, params)
	if !ok {
		return []*fhir.DiagnosticReport{}, 0, nil
	}

	reports, total, err := s.reports.Search(ctx, params, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("search diagnostic reports: %w", err)
	}
	out := make([]*fhir.DiagnosticReport, 0, len(reports))
	for _, r := range reports {
		out = append(out, s.translator.ToFHIR(ctx, r))
	}
	return out, total, nil
}

// Create stores res under a new server-assigned id and returns the stored
// representation. An id carried by res is ignored.
func (s *DiagnosticReportService) Create(ctx context.Context, res *fhir.DiagnosticReport) (*fhir.DiagnosticReport, error) {
	if err := s.validate(res); err != nil {
		return nil, err
	}
	r, err := s.translator.ToHost(ctx, nil, res)
	if err != nil {
		return nil, err
	}
	r.UUID = uuid.NewString()
	r.Creator = auditUser
	if err := s.reports.Create(ctx, r); err != nil {
		return nil, err
	}
	return s.translator.ToFHIR(ctx, r), nil
}

// Update replaces the report id with res. Update never creates: an unknown id
// is rejected with 405.
func (s *DiagnosticReportService) Update(ctx context.Context, id string, res *fhir.DiagnosticReport) (*fhir.DiagnosticReport, error) {
	if res == nil || res.ID == "" {
		return nil, fhir.NewInvalidRequestError("DiagnosticReport resource is missing id")
	}
	if res.ID != id {
		return nil, fhir.NewInvalidRequestError(fmt.Sprintf(
			"DiagnosticReport id %s does not match resource id %s", id, res.ID))
	}
	if err := s.validate(res); err != nil {
		return nil, err
	}

	existing, err := s.reports.GetByUUID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load diagnostic report: %w", err)
	}
	if existing == nil {
		return nil, unknownForUpdate(id)
	}

	r, err := s.translator.ToHost(ctx, existing, res)
	if err != nil {
		return nil, err
	}
	r.ChangedBy = auditUser
	if err := s.reports.Update(ctx, r); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, unknownForUpdate(id)
		}
		return nil, err
	}
	return s.translator.ToFHIR(ctx, r), nil
}

func (s *DiagnosticReportService) Delete(ctx context.Context, id string) error {
	found, err := s.reports.Delete(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return fhir.NewResourceNotFoundError("DiagnosticReport", id)
	}
	return nil
}

func (s *DiagnosticReportService) validate(res *fhir.DiagnosticReport) error {
	if res == nil {
		return fhir.NewInvalidRequestError("DiagnosticReport resource is required")
	}
	if issues := fhir.CheckInvariants(res, diagnosticReportInvariants); len(issues) > 0 {
		return fhir.NewUnprocessableEntityError("DiagnosticReport failed validation", issues...)
	}
	if !s.validStatus(res.Status) {
		return fhir.NewUnprocessableEntityError(fmt.Sprintf("unknown DiagnosticReport status %q", res.Status))
	}
	return nil
}

func (s *DiagnosticReportService) validStatus(status string) bool {
	return s.terminology == nil || s.terminology.Validate(fhir.SystemDiagnosticReportStatus, status)
}

func unknownForUpdate(id string) error {
	return fhir.NewMethodNotAllowedError(fmt.Sprintf(
		"DiagnosticReport/%s does not exist and update cannot create it", id))
}

// resolveCode rewrites the code parameter to the uuid of the concept it
// denotes. ok is false when no concept matches.
func (s *DiagnosticReportService) resolveCode(ctx context.Context, params map[string]string) (map[string]string, bool) {
	token, found := params["code"]
	if !found {
		return params, true
	}
	uuid, ok := concept.ResolveToken(ctx, s.translator.concepts, token)
	if !ok {
		return nil, false
	}
	out := maps.Clone(params)
	out["code"] = uuid
	return out, true
}
