package fhir

import "time"

// DiagnosticReportSTU3 is the STU3 wire form of DiagnosticReport.
type DiagnosticReportSTU3 struct {
	ResourceType   string                          `json:"resourceType"`
	ID             string                          `json:"id,omitempty"`
	Meta           *Meta                           `json:"meta,omitempty"`
	Identifier     []Identifier                    `json:"identifier,omitempty"`
	Status         string                          `json:"status,omitempty"`
	Category       *CodeableConcept                `json:"category,omitempty"`
	Code           *CodeableConcept                `json:"code,omitempty"`
	Subject        *Reference                      `json:"subject,omitempty"`
	Context        *Reference                      `json:"context,omitempty"`
	Issued         *time.Time                      `json:"issued,omitempty"`
	Performer      []DiagnosticReportPerformerSTU3 `json:"performer,omitempty"`
	Result         []Reference                     `json:"result,omitempty"`
	Conclusion     string                          `json:"conclusion,omitempty"`
	CodedDiagnosis []CodeableConcept               `json:"codedDiagnosis,omitempty"`
}

func (r *DiagnosticReportSTU3) GetResourceType() string { return "DiagnosticReport" }
func (r *DiagnosticReportSTU3) GetID() string           { return r.ID }

type DiagnosticReportPerformerSTU3 struct {
	Role  *CodeableConcept `json:"role,omitempty"`
	Actor Reference        `json:"actor"`
}

// DiagnosticReportToSTU3 converts an R4 report. Only the first category
// survives because STU3 allows one.
func DiagnosticReportToSTU3(r *DiagnosticReport) *DiagnosticReportSTU3 {
	if r == nil {
		return nil
	}
	out := &DiagnosticReportSTU3{
		ResourceType:   "DiagnosticReport",
		ID:             r.ID,
		Meta:           r.Meta,
		Identifier:     r.Identifier,
		Status:         r.Status,
		Code:           r.Code,
		Subject:        r.Subject,
		Context:        r.Encounter,
		Issued:         r.Issued,
		Result:         r.Result,
		Conclusion:     r.Conclusion,
		CodedDiagnosis: r.ConclusionCode,
	}
	if len(r.Category) > 0 {
		cat := r.Category[0]
		out.Category = &cat
	}
	for _, p := range r.Performer {
		out.Performer = append(out.Performer, DiagnosticReportPerformerSTU3{Actor: p})
	}
	return out
}

// DiagnosticReportFromSTU3 converts an STU3 report to R4. Performer roles are
// dropped because R4 has no equivalent.
func DiagnosticReportFromSTU3(r *DiagnosticReportSTU3) *DiagnosticReport {
	if r == nil {
		return nil
	}
	out := &DiagnosticReport{
		ResourceType:   "DiagnosticReport",
		ID:             r.ID,
		Meta:           r.Meta,
		Identifier:     r.Identifier,
		Status:         r.Status,
		Code:           r.Code,
		Subject:        r.Subject,
		Encounter:      r.Context,
		Issued:         r.Issued,
		Result:         r.Result,
		Conclusion:     r.Conclusion,
		ConclusionCode: r.CodedDiagnosis,
	}
	if r.Category != nil {
		out.Category = []CodeableConcept{*r.Category}
	}
	for _, p := range r.Performer {
		out.Performer = append(out.Performer, p.Actor)
	}
	return out
}
