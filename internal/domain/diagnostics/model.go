package diagnostics

import (
	"time"

	"github.com/ehr/fhir2/internal/domain/concept"
)

// DiagnosticReport is a stored report. Code, patient, encounter, performers
// and results refer to host records by uuid.
type DiagnosticReport struct {
	ID            int64
	UUID          string
	Status        string
	Code          *concept.Concept
	PatientUUID   string
	EncounterUUID string
	Issued        *time.Time
	Performers    []string
	Results       []string
	Conclusion    string
	Creator       string
	DateCreated   time.Time
	ChangedBy     string
	DateChanged   *time.Time
	Voided        bool
}

func (r *DiagnosticReport) LastUpdated() time.Time {
	if r.DateChanged != nil {
		return *r.DateChanged
	}
	return r.DateCreated
}

func (r *DiagnosticReport) codeUUID() *string {
	if r.Code == nil || r.Code.UUID == "" {
		return nil
	}
	return &r.Code.UUID
}
