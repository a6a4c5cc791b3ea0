package fhir

import (
	"time"

	models "github.com/samply/golang-fhir-models/fhir-models/fhir"
)

// Resource is implemented by every typed resource the server returns.
type Resource interface {
	GetResourceType() string
	GetID() string
}

type Meta struct {
	VersionID   string     `json:"versionId,omitempty"`
	LastUpdated *time.Time `json:"lastUpdated,omitempty"`
	Profile     []string   `json:"profile,omitempty"`
}

type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code,omitempty"`
	Display string `json:"display,omitempty"`
}

type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// FirstCoding returns the first coding with the given system, or nil.
func (cc *CodeableConcept) FirstCoding(system string) *Coding {
	if cc == nil {
		return nil
	}
	for i := range cc.Coding {
		if cc.Coding[i].System == system {
			return &cc.Coding[i]
		}
	}
	return nil
}

type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

type Identifier struct {
	Use    string           `json:"use,omitempty"`
	Type   *CodeableConcept `json:"type,omitempty"`
	System string           `json:"system,omitempty"`
	Value  string           `json:"value,omitempty"`
	Period *Period          `json:"period,omitempty"`
}

type Period struct {
	Start *time.Time `json:"start,omitempty"`
	End   *time.Time `json:"end,omitempty"`
}

type Extension struct {
	URL          string `json:"url"`
	ValueString  string `json:"valueString,omitempty"`
	ValueCode    string `json:"valueCode,omitempty"`
	ValueBoolean *bool  `json:"valueBoolean,omitempty"`
	ValueInteger *int   `json:"valueInteger,omitempty"`
}

type Quantity struct {
	Value  *float64 `json:"value,omitempty"`
	Unit   string   `json:"unit,omitempty"`
	System string   `json:"system,omitempty"`
	Code   string   `json:"code,omitempty"`
}

type Annotation struct {
	Text string     `json:"text"`
	Time *time.Time `json:"time,omitempty"`
}

// DiagnosticReport is the R4 DiagnosticReport subset the server reads and writes.
type DiagnosticReport struct {
	ResourceType   string            `json:"resourceType"`
	ID             string            `json:"id,omitempty"`
	Meta           *Meta             `json:"meta,omitempty"`
	Identifier     []Identifier      `json:"identifier,omitempty"`
	Status         string            `json:"status,omitempty"`
	Category       []CodeableConcept `json:"category,omitempty"`
	Code           *CodeableConcept  `json:"code,omitempty"`
	Subject        *Reference        `json:"subject,omitempty"`
	Encounter      *Reference        `json:"encounter,omitempty"`
	Issued         *time.Time        `json:"issued,omitempty"`
	Performer      []Reference       `json:"performer,omitempty"`
	Result         []Reference       `json:"result,omitempty"`
	Conclusion     string            `json:"conclusion,omitempty"`
	ConclusionCode []CodeableConcept `json:"conclusionCode,omitempty"`
}

func (r *DiagnosticReport) GetResourceType() string { return "DiagnosticReport" }
func (r *DiagnosticReport) GetID() string           { return r.ID }

// MedicationRequest is the R4 MedicationRequest subset built from host drug orders.
type MedicationRequest struct {
	ResourceType              string                            `json:"resourceType"`
	ID                        string                            `json:"id,omitempty"`
	Meta                      *Meta                             `json:"meta,omitempty"`
	Status                    string                            `json:"status"`
	Intent                    string                            `json:"intent"`
	Category                  []CodeableConcept                 `json:"category,omitempty"`
	Priority                  *models.RequestPriority           `json:"priority,omitempty"`
	MedicationCodeableConcept *CodeableConcept                  `json:"medicationCodeableConcept,omitempty"`
	Subject                   *Reference                        `json:"subject,omitempty"`
	Encounter                 *Reference                        `json:"encounter,omitempty"`
	AuthoredOn                *time.Time                        `json:"authoredOn,omitempty"`
	Requester                 *Reference                        `json:"requester,omitempty"`
	Note                      []Annotation                      `json:"note,omitempty"`
	DosageInstruction         []Dosage                          `json:"dosageInstruction,omitempty"`
	DispenseRequest           *MedicationRequestDispenseRequest `json:"dispenseRequest,omitempty"`
}

func (r *MedicationRequest) GetResourceType() string { return "MedicationRequest" }
func (r *MedicationRequest) GetID() string           { return r.ID }

type MedicationRequestDispenseRequest struct {
	NumberOfRepeatsAllowed *int      `json:"numberOfRepeatsAllowed,omitempty"`
	Quantity               *Quantity `json:"quantity,omitempty"`
}

type Dosage struct {
	Text            string              `json:"text,omitempty"`
	AsNeededBoolean *bool               `json:"asNeededBoolean,omitempty"`
	Route           *CodeableConcept    `json:"route,omitempty"`
	Timing          *Timing             `json:"timing,omitempty"`
	DoseAndRate     []DosageDoseAndRate `json:"doseAndRate,omitempty"`
}

type DosageDoseAndRate struct {
	DoseQuantity *Quantity `json:"doseQuantity,omitempty"`
}

type Timing struct {
	Repeat *TimingRepeat    `json:"repeat,omitempty"`
	Code   *CodeableConcept `json:"code,omitempty"`
}

type TimingRepeat struct {
	Duration     *float64     `json:"duration,omitempty"`
	DurationUnit *UnitsOfTime `json:"durationUnit,omitempty"`
}

// OperationOutcome represents a FHIR OperationOutcome for errors.
type OperationOutcome struct {
	ResourceType string                  `json:"resourceType"`
	Issue        []OperationOutcomeIssue `json:"issue"`
}

type OperationOutcomeIssue struct {
	Severity    string           `json:"severity"`
	Code        string           `json:"code"`
	Details     *CodeableConcept `json:"details,omitempty"`
	Diagnostics string           `json:"diagnostics,omitempty"`
	Expression  []string         `json:"expression,omitempty"`
}

func NewOperationOutcome(severity, code, diagnostics string) *OperationOutcome {
	return &OperationOutcome{
		ResourceType: "OperationOutcome",
		Issue: []OperationOutcomeIssue{
			{
				Severity:    severity,
				Code:        code,
				Diagnostics: diagnostics,
			},
		},
	}
}

// FormatReference creates a FHIR reference string.
func FormatReference(resourceType, id string) string {
	return resourceType + "/" + id
}

// NewReference returns a reference to resourceType/id, or nil when id is empty.
func NewReference(resourceType, id string) *Reference {
	if id == "" {
		return nil
	}
	return &Reference{Reference: FormatReference(resourceType, id), Type: resourceType}
}

// ReferenceID returns the id part of a "Type/id" reference and whether the
// type matched. An empty resourceType accepts any type.
func ReferenceID(ref *Reference, resourceType string) (string, bool) {
	if ref == nil || ref.Reference == "" {
		return "", false
	}
	value := ref.Reference
	for i := len(value) - 1; i >= 0; i-- {
		if value[i] == '/' {
			if resourceType != "" && value[:i] != resourceType && !hasSuffixSegment(value[:i], resourceType) {
				return "", false
			}
			return value[i+1:], value[i+1:] != ""
		}
	}
	if resourceType != "" && ref.Type != "" && ref.Type != resourceType {
		return "", false
	}
	return value, true
}

// hasSuffixSegment matches absolute references such as
// "http://host/fhir/Patient" against "Patient".
func hasSuffixSegment(prefix, segment string) bool {
	n := len(prefix) - len(segment)
	return n > 0 && prefix[n-1] == '/' && prefix[n:] == segment
}
