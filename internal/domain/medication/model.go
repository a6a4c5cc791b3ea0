package medication

import (
	"time"

	"github.com/ehr/fhir2/internal/domain/concept"
)

// Order actions and urgencies as the host records them.
const (
	ActionNew         = "NEW"
	ActionRevise      = "REVISE"
	ActionDiscontinue = "DISCONTINUE"

	UrgencyRoutine         = "ROUTINE"
	UrgencyStat            = "STAT"
	UrgencyOnScheduledDate = "ON_SCHEDULED_DATE"

	CareSettingOutpatient = "OUTPATIENT"
	CareSettingInpatient  = "INPATIENT"
)

// DrugOrder is a host medication order. Concept fields carry at least the
// concept uuid; names and mappings are filled in on translation.
type DrugOrder struct {
	ID                 int64
	UUID               string
	PatientUUID        string
	EncounterUUID      string
	OrdererUUID        string
	Drug               *concept.Concept
	Dose               *float64
	DoseUnits          *concept.Concept
	Route              *concept.Concept
	Frequency          string
	AsNeeded           bool
	Duration           *int
	DurationUnits      *concept.Concept
	Quantity           *float64
	QuantityUnits      *concept.Concept
	NumRefills         *int
	DosingInstructions string
	Instructions       string
	Action             string
	Urgency            string
	CareSetting        string
	DateActivated      *time.Time
	AutoExpireDate     *time.Time
	DateStopped        *time.Time
	Voided             bool
	DateCreated        time.Time
	DateChanged        *time.Time
}

// IsExpired reports whether the order ran past its auto-expire date at now.
func (o *DrugOrder) IsExpired(now time.Time) bool {
	return o.AutoExpireDate != nil && !o.AutoExpireDate.After(now)
}

// LastUpdated is the change date, or the creation date for unchanged orders.
func (o *DrugOrder) LastUpdated() time.Time {
	if o.DateChanged != nil {
		return *o.DateChanged
	}
	return o.DateCreated
}
