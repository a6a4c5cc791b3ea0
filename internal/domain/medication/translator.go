package medication

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	models "github.com/samply/golang-fhir-models/fhir-models/fhir"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

// now is replaced in tests.
var now = time.Now

// DurationUnitLookup finds the FHIR unit of time mapped to a concept.
type DurationUnitLookup interface {
	GetDurationUnit(ctx context.Context, conceptUUID string) *fhir.UnitsOfTime
}

// ConceptTranslator converts host concepts for embedding in resources.
type ConceptTranslator interface {
	ToFHIR(ctx context.Context, c *concept.Concept) *fhir.CodeableConcept
	ToHost(ctx context.Context, cc *fhir.CodeableConcept) *concept.Concept
	Get(ctx context.Context, uuid string) *concept.Concept
}

// DurationUnitTranslator maps an order's duration units to Timing.UnitsOfTime.
type DurationUnitTranslator struct {
	units DurationUnitLookup
}

func NewDurationUnitTranslator(units DurationUnitLookup) *DurationUnitTranslator {
	return &DurationUnitTranslator{units: units}
}

// ToFHIR returns nil when the order has no duration units concept.
func (t *DurationUnitTranslator) ToFHIR(ctx context.Context, order *DrugOrder) *fhir.UnitsOfTime {
	if order == nil || order.DurationUnits == nil || order.DurationUnits.UUID == "" {
		return nil
	}
	return t.units.GetDurationUnit(ctx, order.DurationUnits.UUID)
}

// MedicationRequestTranslator builds MedicationRequest resources from drug
// orders.
type MedicationRequestTranslator struct {
	concepts    ConceptTranslator
	durations   *DurationUnitTranslator
	terminology *fhir.Terminology
	logger      zerolog.Logger
}

func NewMedicationRequestTranslator(concepts ConceptTranslator, durations *DurationUnitTranslator, terminology *fhir.Terminology, logger zerolog.Logger) *MedicationRequestTranslator {
	return &MedicationRequestTranslator{
		concepts:    concepts,
		durations:   durations,
		terminology: terminology,
		logger:      logger.With().Str("component", "medicationRequestTranslator").Logger(),
	}
}

func (t *MedicationRequestTranslator) ToFHIR(ctx context.Context, order *DrugOrder) *fhir.MedicationRequest {
	if order == nil {
		return nil
	}

	lastUpdated := order.LastUpdated()
	mr := &fhir.MedicationRequest{
		ResourceType:              "MedicationRequest",
		ID:                        order.UUID,
		Meta:                      &fhir.Meta{LastUpdated: &lastUpdated},
		Status:                    Status(order, now()),
		Intent:                    models.RequestIntentOrder.Code(),
		Priority:                  Priority(order.Urgency),
		MedicationCodeableConcept: t.codeable(ctx, order.Drug),
		Subject:                   fhir.NewReference("Patient", order.PatientUUID),
		Encounter:                 fhir.NewReference("Encounter", order.EncounterUUID),
		Requester:                 fhir.NewReference("Practitioner", order.OrdererUUID),
		AuthoredOn:                order.DateActivated,
	}

	if category := t.category(order.CareSetting); category != nil {
		mr.Category = []fhir.CodeableConcept{*category}
	}
	if order.Instructions != "" {
		mr.Note = []fhir.Annotation{{Text: order.Instructions}}
	}
	mr.DosageInstruction = []fhir.Dosage{t.dosage(ctx, order)}

	if order.Quantity != nil || order.NumRefills != nil {
		mr.DispenseRequest = &fhir.MedicationRequestDispenseRequest{
			NumberOfRepeatsAllowed: order.NumRefills,
			Quantity:               t.quantity(ctx, order.Quantity, order.QuantityUnits),
		}
	}
	return mr
}

func (t *MedicationRequestTranslator) dosage(ctx context.Context, order *DrugOrder) fhir.Dosage {
	asNeeded := order.AsNeeded
	d := fhir.Dosage{
		Text:            order.DosingInstructions,
		AsNeededBoolean: &asNeeded,
		Route:           t.codeable(ctx, order.Route),
	}
	if dose := t.quantity(ctx, order.Dose, order.DoseUnits); dose != nil {
		d.DoseAndRate = []fhir.DosageDoseAndRate{{DoseQuantity: dose}}
	}

	timing := &fhir.Timing{}
	if order.Frequency != "" {
		timing.Code = &fhir.CodeableConcept{
			Coding: []fhir.Coding{{Code: order.Frequency}},
			Text:   order.Frequency,
		}
	}
	unit := t.durations.ToFHIR(ctx, order)
	if order.Duration != nil || unit != nil {
		repeat := &fhir.TimingRepeat{DurationUnit: unit}
		if order.Duration != nil {
			v := float64(*order.Duration)
			repeat.Duration = &v
		}
		timing.Repeat = repeat
	}
	if timing.Code != nil || timing.Repeat != nil {
		d.Timing = timing
	}
	return d
}

func (t *MedicationRequestTranslator) quantity(ctx context.Context, value *float64, units *concept.Concept) *fhir.Quantity {
	if value == nil {
		return nil
	}
	q := &fhir.Quantity{Value: value}
	if units != nil && units.UUID != "" {
		q.Code = units.UUID
		if c := t.hydrate(ctx, units); c != nil {
			q.Unit = c.Name
		}
	}
	return q
}

func (t *MedicationRequestTranslator) codeable(ctx context.Context, c *concept.Concept) *fhir.CodeableConcept {
	return t.concepts.ToFHIR(ctx, t.hydrate(ctx, c))
}

// hydrate loads names and mappings for a concept known only by uuid.
func (t *MedicationRequestTranslator) hydrate(ctx context.Context, c *concept.Concept) *concept.Concept {
	if c == nil || c.UUID == "" || c.Name != "" {
		return c
	}
	if full := t.concepts.Get(ctx, c.UUID); full != nil {
		return full
	}
	return c
}

func (t *MedicationRequestTranslator) category(careSetting string) *fhir.CodeableConcept {
	var code string
	switch careSetting {
	case CareSettingInpatient:
		code = "inpatient"
	case CareSettingOutpatient:
		code = "outpatient"
	default:
		return nil
	}
	coding := fhir.Coding{System: fhir.SystemMedicationRequestCategory, Code: code}
	if t.terminology != nil {
		coding = t.terminology.Coding(fhir.SystemMedicationRequestCategory, code)
	}
	return &fhir.CodeableConcept{Coding: []fhir.Coding{coding}}
}

// Status derives MedicationRequest.status from the order state at now.
func Status(order *DrugOrder, now time.Time) string {
	switch {
	case order.Voided:
		return "entered-in-error"
	case order.DateStopped != nil:
		return "stopped"
	case order.IsExpired(now):
		return "completed"
	default:
		return "active"
	}
}

// Priority maps an order urgency to MedicationRequest.priority; unknown
// urgencies have no priority.
func Priority(urgency string) *models.RequestPriority {
	var p models.RequestPriority
	switch urgency {
	case UrgencyRoutine, UrgencyOnScheduledDate:
		p = models.RequestPriorityRoutine
	case UrgencyStat:
		p = models.RequestPriorityStat
	default:
		return nil
	}
	return &p
}
