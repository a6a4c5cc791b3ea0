package medication

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/domain/mapping"
	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

const (
	DrugOrderDaoName                = "drugOrderDao"
	DurationUnitTranslatorName      = "durationUnitTranslator"
	MedicationRequestTranslatorName = "medicationRequestTranslator"
	MedicationRequestServiceName    = "medicationRequestService"
	MedicationRequestProviderName   = "medicationRequestFhirResourceProvider"
)

// Definitions returns the MedicationRequest components. They depend on the
// concept translator and duration unit map contributed by fhir2.
func Definitions() []container.Definition {
	return []container.Definition{
		{
			Name: DrugOrderDaoName, Kind: container.KindDAO, Component: true,
			New: func(r container.Resolver) (any, error) {
				pool, err := container.Get[*pgxpool.Pool](r, container.ParentPool)
				if err != nil {
					return nil, err
				}
				return NewDrugOrderRepoPG(pool), nil
			},
		},
		{
			Name: DurationUnitTranslatorName, Kind: container.KindTranslator, Component: true,
			New: func(r container.Resolver) (any, error) {
				units, err := container.Get[DurationUnitLookup](r, mapping.DurationUnitMapName)
				if err != nil {
					return nil, err
				}
				return NewDurationUnitTranslator(units), nil
			},
		},
		{
			Name: MedicationRequestTranslatorName, Kind: container.KindTranslator, Component: true,
			New: func(r container.Resolver) (any, error) {
				concepts, err := container.Get[ConceptTranslator](r, concept.TranslatorName)
				if err != nil {
					return nil, err
				}
				durations, err := container.Get[*DurationUnitTranslator](r, DurationUnitTranslatorName)
				if err != nil {
					return nil, err
				}
				terminology, err := container.Get[*fhir.Terminology](r, container.ParentTerminology)
				if err != nil {
					return nil, err
				}
				logger, err := container.Get[zerolog.Logger](r, container.ParentLogger)
				if err != nil {
					return nil, err
				}
				return NewMedicationRequestTranslator(concepts, durations, terminology, logger), nil
			},
		},
		{
			Name: MedicationRequestServiceName, Kind: container.KindService, Component: true,
			New: func(r container.Resolver) (any, error) {
				orders, err := container.Get[DrugOrderRepository](r, DrugOrderDaoName)
				if err != nil {
					return nil, err
				}
				translator, err := container.Get[*MedicationRequestTranslator](r, MedicationRequestTranslatorName)
				if err != nil {
					return nil, err
				}
				terminology, err := container.Get[*fhir.Terminology](r, container.ParentTerminology)
				if err != nil {
					return nil, err
				}
				return NewMedicationRequestService(orders, translator, terminology), nil
			},
		},
		{
			Name: MedicationRequestProviderName, Kind: container.KindResourceProvider, Component: true,
			New: func(r container.Resolver) (any, error) {
				svc, err := container.Get[*MedicationRequestService](r, MedicationRequestServiceName)
				if err != nil {
					return nil, err
				}
				baseURL, err := container.Get[string](r, container.ParentFHIRBaseURL)
				if err != nil {
					return nil, err
				}
				return NewMedicationRequestFhirResourceProvider(svc, baseURL+"/"+string(fhir.VersionR4)), nil
			},
		},
	}
}
