package diagnostics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

const (
	DaoName        = "diagnosticReportDao"
	TranslatorName = "diagnosticReportTranslator"
	ServiceName    = "diagnosticReportService"
	ProviderName   = "diagnosticReportFhirResourceProvider"
	ProviderR3Name = "diagnosticReportFhirResourceProviderR3"
)

func Definitions() []container.Definition {
	return []container.Definition{
		{
			Name: DaoName, Kind: container.KindDAO, Component: true,
			New: func(r container.Resolver) (any, error) {
				pool, err := container.Get[*pgxpool.Pool](r, container.ParentPool)
				if err != nil {
					return nil, err
				}
				return NewDiagnosticReportRepoPG(pool), nil
			},
		},
		{
			Name: TranslatorName, Kind: container.KindTranslator, Component: true,
			New: func(r container.Resolver) (any, error) {
				concepts, err := container.Get[ConceptTranslator](r, concept.TranslatorName)
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
				return NewDiagnosticReportTranslator(concepts, terminology, logger), nil
			},
		},
		{
			Name: ServiceName, Kind: container.KindService, Component: true,
			New: func(r container.Resolver) (any, error) {
				reports, err := container.Get[DiagnosticReportRepository](r, DaoName)
				if err != nil {
					return nil, err
				}
				translator, err := container.Get[*DiagnosticReportTranslator](r, TranslatorName)
				if err != nil {
					return nil, err
				}
				terminology, err := container.Get[*fhir.Terminology](r, container.ParentTerminology)
				if err != nil {
					return nil, err
				}
				return NewDiagnosticReportService(reports, translator, terminology), nil
			},
		},
		{
			Name: ProviderName, Kind: container.KindResourceProvider, Component: true,
			New: func(r container.Resolver) (any, error) {
				svc, baseURL, err := serviceAndBase(r)
				if err != nil {
					return nil, err
				}
				return NewDiagnosticReportFhirResourceProvider(svc, baseURL+"/"+string(fhir.VersionR4)), nil
			},
		},
		{
			Name: ProviderR3Name, Kind: container.KindResourceProvider, Component: true,
			New: func(r container.Resolver) (any, error) {
				svc, baseURL, err := serviceAndBase(r)
				if err != nil {
					return nil, err
				}
				return NewDiagnosticReportFhirResourceProviderR3(svc, baseURL+"/"+string(fhir.VersionR3)), nil
			},
		},
	}
}

func serviceAndBase(r container.Resolver) (*DiagnosticReportService, string, error) {
	svc, err := container.Get[*DiagnosticReportService](r, ServiceName)
	if err != nil {
		return nil, "", err
	}
	baseURL, err := container.Get[string](r, container.ParentFHIRBaseURL)
	if err != nil {
		return nil, "", err
	}
	return svc, baseURL, nil
}
