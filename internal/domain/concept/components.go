package concept

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/ehr/fhir2/internal/domain/mapping"
	"github.com/ehr/fhir2/internal/platform/container"
)

const (
	DaoName        = "conceptDao"
	TranslatorName = "conceptTranslator"
)

// Definitions returns the concept DAO and translator.
func Definitions() []container.Definition {
	return []container.Definition{
		{
			Name: DaoName, Kind: container.KindDAO, Component: true,
			New: func(r container.Resolver) (any, error) {
				pool, err := container.Get[*pgxpool.Pool](r, container.ParentPool)
				if err != nil {
					return nil, err
				}
				return NewRepoPG(pool), nil
			},
		},
		{
			Name: TranslatorName, Kind: container.KindTranslator, Component: true,
			New: func(r container.Resolver) (any, error) {
				repo, err := container.Get[Repository](r, DaoName)
				if err != nil {
					return nil, err
				}
				sources, err := container.Get[SourceLookup](r, mapping.ConceptSourceMapName)
				if err != nil {
					return nil, err
				}
				logger, err := container.Get[zerolog.Logger](r, container.ParentLogger)
				if err != nil {
					return nil, err
				}
				return NewTranslator(repo, sources, logger), nil
			},
		},
	}
}
