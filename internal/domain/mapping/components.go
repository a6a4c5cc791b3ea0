package mapping

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ehr/fhir2/internal/platform/container"
)

const (
	DurationUnitMapName  = "durationUnitMap"
	ConceptSourceMapName = "conceptSourceMap"
)

// Definitions returns the DAOs this package contributes to the FHIR container.
func Definitions() []container.Definition {
	return []container.Definition{
		{
			Name: DurationUnitMapName, Kind: container.KindDAO, Component: true,
			New: func(r container.Resolver) (any, error) {
				orm, logger, err := ormAndLogger(r)
				if err != nil {
					return nil, err
				}
				return NewDurationUnitMap(orm, logger), nil
			},
		},
		{
			Name: ConceptSourceMapName, Kind: container.KindDAO, Component: true,
			New: func(r container.Resolver) (any, error) {
				orm, logger, err := ormAndLogger(r)
				if err != nil {
					return nil, err
				}
				return NewConceptSourceMap(orm, logger), nil
			},
		},
	}
}

func ormAndLogger(r container.Resolver) (*gorm.DB, zerolog.Logger, error) {
	orm, err := container.Get[*gorm.DB](r, container.ParentORM)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	logger, err := container.Get[zerolog.Logger](r, container.ParentLogger)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return orm, logger, nil
}
