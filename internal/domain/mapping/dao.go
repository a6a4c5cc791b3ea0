package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ehr/fhir2/internal/platform/db"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

// ErrNotFound is returned by Retire when no row has the given uuid.
var ErrNotFound = errors.New("mapping not found")

// DurationUnitMap looks up the FHIR unit of time of host duration concepts.
type DurationUnitMap struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewDurationUnitMap(orm *gorm.DB, logger zerolog.Logger) *DurationUnitMap {
	return &DurationUnitMap{db: orm, logger: logger.With().Str("component", "durationUnitMap").Logger()}
}

// conceptTable qualifies the host concept table with the request's tenant
// schema, since mapping tables live in public.
func conceptTable(ctx context.Context) string {
	if tenant := db.TenantFromContext(ctx); tenant != "" {
		return db.TenantSchema(tenant) + ".concept"
	}
	return "concept"
}

// GetDurationUnit returns the unit mapped to the concept with conceptUUID.
// Misses, storage errors and ambiguous mappings all yield nil; the latter
// two are logged.
func (d *DurationUnitMap) GetDurationUnit(ctx context.Context, conceptUUID string) *fhir.UnitsOfTime {
	table := conceptTable(ctx)

	var units []string
	err := d.db.WithContext(ctx).
		Model(&FhirDurationUnitMap{}).
		Joins(fmt.Sprintf("JOIN %[1]s ON %[1]s.concept_id = fhir_duration_unit_map.concept_id", table)).
		Where(table+".uuid = ? AND fhir_duration_unit_map.retired = ?", conceptUUID, false).
		Limit(2).
		Pluck("fhir_duration_unit_map.unit_of_time", &units).Error
	if err == nil && len(units) > 1 {
		err = fmt.Errorf("query did not return a unique result")
	}
	if err != nil {
		d.logger.Error().Err(err).Msgf("Exception caught while trying to load DurationUnit for concept '%s'", conceptUUID)
		return nil
	}
	if len(units) == 0 {
		return nil
	}

	unit, err := fhir.ParseUnitsOfTime(units[0])
	if err != nil {
		d.logger.Error().Err(err).Msgf("Exception caught while trying to load DurationUnit for concept '%s'", conceptUUID)
		return nil
	}
	return &unit
}

// Save inserts or updates a mapping.
func (d *DurationUnitMap) Save(ctx context.Context, m *FhirDurationUnitMap) error {
	if _, err := fhir.ParseUnitsOfTime(m.UnitOfTime); err != nil {
		return err
	}
	if err := d.db.WithContext(ctx).Save(m).Error; err != nil {
		return fmt.Errorf("save duration unit map: %w", err)
	}
	return nil
}

// GetByUUID returns a mapping or ErrNotFound.
func (d *DurationUnitMap) GetByUUID(ctx context.Context, id string) (*FhirDurationUnitMap, error) {
	var m FhirDurationUnitMap
	if err := d.db.WithContext(ctx).Where("uuid = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get duration unit map: %w", err)
	}
	return &m, nil
}

// Retire marks a mapping retired so lookups skip it.
func (d *DurationUnitMap) Retire(ctx context.Context, id, by, reason string) (*FhirDurationUnitMap, error) {
	m, err := d.GetByUUID(ctx, id)
	if err != nil {
		return nil, err
	}
	m.retire(by, reason, time.Now().UTC())
	if err := d.db.WithContext(ctx).Save(m).Error; err != nil {
		return nil, fmt.Errorf("retire duration unit map: %w", err)
	}
	return m, nil
}

// List returns mappings ordered by id.
func (d *DurationUnitMap) List(ctx context.Context, includeRetired bool, limit, offset int) ([]FhirDurationUnitMap, int, error) {
	base := func() *gorm.DB {
		q := d.db.WithContext(ctx).Model(&FhirDurationUnitMap{})
		if !includeRetired {
			q = q.Where("retired = ?", false)
		}
		return q
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count duration unit maps: %w", err)
	}
	var items []FhirDurationUnitMap
	if err := base().Order("duration_unit_map_id").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list duration unit maps: %w", err)
	}
	return items, int(total), nil
}

// ConceptSourceMap resolves host concept sources to FHIR system URLs and back.
type ConceptSourceMap struct {
	db     *gorm.DB
	logger zerolog.Logger
}

func NewConceptSourceMap(orm *gorm.DB, logger zerolog.Logger) *ConceptSourceMap {
	return &ConceptSourceMap{db: orm, logger: logger.With().Str("component", "conceptSourceMap").Logger()}
}

// GetSystemURL returns the system URL registered for a host source name.
func (m *ConceptSourceMap) GetSystemURL(ctx context.Context, sourceName string) (string, bool) {
	var src FhirConceptSource
	err := m.db.WithContext(ctx).
		Where("concept_source_name = ? AND retired = ?", sourceName, false).
		First(&src).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			m.logger.Error().Err(err).Str("source", sourceName).Msg("failed to load concept source")
		}
		return "", false
	}
	return src.URL, true
}

// GetSourceName returns the host source name registered for a system URL.
func (m *ConceptSourceMap) GetSourceName(ctx context.Context, url string) (string, bool) {
	var src FhirConceptSource
	err := m.db.WithContext(ctx).
		Where("url = ? AND retired = ?", url, false).
		Order("fhir_concept_source_id").
		First(&src).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			m.logger.Error().Err(err).Str("url", url).Msg("failed to load concept source")
		}
		return "", false
	}
	return src.ConceptSourceName, true
}

func (m *ConceptSourceMap) Save(ctx context.Context, src *FhirConceptSource) error {
	if src.ConceptSourceName == "" || src.URL == "" {
		return fmt.Errorf("concept_source_name and url are required")
	}
	if err := m.db.WithContext(ctx).Save(src).Error; err != nil {
		return fmt.Errorf("save concept source: %w", err)
	}
	return nil
}

func (m *ConceptSourceMap) List(ctx context.Context, limit, offset int) ([]FhirConceptSource, int, error) {
	base := func() *gorm.DB {
		return m.db.WithContext(ctx).Model(&FhirConceptSource{}).Where("retired = ?", false)
	}

	var total int64
	if err := base().Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count concept sources: %w", err)
	}
	var items []FhirConceptSource
	if err := base().Order("concept_source_name").Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, 0, fmt.Errorf("list concept sources: %w", err)
	}
	return items, int(total), nil
}
