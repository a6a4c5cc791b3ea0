package mapping

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Auditable carries the creator, change and retirement columns shared by
// the module's mapping tables.
type Auditable struct {
	Creator      string     `gorm:"column:creator;size:38;not null" json:"creator"`
	DateCreated  time.Time  `gorm:"column:date_created;not null" json:"date_created"`
	ChangedBy    *string    `gorm:"column:changed_by;size:38" json:"changed_by,omitempty"`
	DateChanged  *time.Time `gorm:"column:date_changed" json:"date_changed,omitempty"`
	Retired      bool       `gorm:"column:retired;not null;default:false" json:"retired"`
	DateRetired  *time.Time `gorm:"column:date_retired" json:"date_retired,omitempty"`
	RetiredBy    *string    `gorm:"column:retired_by;size:38" json:"retired_by,omitempty"`
	RetireReason *string    `gorm:"column:retire_reason;size:255" json:"retire_reason,omitempty"`
	UUID         string     `gorm:"column:uuid;size:36;not null;uniqueIndex" json:"uuid"`
}

func (a *Auditable) stamp() {
	if a.UUID == "" {
		a.UUID = uuid.NewString()
	}
	if a.DateCreated.IsZero() {
		a.DateCreated = time.Now().UTC()
	}
}

func (a *Auditable) retire(by, reason string, at time.Time) {
	a.Retired = true
	a.RetiredBy = &by
	a.RetireReason = &reason
	a.DateRetired = &at
	a.ChangedBy = &by
	a.DateChanged = &at
}

// FhirDurationUnitMap maps a host duration-units concept to a FHIR
// Timing.UnitsOfTime code.
type FhirDurationUnitMap struct {
	ID         uint   `gorm:"column:duration_unit_map_id;primaryKey;autoIncrement" json:"id"`
	ConceptID  int64  `gorm:"column:concept_id;not null;index" json:"concept_id"`
	UnitOfTime string `gorm:"column:unit_of_time;size:50;not null" json:"unit_of_time"`
	Auditable
}

func (FhirDurationUnitMap) TableName() string { return "fhir_duration_unit_map" }

func (m *FhirDurationUnitMap) BeforeCreate(tx *gorm.DB) error {
	m.stamp()
	return nil
}

// Equal compares persisted rows by id.
func (m *FhirDurationUnitMap) Equal(other *FhirDurationUnitMap) bool {
	if m == nil || other == nil {
		return m == other
	}
	return m.ID != 0 && m.ID == other.ID
}

// FhirConceptSource maps a host concept source to the FHIR system URL used
// in codings.
type FhirConceptSource struct {
	ID                uint   `gorm:"column:fhir_concept_source_id;primaryKey;autoIncrement" json:"id"`
	ConceptSourceName string `gorm:"column:concept_source_name;size:50;not null;uniqueIndex" json:"concept_source_name"`
	URL               string `gorm:"column:url;size:255;not null;index" json:"url"`
	Name              string `gorm:"column:name;size:255;not null" json:"name"`
	Description       string `gorm:"column:description;size:255" json:"description,omitempty"`
	Auditable
}

func (FhirConceptSource) TableName() string { return "fhir_concept_source" }

func (s *FhirConceptSource) BeforeCreate(tx *gorm.DB) error {
	s.stamp()
	if s.Name == "" {
		s.Name = s.ConceptSourceName
	}
	return nil
}

// Migrate creates or updates the module's mapping tables.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&FhirDurationUnitMap{}, &FhirConceptSource{})
}
