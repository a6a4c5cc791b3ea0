// Package modules declares the host modules shipped with the server and the
// FHIR components each contributes.
package modules

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/domain/diagnostics"
	"github.com/ehr/fhir2/internal/domain/mapping"
	"github.com/ehr/fhir2/internal/domain/medication"
	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/db"
	"github.com/ehr/fhir2/internal/platform/plugin"
)

const (
	Version          = "1.0.0"
	MedicationModule = "medication"
)

// Deps are the host resources module migrations and admin routes use.
type Deps struct {
	Pool   *pgxpool.Pool
	ORM    *gorm.DB
	Logger zerolog.Logger
	// Schema is the tenant schema migrated when a module starts.
	Schema string
}

// MigrationSet is one migrator's SQL files. Name keys the _migrations rows.
type MigrationSet struct {
	Name string
	FS   fs.FS
}

func fhir2Migrations() []MigrationSet {
	return []MigrationSet{
		{Name: "fhir2.concept", FS: concept.Migrations()},
		{Name: "fhir2.diagnostics", FS: diagnostics.Migrations()},
	}
}

func medicationMigrations() []MigrationSet {
	return []MigrationSet{{Name: MedicationModule, FS: medication.Migrations()}}
}

// Migrations returns every migration set in dependency order.
func Migrations() []MigrationSet {
	return append(fhir2Migrations(), medicationMigrations()...)
}

// MigrateSchema applies sets to schema and returns the number of migrations run.
func MigrateSchema(ctx context.Context, pool *pgxpool.Pool, schema string, sets []MigrationSet) (int, error) {
	total := 0
	for _, set := range sets {
		n, err := db.NewMigrator(pool, set.Name, set.FS).Up(ctx, schema)
		total += n
		if err != nil {
			return total, fmt.Errorf("migrate %s: %w", set.Name, err)
		}
	}
	return total, nil
}

// FHIR2 declares the fhir2 module. activator drives the FHIR child container.
func FHIR2(d Deps, activator plugin.Activator) *plugin.Module {
	var services []container.Definition
	services = append(services, mapping.Definitions()...)
	services = append(services, concept.Definitions()...)
	services = append(services, diagnostics.Definitions()...)

	return &plugin.Module{
		Name:      plugin.FHIR2ModuleID,
		Version:   Version,
		Services:  services,
		Activator: activator,
		Migrate: func(ctx context.Context) error {
			if err := mapping.Migrate(d.ORM.WithContext(ctx)); err != nil {
				return fmt.Errorf("migrate mapping tables: %w", err)
			}
			_, err := MigrateSchema(ctx, d.Pool, d.Schema, fhir2Migrations())
			return err
		},
		Routes: func(api *echo.Group) {
			units := mapping.NewDurationUnitMap(d.ORM, d.Logger)
			sources := mapping.NewConceptSourceMap(d.ORM, d.Logger)
			mapping.NewHandler(units, sources).RegisterRoutes(api)
		},
	}
}

// Medication declares the order module. It requires fhir2 and contributes
// the MedicationRequest provider to it.
func Medication(d Deps) *plugin.Module {
	return &plugin.Module{
		Name:            MedicationModule,
		Version:         Version,
		RequiredModules: map[string]string{plugin.FHIR2ModuleID: Version},
		Services:        medication.Definitions(),
		Migrate: func(ctx context.Context) error {
			_, err := MigrateSchema(ctx, d.Pool, d.Schema, medicationMigrations())
			return err
		},
	}
}

// Declared returns every module the server can install, fhir2 first.
func Declared(d Deps, activator plugin.Activator) []*plugin.Module {
	return []*plugin.Module{FHIR2(d, activator), Medication(d)}
}
