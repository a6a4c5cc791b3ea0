package diagnostics

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ehr/fhir2/internal/domain/concept"
	"github.com/ehr/fhir2/internal/domain/mapping"
	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

func TestDefinitions(t *testing.T) {
	orm, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	terminology, err := fhir.LoadTerminology()
	require.NoError(t, err)

	c := container.New(container.Values{
		container.ParentPool:        (*pgxpool.Pool)(nil),
		container.ParentORM:         orm,
		container.ParentLogger:      zerolog.Nop(),
		container.ParentTerminology: terminology,
		container.ParentFHIRBaseURL: "http://localhost/fhir",
	})
	c.Register(mapping.Definitions()...)
	c.Register(concept.Definitions()...)
	c.Register(Definitions()...)
	require.NoError(t, c.Refresh(context.Background()))

	providers := c.OfKind(container.KindResourceProvider)
	require.Len(t, providers, 2)

	versions := map[fhir.Version]bool{}
	for _, p := range providers {
		rp, ok := p.(fhir.ResourceProvider)
		require.True(t, ok)
		assert.Equal(t, "DiagnosticReport", rp.ResourceType())
		versions[rp.FHIRVersion()] = true
	}
	assert.True(t, versions[fhir.VersionR4])
	assert.True(t, versions[fhir.VersionR3])

	r3, err := container.Get[*DiagnosticReportFhirResourceProviderR3](c, ProviderR3Name)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost/fhir/R3", r3.routes.baseURL)
}
