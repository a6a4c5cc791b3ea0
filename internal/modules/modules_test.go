package modules

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ehr/fhir2/internal/domain/mapping"
	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/db"
	"github.com/ehr/fhir2/internal/platform/fhir"
	"github.com/ehr/fhir2/internal/platform/plugin"
)

type harness struct {
	host      *plugin.Host
	server    *fhir.Server
	activator *plugin.FHIRActivator
	orm       *gorm.DB
}

// newHarness installs the declared modules without their SQL migrations; the
// pool is a typed nil since no provider touches the database here.
func newHarness(t *testing.T) *harness {
	t.Helper()
	orm, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Discard})
	require.NoError(t, err)
	sqlDB, err := orm.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, mapping.Migrate(orm))
	terminology, err := fhir.LoadTerminology()
	require.NoError(t, err)

	host := plugin.NewHost(zerolog.Nop())
	server := fhir.NewServer("/fhir", "http://localhost/fhir", Version, zerolog.Nop())
	activator := plugin.NewFHIRActivator(host, server, zerolog.Nop())
	activator.SetParent(container.Values{
		container.ParentPool:        (*pgxpool.Pool)(nil),
		container.ParentORM:         orm,
		container.ParentLogger:      zerolog.Nop(),
		container.ParentTerminology: terminology,
		container.ParentFHIRBaseURL: "http://localhost/fhir",
	})
	host.AddListener(activator)

	for _, m := range Declared(Deps{ORM: orm, Logger: zerolog.Nop()}, activator) {
		m.Migrate = nil
		require.NoError(t, host.Install(m))
	}
	return &harness{host: host, server: server, activator: activator, orm: orm}
}

func providerKeys(s *fhir.Server) []string {
	var out []string
	for _, p := range s.Providers() {
		out = append(out, string(p.FHIRVersion)+"/"+p.ResourceType)
	}
	return out
}

func TestDeclared(t *testing.T) {
	mods := Declared(Deps{}, nil)
	require.Len(t, mods, 2)
	assert.Equal(t, plugin.FHIR2ModuleID, mods[0].Name)
	assert.Equal(t, MedicationModule, mods[1].Name)
	assert.Equal(t, Version, mods[1].RequiredModuleVersion(plugin.FHIR2ModuleID))

	names := map[string]bool{}
	for _, m := range mods {
		for _, d := range m.Services {
			assert.False(t, names[d.Name], "duplicate service %s", d.Name)
			names[d.Name] = true
			assert.True(t, d.Component)
		}
	}
	assert.Len(t, mods[0].Load(container.KindResourceProvider), 2)
	assert.Len(t, mods[1].Load(container.KindResourceProvider), 1)
}

func TestMigrations(t *testing.T) {
	sets := Migrations()
	require.Len(t, sets, 3)
	for _, set := range sets {
		migs, err := db.NewMigrator(nil, set.Name, set.FS).LoadMigrations()
		require.NoError(t, err)
		assert.NotEmpty(t, migs, set.Name)
	}
	assert.Equal(t, "fhir2.concept", sets[0].Name, "concept tables are referenced by later sets")
}

func TestModulesDriveFHIRProviders(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.host.Start(ctx, plugin.FHIR2ModuleID))
	assert.Equal(t, []string{"R4/DiagnosticReport", "R3/DiagnosticReport"}, providerKeys(h.server))

	require.NoError(t, h.host.Start(ctx, MedicationModule))
	assert.Equal(t, []string{"R4/DiagnosticReport", "R4/MedicationRequest", "R3/DiagnosticReport"}, providerKeys(h.server))
	assert.Equal(t, []string{plugin.FHIR2ModuleID, MedicationModule}, h.activator.TrackedModules())

	require.NoError(t, h.host.Stop(ctx, MedicationModule))
	assert.Equal(t, []string{"R4/DiagnosticReport", "R3/DiagnosticReport"}, providerKeys(h.server))

	require.NoError(t, h.host.StopAll(ctx))
	assert.Empty(t, h.server.Providers())
	_, err := h.activator.ApplicationContext()
	assert.ErrorIs(t, err, plugin.ErrNotStarted)
}

func TestAdminHandler(t *testing.T) {
	h := newHarness(t)
	e := echo.New()
	api := e.Group("/api/v1")
	NewHandler(h.host, h.server).RegisterRoutes(api)
	h.host.RegisterRoutes(api)

	do := func(method, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
		return rec
	}

	rec := do(http.MethodPost, "/api/v1/modules/medication/start")
	assert.Equal(t, http.StatusConflict, rec.Code, "fhir2 is not started yet")

	rec = do(http.MethodPost, "/api/v1/modules/unknown/start")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(http.MethodPost, "/api/v1/modules/fhir2/start")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = do(http.MethodPost, "/api/v1/modules/medication/start")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodGet, "/api/v1/modules")
	require.Equal(t, http.StatusOK, rec.Code)
	var infos []ModuleInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &infos))
	require.Len(t, infos, 2)
	assert.Equal(t, plugin.FHIR2ModuleID, infos[0].Name)
	assert.True(t, infos[0].Started)
	assert.True(t, infos[1].Started)

	rec = do(http.MethodGet, "/api/v1/modules/fhir/providers")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "MedicationRequest")

	rec = do(http.MethodPost, "/api/v1/modules/fhir2/stop")
	assert.Equal(t, http.StatusConflict, rec.Code, "medication still requires fhir2")

	rec = do(http.MethodPost, "/api/v1/modules/refresh")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(http.MethodGet, "/api/v1/duration-unit-maps")
	assert.Equal(t, http.StatusOK, rec.Code, "fhir2 mounts the mapping admin routes")
}

func TestDescribe(t *testing.T) {
	info := Describe(Medication(Deps{}), false)
	assert.Equal(t, MedicationModule, info.Name)
	assert.False(t, info.Started)
	require.NotEmpty(t, info.Services)
	assert.Equal(t, string(container.KindDAO), info.Services[0].Kind)
}
