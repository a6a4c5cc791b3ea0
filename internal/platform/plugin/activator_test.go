package plugin

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

type fakeProvider struct {
	resourceType string
	version      fhir.Version
}

func (p *fakeProvider) ResourceType() string         { return p.resourceType }
func (p *fakeProvider) FHIRVersion() fhir.Version    { return p.version }
func (p *fakeProvider) RegisterRoutes(g *echo.Group) {}

type fakeRouter struct {
	calls     int
	providers []fhir.ResourceProvider
	err       error
}

func (r *fakeRouter) SetProviders(providers []fhir.ResourceProvider) error {
	r.calls++
	r.providers = providers
	return r.err
}

func (r *fakeRouter) types() []string {
	var out []string
	for _, p := range r.providers {
		out = append(out, string(p.FHIRVersion())+"/"+p.ResourceType())
	}
	return out
}

type staticModules []*Module

func (s staticModules) LoadedModules() []*Module { return s }

func providerDef(name, resourceType string, version fhir.Version) container.Definition {
	return container.Definition{
		Name: name, Kind: container.KindResourceProvider, Component: true,
		New: func(container.Resolver) (any, error) {
			return &fakeProvider{resourceType: resourceType, version: version}, nil
		},
	}
}

func valueDef(name string, kind container.Kind, value any) container.Definition {
	return container.Definition{
		Name: name, Kind: kind, Component: true,
		New: func(container.Resolver) (any, error) { return value, nil },
	}
}

func fhir2Module() *Module {
	return &Module{
		Name:    FHIR2ModuleID,
		Version: "1.0.0",
		Services: []container.Definition{
			valueDef("durationUnitMap", container.KindDAO, "dao"),
			providerDef("diagnosticReportFhirResourceProvider", "DiagnosticReport", fhir.VersionR4),
		},
	}
}

func TestFHIRActivator_StartedWithoutParent(t *testing.T) {
	a := NewFHIRActivator(staticModules{fhir2Module()}, &fakeRouter{}, zerolog.Nop())

	err := a.Started(context.Background())
	assert.ErrorIs(t, err, ErrNoParentContext)
	assert.Equal(t, "cannot load FHIR2 module as the main application context is not available", err.Error())

	_, err = a.ApplicationContext()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestFHIRActivator_StartedLoadsAwareModules(t *testing.T) {
	var buf bytes.Buffer
	router := &fakeRouter{}
	modules := staticModules{
		fhir2Module(),
		{
			Name:            "medication",
			RequiredModules: map[string]string{FHIR2ModuleID: "1.0"},
			Services: []container.Definition{
				providerDef("medicationRequestFhirResourceProvider", "MedicationRequest", fhir.VersionR4),
			},
		},
		{
			Name:           "reports",
			AwareOfModules: map[string]string{FHIR2ModuleID: "1.0"},
			Services: []container.Definition{
				providerDef("diagnosticReportFhirResourceProviderR3", "DiagnosticReport", fhir.VersionR3),
			},
		},
		{
			Name: "unrelated",
			Services: []container.Definition{
				providerDef("patientProvider", "Patient", fhir.VersionR4),
			},
		},
	}

	a := NewFHIRActivator(modules, router, zerolog.New(&buf))
	a.SetParent(container.Values{"logger": zerolog.Nop()})

	require.NoError(t, a.Started(context.Background()))

	child, err := a.ApplicationContext()
	require.NoError(t, err)
	assert.True(t, child.Running())
	assert.Equal(t, []string{FHIR2ModuleID, "medication", "reports"}, a.TrackedModules())

	assert.Equal(t, 1, router.calls)
	assert.ElementsMatch(t, []string{"R4/DiagnosticReport", "R4/MedicationRequest", "R3/DiagnosticReport"}, router.types())

	// parent values are reachable through the child
	_, err = child.Resolve("logger")
	assert.NoError(t, err)
	_, err = child.Resolve("patientProvider")
	assert.ErrorIs(t, err, container.ErrNotFound)

	assert.Contains(t, buf.String(), "Started FHIR")
}

func TestFHIRActivator_SkipsNonComponents(t *testing.T) {
	var buf bytes.Buffer
	m := fhir2Module()
	m.Services = append(m.Services, container.Definition{
		Name: "helperTranslator", Kind: container.KindTranslator, Component: false,
		New: func(container.Resolver) (any, error) { return "helper", nil },
	})

	a := NewFHIRActivator(staticModules{m}, &fakeRouter{}, zerolog.New(&buf))
	a.SetParent(container.Values{})
	require.NoError(t, a.Started(context.Background()))

	child, err := a.ApplicationContext()
	require.NoError(t, err)
	_, err = child.Resolve("helperTranslator")
	assert.ErrorIs(t, err, container.ErrNotFound)
	assert.Contains(t, buf.String(), "Skipping helperTranslator as it is not an annotated component")
}

func TestFHIRActivator_DuplicateDefinitionsAcrossModules(t *testing.T) {
	router := &fakeRouter{}
	modules := staticModules{
		fhir2Module(),
		{
			Name:            "shadow",
			RequiredModules: map[string]string{FHIR2ModuleID: "1.0"},
			Services: []container.Definition{
				providerDef("diagnosticReportFhirResourceProvider", "Observation", fhir.VersionR4),
			},
		},
	}

	a := NewFHIRActivator(modules, router, zerolog.Nop())
	a.SetParent(container.Values{})
	require.NoError(t, a.Started(context.Background()))

	// the first module to contribute a name wins
	assert.Equal(t, []string{"R4/DiagnosticReport"}, router.types())
}

func TestFHIRActivator_LoadAndUnloadModule(t *testing.T) {
	router := &fakeRouter{}
	a := NewFHIRActivator(staticModules{fhir2Module()}, router, zerolog.Nop())
	a.SetParent(container.Values{})
	ctx := context.Background()
	require.NoError(t, a.Started(ctx))

	med := &Module{
		Name:            "medication",
		RequiredModules: map[string]string{FHIR2ModuleID: "1.0"},
		Services: []container.Definition{
			providerDef("medicationRequestFhirResourceProvider", "MedicationRequest", fhir.VersionR4),
		},
	}

	require.NoError(t, a.LoadModule(ctx, med))
	assert.Equal(t, 2, router.calls)
	assert.ElementsMatch(t, []string{"R4/DiagnosticReport", "R4/MedicationRequest"}, router.types())

	// already tracked: nothing happens
	require.NoError(t, a.LoadModule(ctx, med))
	assert.Equal(t, 2, router.calls)

	require.NoError(t, a.UnloadModule(ctx, "medication"))
	assert.Equal(t, 3, router.calls)
	assert.Equal(t, []string{"R4/DiagnosticReport"}, router.types())

	// not tracked: nothing happens
	require.NoError(t, a.UnloadModule(ctx, "medication"))
	assert.Equal(t, 3, router.calls)
}

func TestFHIRActivator_ContextRefreshed(t *testing.T) {
	router := &fakeRouter{}
	a := NewFHIRActivator(staticModules{fhir2Module()}, router, zerolog.Nop())
	a.SetParent(container.Values{})
	ctx := context.Background()

	// before start: no-op
	require.NoError(t, a.ContextRefreshed(ctx))
	assert.Equal(t, 0, router.calls)

	require.NoError(t, a.Started(ctx))
	require.NoError(t, a.ContextRefreshed(ctx))
	assert.Equal(t, 2, router.calls)
	assert.Len(t, router.providers, 1)
}

func TestFHIRActivator_Stopped(t *testing.T) {
	var buf bytes.Buffer
	router := &fakeRouter{}
	a := NewFHIRActivator(staticModules{fhir2Module()}, router, zerolog.New(&buf))
	a.SetParent(container.Values{})
	ctx := context.Background()

	// never started: no-op
	require.NoError(t, a.Stopped(ctx))
	assert.NotContains(t, buf.String(), "Shutdown FHIR")

	require.NoError(t, a.Started(ctx))
	child, err := a.ApplicationContext()
	require.NoError(t, err)

	require.NoError(t, a.Stopped(ctx))
	assert.False(t, child.Running())
	assert.Empty(t, router.providers)
	assert.Contains(t, buf.String(), "Shutdown FHIR")

	_, err = a.ApplicationContext()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestFHIRActivator_StartFailsOnBrokenDefinition(t *testing.T) {
	m := fhir2Module()
	m.Services = append(m.Services, container.Definition{
		Name: "brokenDao", Kind: container.KindDAO, Component: true,
		New: func(container.Resolver) (any, error) { return nil, errors.New("no pool") },
	})

	a := NewFHIRActivator(staticModules{m}, &fakeRouter{}, zerolog.Nop())
	a.SetParent(container.Values{})

	err := a.Started(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brokenDao")

	_, err = a.ApplicationContext()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestFHIRActivator_WarnsOnForeignProvider(t *testing.T) {
	var buf bytes.Buffer
	router := &fakeRouter{}
	m := fhir2Module()
	m.Services = append(m.Services, valueDef("notAProvider", container.KindResourceProvider, 42))

	a := NewFHIRActivator(staticModules{m}, router, zerolog.New(&buf))
	a.SetParent(container.Values{})
	require.NoError(t, a.Started(context.Background()))

	assert.Len(t, router.providers, 1)
	assert.True(t, strings.Contains(buf.String(), "does not implement fhir.ResourceProvider"))
}

func TestFHIRActivator_DrivenByHost(t *testing.T) {
	router := &fakeRouter{}
	h := NewHost(zerolog.Nop())
	a := NewFHIRActivator(h, router, zerolog.Nop())
	a.SetParent(container.Values{})
	h.AddListener(a)

	m := fhir2Module()
	m.Activator = a
	require.NoError(t, h.Install(m))
	require.NoError(t, h.Install(&Module{
		Name:            "medication",
		RequiredModules: map[string]string{FHIR2ModuleID: "1.0"},
		Services: []container.Definition{
			providerDef("medicationRequestFhirResourceProvider", "MedicationRequest", fhir.VersionR4),
		},
	}))
	require.NoError(t, h.Install(&Module{Name: "unrelated"}))

	ctx := context.Background()
	require.NoError(t, h.StartAll(ctx, []string{FHIR2ModuleID, "medication", "unrelated"}))
	assert.Equal(t, []string{FHIR2ModuleID, "medication"}, a.TrackedModules())
	assert.ElementsMatch(t, []string{"R4/DiagnosticReport", "R4/MedicationRequest"}, router.types())

	require.NoError(t, h.Stop(ctx, "medication"))
	assert.Equal(t, []string{FHIR2ModuleID}, a.TrackedModules())
	assert.Equal(t, []string{"R4/DiagnosticReport"}, router.types())

	require.NoError(t, h.Stop(ctx, FHIR2ModuleID))
	_, err := a.ApplicationContext()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestFHIRActivator_ForgetsModulesStoppedWhileDown(t *testing.T) {
	router := &fakeRouter{}
	h := NewHost(zerolog.Nop())
	a := NewFHIRActivator(h, router, zerolog.Nop())
	a.SetParent(container.Values{})
	h.AddListener(a)

	m := fhir2Module()
	m.Activator = a
	require.NoError(t, h.Install(m))
	require.NoError(t, h.Install(&Module{
		Name:           "reports",
		AwareOfModules: map[string]string{FHIR2ModuleID: "1.0"},
		Services: []container.Definition{
			providerDef("observationFhirResourceProvider", "Observation", fhir.VersionR4),
		},
	}))

	ctx := context.Background()
	require.NoError(t, h.StartAll(ctx, []string{FHIR2ModuleID, "reports"}))
	assert.ElementsMatch(t, []string{"R4/DiagnosticReport", "R4/Observation"}, router.types())

	require.NoError(t, h.Stop(ctx, FHIR2ModuleID))
	require.NoError(t, h.Stop(ctx, "reports"))
	require.NoError(t, h.Start(ctx, FHIR2ModuleID))

	assert.Equal(t, []string{FHIR2ModuleID}, a.TrackedModules())
	assert.Equal(t, []string{"R4/DiagnosticReport"}, router.types())
}

func TestFHIRActivator_StartedDropsModulesNoLongerLoaded(t *testing.T) {
	router := &fakeRouter{}
	a := NewFHIRActivator(staticModules{fhir2Module()}, router, zerolog.Nop())
	a.SetParent(container.Values{})
	ctx := context.Background()
	require.NoError(t, a.Started(ctx))

	require.NoError(t, a.LoadModule(ctx, &Module{
		Name:           "reports",
		AwareOfModules: map[string]string{FHIR2ModuleID: "1.0"},
		Services: []container.Definition{
			providerDef("observationFhirResourceProvider", "Observation", fhir.VersionR4),
		},
	}))
	require.NoError(t, a.Stopped(ctx))

	// reports is not among the loaded modules any more
	require.NoError(t, a.Started(ctx))
	assert.Equal(t, []string{FHIR2ModuleID}, a.TrackedModules())
	assert.Equal(t, []string{"R4/DiagnosticReport"}, router.types())
}
