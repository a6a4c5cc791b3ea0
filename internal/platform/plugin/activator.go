package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/ehr/fhir2/internal/platform/container"
	"github.com/ehr/fhir2/internal/platform/fhir"
)

// FHIR2ModuleID is the module id other modules require or are aware of to
// contribute FHIR components.
const FHIR2ModuleID = "fhir2"

var (
	ErrNoParentContext = errors.New("cannot load FHIR2 module as the main application context is not available")
	ErrNotStarted      = errors.New("this method cannot be called before the module is started")
)

// ModuleSource lists the modules the host has loaded.
type ModuleSource interface {
	LoadedModules() []*Module
}

// ProviderRouter exposes resource providers over REST.
type ProviderRouter interface {
	SetProviders(providers []fhir.ResourceProvider) error
}

// FHIRActivator keeps a child container holding the FHIR components of every
// module that requires or is aware of fhir2, and reloads it as modules come
// and go.
type FHIRActivator struct {
	logger  zerolog.Logger
	modules ModuleSource
	router  ProviderRouter

	mu       sync.Mutex
	parent   container.Resolver
	started  bool
	services map[string][]container.Definition
	order    []string

	child atomic.Pointer[container.Container]
}

func NewFHIRActivator(modules ModuleSource, router ProviderRouter, logger zerolog.Logger) *FHIRActivator {
	return &FHIRActivator{
		logger:   logger.With().Str("component", "fhir-activator").Logger(),
		modules:  modules,
		router:   router,
		services: map[string][]container.Definition{},
	}
}

// SetParent sets the host application context the child container falls
// back to.
func (a *FHIRActivator) SetParent(parent container.Resolver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.parent = parent
}

func (a *FHIRActivator) Started(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.parent == nil {
		return ErrNoParentContext
	}

	child := container.New(a.parent)
	a.child.Store(child)

	if err := a.loadModulesLocked(ctx); err != nil {
		a.child.Store(nil)
		return err
	}
	if err := child.Start(ctx); err != nil {
		a.child.Store(nil)
		return err
	}

	a.started = true
	a.logger.Info().Msg("Started FHIR")
	return nil
}

func (a *FHIRActivator) ContextRefreshed(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		return nil
	}
	return a.loadModulesLocked(ctx)
}

func (a *FHIRActivator) Stopped(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	child := a.child.Swap(nil)
	if child == nil {
		return nil
	}
	err := child.Stop(ctx)
	a.started = false
	if a.router != nil {
		if rerr := a.router.SetProviders(nil); rerr != nil && err == nil {
			err = rerr
		}
	}

	a.logger.Info().Msg("Shutdown FHIR")
	return err
}

// ApplicationContext returns the child container of a started activator.
func (a *FHIRActivator) ApplicationContext() (*container.Container, error) {
	child := a.child.Load()
	if child == nil {
		return nil, ErrNotStarted
	}
	return child, nil
}

// LoadModule scans a module that is not tracked yet and reloads the context.
func (a *FHIRActivator) LoadModule(ctx context.Context, m *Module) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.services[m.Name]; ok {
		return nil
	}
	a.loadModuleInternal(m)
	return a.reloadContextLocked(ctx)
}

// UnloadModule forgets a tracked module and reloads the context.
func (a *FHIRActivator) UnloadModule(ctx context.Context, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.forgetLocked(name) {
		return nil
	}
	return a.reloadContextLocked(ctx)
}

func (a *FHIRActivator) forgetLocked(name string) bool {
	if _, ok := a.services[name]; !ok {
		return false
	}
	delete(a.services, name)
	for i, n := range a.order {
		if n == name {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
	return true
}

// TrackedModules returns the names of the modules whose services are loaded.
func (a *FHIRActivator) TrackedModules() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.order...)
}

// ModuleStarted loads FHIR-aware modules started after this one.
func (a *FHIRActivator) ModuleStarted(ctx context.Context, m *Module) {
	if !a.isStarted() || !fhirAware(m) {
		return
	}
	if err := a.LoadModule(ctx, m); err != nil {
		a.logger.Error().Err(err).Str("module", m.Name).Msg("failed to load FHIR services of module")
	}
}

// ModuleStopped unloads the services of a stopped module. While the activator
// is stopped the module is only forgotten.
func (a *FHIRActivator) ModuleStopped(ctx context.Context, name string) {
	if err := a.UnloadModule(ctx, name); err != nil {
		a.logger.Error().Err(err).Str("module", name).Msg("failed to unload FHIR services of module")
	}
}

func (a *FHIRActivator) isStarted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.started
}

func fhirAware(m *Module) bool {
	return m.Name == FHIR2ModuleID ||
		m.RequiredModuleVersion(FHIR2ModuleID) != "" ||
		m.AwareOfModuleVersion(FHIR2ModuleID) != ""
}

// loadModulesLocked tracks exactly the loaded FHIR-aware modules.
func (a *FHIRActivator) loadModulesLocked(ctx context.Context) error {
	if a.modules != nil {
		loaded := map[string]bool{}
		for _, m := range a.modules.LoadedModules() {
			if m != nil && fhirAware(m) {
				loaded[m.Name] = true
				a.loadModuleInternal(m)
			}
		}
		for _, name := range append([]string(nil), a.order...) {
			if !loaded[name] {
				a.forgetLocked(name)
			}
		}
	}
	return a.reloadContextLocked(ctx)
}

func (a *FHIRActivator) reloadContextLocked(ctx context.Context) error {
	child := a.child.Load()
	if child == nil {
		return nil
	}

	seen := map[string]bool{}
	var defs []container.Definition
	for _, name := range a.order {
		for _, d := range a.services[name] {
			if seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			defs = append(defs, d)
		}
	}
	child.Replace(defs)
	if err := child.Refresh(ctx); err != nil {
		return err
	}

	if a.router == nil {
		return nil
	}
	var providers []fhir.ResourceProvider
	for _, inst := range child.OfKind(container.KindResourceProvider) {
		p, ok := inst.(fhir.ResourceProvider)
		if !ok {
			a.logger.Warn().Str("type", fmt.Sprintf("%T", inst)).Msg("resource provider does not implement fhir.ResourceProvider")
			continue
		}
		providers = append(providers, p)
	}
	return a.router.SetProviders(providers)
}

func (a *FHIRActivator) loadModuleInternal(m *Module) {
	moduleServices, ok := a.services[m.Name]
	if !ok {
		a.order = append(a.order, m.Name)
	}
	for _, kind := range container.Kinds {
		for _, d := range m.Load(kind) {
			if !d.Component {
				a.logger.Warn().Msgf("Skipping %s as it is not an annotated component", d.Name)
				continue
			}
			moduleServices = addDefinition(moduleServices, d)
		}
	}
	a.services[m.Name] = moduleServices
}

func addDefinition(defs []container.Definition, d container.Definition) []container.Definition {
	for _, existing := range defs {
		if existing.Name == d.Name {
			return defs
		}
	}
	return append(defs, d)
}
