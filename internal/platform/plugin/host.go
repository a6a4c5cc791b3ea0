package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/fhir2/internal/platform/container"
)

// ErrNotInstalled is returned when a lifecycle call names an unknown module.
var (
	ErrNotInstalled = errors.New("module is not installed")
	// ErrBusy is returned while another call is starting the same module.
	ErrBusy = errors.New("module lifecycle change in progress")
)

// Activator receives the host lifecycle callbacks of a module.
type Activator interface {
	Started(ctx context.Context) error
	Stopped(ctx context.Context) error
	ContextRefreshed(ctx context.Context) error
}

// ModuleListener is notified after a module has started or stopped.
type ModuleListener interface {
	ModuleStarted(ctx context.Context, m *Module)
	ModuleStopped(ctx context.Context, name string)
}

// Module is an installable unit of the host. Services are the components the
// module contributes to FHIR-aware containers.
type Module struct {
	Name            string
	Version         string
	RequiredModules map[string]string
	AwareOfModules  map[string]string
	Services        []container.Definition
	Activator       Activator
	Migrate         func(ctx context.Context) error
	Routes          func(api *echo.Group)
}

// RequiredModuleVersion returns the version of id this module requires, or "".
func (m *Module) RequiredModuleVersion(id string) string {
	return m.RequiredModules[id]
}

// AwareOfModuleVersion returns the version of id this module is aware of, or "".
func (m *Module) AwareOfModuleVersion(id string) string {
	return m.AwareOfModules[id]
}

// Load returns the declared services of one kind.
func (m *Module) Load(kind container.Kind) []container.Definition {
	var out []container.Definition
	for _, d := range m.Services {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Host installs modules and drives their lifecycle.
type Host struct {
	mu        sync.Mutex
	logger    zerolog.Logger
	installed []*Module
	started   []string
	starting  map[string]bool
	listeners []ModuleListener
}

func NewHost(logger zerolog.Logger) *Host {
	return &Host{
		logger:   logger.With().Str("component", "module-host").Logger(),
		starting: map[string]bool{},
	}
}

// Install adds a module. Installing the same name twice is an error.
func (h *Host) Install(m *Module) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m == nil || m.Name == "" {
		return fmt.Errorf("module name is required")
	}
	if h.findLocked(m.Name) != nil {
		return fmt.Errorf("module %s is already installed", m.Name)
	}
	h.installed = append(h.installed, m)
	return nil
}

func (h *Host) AddListener(l ModuleListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.listeners = append(h.listeners, l)
}

// RemoveListener drops a listener previously added with AddListener.
func (h *Host) RemoveListener(l ModuleListener) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, existing := range h.listeners {
		if existing == l {
			h.listeners = append(h.listeners[:i], h.listeners[i+1:]...)
			return
		}
	}
}

// Module returns an installed module or nil.
func (h *Host) Module(name string) *Module {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.findLocked(name)
}

// Modules returns every installed module sorted by name.
func (h *Host) Modules() []*Module {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := append([]*Module(nil), h.installed...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// LoadedModules returns the started modules in start order.
func (h *Host) LoadedModules() []*Module {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Module, 0, len(h.started))
	for _, name := range h.started {
		out = append(out, h.findLocked(name))
	}
	return out
}

// IsStarted reports whether the named module is running.
func (h *Host) IsStarted(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.isStartedLocked(name)
}

// Start migrates and activates a module, then notifies listeners. Starting a
// running module is a no-op.
func (h *Host) Start(ctx context.Context, name string) error {
	h.mu.Lock()
	m := h.findLocked(name)
	if m == nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	if h.starting[name] {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s is starting", ErrBusy, name)
	}
	if h.isStartedLocked(name) {
		h.mu.Unlock()
		return nil
	}
	for req := range m.RequiredModules {
		if !h.isStartedLocked(req) || h.starting[req] {
			h.mu.Unlock()
			return fmt.Errorf("module %s requires %s which is not started", name, req)
		}
	}
	h.starting[name] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.starting, name)
		h.mu.Unlock()
	}()

	if m.Migrate != nil {
		if err := m.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate module %s: %w", name, err)
		}
	}

	// the module counts as loaded while its activator runs, so an activator
	// scanning loaded modules sees itself
	h.mu.Lock()
	h.started = append(h.started, name)
	h.mu.Unlock()

	if m.Activator != nil {
		if err := m.Activator.Started(ctx); err != nil {
			h.mu.Lock()
			h.removeStartedLocked(name)
			h.mu.Unlock()
			return fmt.Errorf("start module %s: %w", name, err)
		}
	}

	h.logger.Info().Str("module", name).Str("version", m.Version).Msg("module started")
	for _, l := range h.snapshotListeners() {
		l.ModuleStarted(ctx, m)
	}
	return nil
}

// Stop deactivates a running module and notifies listeners. Modules that
// require it must be stopped first.
func (h *Host) Stop(ctx context.Context, name string) error {
	h.mu.Lock()
	m := h.findLocked(name)
	if m == nil {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotInstalled, name)
	}
	if h.starting[name] {
		h.mu.Unlock()
		return fmt.Errorf("%w: %s is starting", ErrBusy, name)
	}
	if !h.isStartedLocked(name) {
		h.mu.Unlock()
		return nil
	}
	for _, other := range h.started {
		if om := h.findLocked(other); om != nil && om.RequiredModuleVersion(name) != "" {
			h.mu.Unlock()
			return fmt.Errorf("module %s is required by running module %s", name, other)
		}
	}
	h.removeStartedLocked(name)
	h.mu.Unlock()

	var stopErr error
	if m.Activator != nil {
		if err := m.Activator.Stopped(ctx); err != nil {
			stopErr = fmt.Errorf("stop module %s: %w", name, err)
		}
	}

	h.logger.Info().Str("module", name).Msg("module stopped")
	for _, l := range h.snapshotListeners() {
		l.ModuleStopped(ctx, name)
	}
	return stopErr
}

// StartAll starts the named modules in order.
func (h *Host) StartAll(ctx context.Context, names []string) error {
	for _, name := range names {
		if err := h.Start(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every running module in reverse start order.
func (h *Host) StopAll(ctx context.Context) error {
	h.mu.Lock()
	names := append([]string(nil), h.started...)
	h.mu.Unlock()

	var firstErr error
	for i := len(names) - 1; i >= 0; i-- {
		if err := h.Stop(ctx, names[i]); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Refresh tells every running module's activator that the host context was
// refreshed.
func (h *Host) Refresh(ctx context.Context) error {
	for _, m := range h.LoadedModules() {
		if m.Activator == nil {
			continue
		}
		if err := m.Activator.ContextRefreshed(ctx); err != nil {
			return fmt.Errorf("refresh module %s: %w", m.Name, err)
		}
	}
	return nil
}

// RegisterRoutes mounts the admin routes of every installed module.
func (h *Host) RegisterRoutes(api *echo.Group) {
	for _, m := range h.Modules() {
		if m.Routes != nil {
			m.Routes(api)
		}
	}
}

func (h *Host) snapshotListeners() []ModuleListener {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ModuleListener(nil), h.listeners...)
}

func (h *Host) findLocked(name string) *Module {
	for _, m := range h.installed {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (h *Host) isStartedLocked(name string) bool {
	for _, s := range h.started {
		if s == name {
			return true
		}
	}
	return false
}

func (h *Host) removeStartedLocked(name string) {
	for i, s := range h.started {
		if s == name {
			h.started = append(h.started[:i], h.started[i+1:]...)
			return
		}
	}
}
