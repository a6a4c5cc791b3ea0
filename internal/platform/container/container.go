// Package container is a small named-component container. Each FHIR-aware
// module contributes definitions; the container instantiates them eagerly on
// Refresh, wiring dependencies by name through sibling definitions first and
// the parent resolver second.
package container

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Kind groups definitions the same way the host discovers them.
type Kind string

const (
	KindDAO              Kind = "dao"
	KindTranslator       Kind = "translator"
	KindService          Kind = "service"
	KindResourceProvider Kind = "resource-provider"
)

// Kinds lists every discoverable kind in scan order.
var Kinds = []Kind{KindDAO, KindTranslator, KindService, KindResourceProvider}

var (
	ErrNotFound     = errors.New("container: component not found")
	ErrCircular     = errors.New("container: circular dependency")
	ErrTypeMismatch = errors.New("container: component has unexpected type")
)

// Resolver looks up a component by name.
type Resolver interface {
	Resolve(name string) (any, error)
}

// Definition describes one component. Component=false marks a type that was
// declared by a module but is not eligible for registration.
type Definition struct {
	Name      string
	Kind      Kind
	Component bool
	New       func(r Resolver) (any, error)
}

// Starter is implemented by components that need to run work on Start.
type Starter interface {
	Start(ctx context.Context) error
}

// Stopper is implemented by components that release resources on Stop.
type Stopper interface {
	Stop(ctx context.Context) error
}

// Values is a fixed resolver, typically holding the host's shared
// infrastructure (pools, ORM handle, logger, config).
type Values map[string]any

func (v Values) Resolve(name string) (any, error) {
	if inst, ok := v[name]; ok {
		return inst, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Container holds definitions and the singletons built from them.
type Container struct {
	mu        sync.RWMutex
	parent    Resolver
	defs      []Definition
	instances map[string]any
	running   bool
}

// New creates an empty container. parent may be nil.
func New(parent Resolver) *Container {
	return &Container{
		parent:    parent,
		instances: map[string]any{},
	}
}

// Register adds definitions. A definition with an existing name replaces the
// previous one in place.
func (c *Container) Register(defs ...Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range defs {
		c.defs = upsert(c.defs, d)
	}
}

// Replace swaps the whole definition set. Instances are kept until the next
// Refresh.
func (c *Container) Replace(defs []Definition) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.defs = nil
	for _, d := range defs {
		c.defs = upsert(c.defs, d)
	}
}

func upsert(defs []Definition, d Definition) []Definition {
	for i := range defs {
		if defs[i].Name == d.Name {
			defs[i] = d
			return defs
		}
	}
	return append(defs, d)
}

// Refresh drops every singleton and builds the current definitions again.
// A running container stops the old instances first and starts the new ones.
func (c *Container) Refresh(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		if err := c.stopLocked(ctx); err != nil {
			return err
		}
	}

	b := &builder{
		defs:      map[string]Definition{},
		parent:    c.parent,
		instances: map[string]any{},
		building:  map[string]bool{},
	}
	for _, d := range c.defs {
		b.defs[d.Name] = d
	}
	for _, d := range c.defs {
		if _, err := b.Resolve(d.Name); err != nil {
			c.instances = map[string]any{}
			return err
		}
	}
	c.instances = b.instances

	if c.running {
		return c.startLocked(ctx)
	}
	return nil
}

// Start calls Start on every instance implementing Starter, in registration order.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := c.startLocked(ctx); err != nil {
		return err
	}
	c.running = true
	return nil
}

// Stop calls Stop on every instance implementing Stopper, in reverse order.
func (c *Container) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return nil
	}
	c.running = false
	return c.stopLocked(ctx)
}

// Running reports whether Start has been called without a matching Stop.
func (c *Container) Running() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

func (c *Container) startLocked(ctx context.Context) error {
	for _, d := range c.defs {
		if s, ok := c.instances[d.Name].(Starter); ok {
			if err := s.Start(ctx); err != nil {
				return fmt.Errorf("start %s: %w", d.Name, err)
			}
		}
	}
	return nil
}

func (c *Container) stopLocked(ctx context.Context) error {
	var errs []error
	for i := len(c.defs) - 1; i >= 0; i-- {
		name := c.defs[i].Name
		if s, ok := c.instances[name].(Stopper); ok {
			if err := s.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Resolve returns a built instance, falling back to the parent resolver.
func (c *Container) Resolve(name string) (any, error) {
	c.mu.RLock()
	inst, ok := c.instances[name]
	parent := c.parent
	c.mu.RUnlock()
	if ok {
		return inst, nil
	}
	if parent != nil {
		return parent.Resolve(name)
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// OfKind returns the built instances of a kind in registration order.
func (c *Container) OfKind(kind Kind) []any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []any
	for _, d := range c.defs {
		if d.Kind != kind {
			continue
		}
		if inst, ok := c.instances[d.Name]; ok {
			out = append(out, inst)
		}
	}
	return out
}

// Names returns the registered definition names in registration order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, len(c.defs))
	for i, d := range c.defs {
		names[i] = d.Name
	}
	return names
}

// Definitions returns a copy of the registered definitions.
func (c *Container) Definitions() []Definition {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Definition(nil), c.defs...)
}

// Get resolves name and asserts it to T.
func Get[T any](r Resolver, name string) (T, error) {
	var zero T
	inst, err := r.Resolve(name)
	if err != nil {
		return zero, err
	}
	v, ok := inst.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s is %T, want %T", ErrTypeMismatch, name, inst, zero)
	}
	return v, nil
}

// builder resolves definitions during a single Refresh.
type builder struct {
	defs      map[string]Definition
	parent    Resolver
	instances map[string]any
	building  map[string]bool
	chain     []string
}

func (b *builder) Resolve(name string) (any, error) {
	if inst, ok := b.instances[name]; ok {
		return inst, nil
	}
	d, ok := b.defs[name]
	if !ok {
		if b.parent != nil {
			return b.parent.Resolve(name)
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if b.building[name] {
		return nil, fmt.Errorf("%w: %s -> %s", ErrCircular, strings.Join(b.chain, " -> "), name)
	}
	if d.New == nil {
		return nil, fmt.Errorf("container: %s has no constructor", name)
	}

	b.building[name] = true
	b.chain = append(b.chain, name)
	inst, err := d.New(b)
	b.chain = b.chain[:len(b.chain)-1]
	delete(b.building, name)
	if err != nil {
		if errors.Is(err, ErrCircular) {
			return nil, err
		}
		return nil, fmt.Errorf("create %s: %w", name, err)
	}
	b.instances[name] = inst
	return inst, nil
}
