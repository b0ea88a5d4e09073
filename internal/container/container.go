// Package container starts and stops the parts of a node in dependency
// order.
package container

import (
	"errors"
	"fmt"
	"sync"
)

// Common errors for the container.
var (
	// ErrComponentNotFound is returned when a component is not found.
	ErrComponentNotFound = errors.New("component not found")

	// ErrComponentAlreadyRegistered is returned when a component is already registered.
	ErrComponentAlreadyRegistered = errors.New("component already registered")

	// ErrCircularDependency is returned when a circular dependency is detected.
	ErrCircularDependency = errors.New("circular dependency detected")

	// ErrContainerAlreadyStarted is returned when trying to register after start.
	ErrContainerAlreadyStarted = errors.New("container already started")

	// ErrDependencyNotFound is returned when a dependency is not found.
	ErrDependencyNotFound = errors.New("dependency not found")
)

// Component is a part of the node with a lifecycle.
type Component interface {
	Start() error
	Stop() error
}

// Func adapts a pair of functions to a Component. A nil function is a no-op.
type Func struct {
	OnStart func() error
	OnStop  func() error
}

// Start calls OnStart.
func (f Func) Start() error {
	if f.OnStart == nil {
		return nil
	}
	return f.OnStart()
}

// Stop calls OnStop.
func (f Func) Stop() error {
	if f.OnStop == nil {
		return nil
	}
	return f.OnStop()
}

type componentEntry struct {
	name         string
	component    Component
	dependencies []string
}

// Container manages component lifecycle and dependencies.
// Components are started in dependency order and stopped in reverse order.
type Container struct {
	components map[string]*componentEntry
	// registered holds names in registration order; ties in the startup
	// order are broken by it.
	registered []string

	order   []string
	started bool

	mu sync.RWMutex
}

// New creates a new Container.
func New() *Container {
	return &Container{
		components: make(map[string]*componentEntry),
	}
}

// Register adds a component with the names of the components that must be
// started before it.
func (c *Container) Register(name string, component Component, deps ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("%w: cannot register %s", ErrContainerAlreadyStarted, name)
	}
	if _, exists := c.components[name]; exists {
		return fmt.Errorf("%w: %s", ErrComponentAlreadyRegistered, name)
	}

	c.components[name] = &componentEntry{
		name:         name,
		component:    component,
		dependencies: deps,
	}
	c.registered = append(c.registered, name)
	return nil
}

// Get retrieves a component by name.
func (c *Container) Get(name string) (Component, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.components[name]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrComponentNotFound, name)
	}
	return entry.component, nil
}

// Has returns true if a component with the given name is registered.
func (c *Container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, exists := c.components[name]
	return exists
}

// Names returns the registered names in registration order.
func (c *Container) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.registered...)
}

// StartAll starts all components in dependency order. When a component
// fails to start, the ones already started are stopped in reverse order and
// the start error is returned.
func (c *Container) StartAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return nil
	}

	order, err := c.topologicalSort()
	if err != nil {
		return err
	}

	for i, name := range order {
		if err := c.components[name].component.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = c.components[order[j]].component.Stop()
			}
			return fmt.Errorf("starting %s: %w", name, err)
		}
	}

	c.order = order
	c.started = true
	return nil
}

// StopAll stops all components in reverse dependency order. Every component
// is stopped; the first error is returned.
func (c *Container) StopAll() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return nil
	}

	var firstErr error
	for i := len(c.order) - 1; i >= 0; i-- {
		name := c.order[i]
		if err := c.components[name].component.Stop(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("stopping %s: %w", name, err)
		}
	}

	c.started = false
	return firstErr
}

// IsStarted returns true if the container has been started.
func (c *Container) IsStarted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.started
}

// StartupOrder returns the order computed by the last successful StartAll,
// or nil before one.
func (c *Container) StartupOrder() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.order == nil {
		return nil
	}
	return append([]string(nil), c.order...)
}

// topologicalSort orders the components so dependencies come first.
// Must be called with c.mu held.
func (c *Container) topologicalSort() ([]string, error) {
	inDegree := make(map[string]int, len(c.components))
	graph := make(map[string][]string, len(c.components)) // dependency -> dependents

	for _, name := range c.registered {
		for _, dep := range c.components[name].dependencies {
			if _, exists := c.components[dep]; !exists {
				return nil, fmt.Errorf("%w: %s depends on %s", ErrDependencyNotFound, name, dep)
			}
			graph[dep] = append(graph[dep], name)
			inDegree[name]++
		}
	}

	// Kahn's algorithm, seeded in registration order.
	var queue []string
	for _, name := range c.registered {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(c.components))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, dependent := range graph[current] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(c.components) {
		var cyclic []string
		for _, name := range c.registered {
			if inDegree[name] > 0 {
				cyclic = append(cyclic, name)
			}
		}
		return nil, fmt.Errorf("%w: involving %v", ErrCircularDependency, cyclic)
	}
	return order, nil
}
