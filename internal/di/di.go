// Package di provides a minimal service container used to wire the
// bounded-context modules together. Services are registered either as
// instances or as lazy factories resolved (and memoized) on first use.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns the named service, invoking and caching its factory if it
	// was registered lazily. Panics if the service is unknown; wiring errors
	// are programmer errors and should fail fast at startup.
	Get(name string) any
	// Has reports whether a service or factory is registered under name.
	Has(name string) bool
}

// Container is the write side of the container.
type Container interface {
	ServiceRegistry
	// Register stores an already-constructed service instance.
	Register(name string, service any)
	// RegisterFactory stores a lazy constructor resolved on first Get.
	RegisterFactory(name string, factory func(ServiceRegistry) any)
}

type container struct {
	mu        sync.RWMutex
	services  map[string]any
	factories map[string]func(ServiceRegistry) any
}

// NewContainer creates an empty Container.
func NewContainer() Container {
	return &container{
		services:  make(map[string]any),
		factories: make(map[string]func(ServiceRegistry) any),
	}
}

func (c *container) Register(name string, service any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = service
	delete(c.factories, name)
}

func (c *container) RegisterFactory(name string, factory func(ServiceRegistry) any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.factories[name] = factory
}

func (c *container) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.services[name]
	if !ok {
		_, ok = c.factories[name]
	}
	return ok
}

func (c *container) Get(name string) any {
	c.mu.RLock()
	if svc, ok := c.services[name]; ok {
		c.mu.RUnlock()
		return svc
	}
	factory, ok := c.factories[name]
	c.mu.RUnlock()

	if !ok {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}

	svc := factory(c)

	c.mu.Lock()
	// Another goroutine may have resolved it first; keep the winner.
	if cached, ok := c.services[name]; ok {
		c.mu.Unlock()
		return cached
	}
	c.services[name] = svc
	delete(c.factories, name)
	c.mu.Unlock()

	return svc
}
