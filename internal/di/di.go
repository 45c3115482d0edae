// Package di provides a minimal string-keyed service container used to wire
// bounded-context modules together at startup. Each context defines typed
// getters over ServiceRegistry in its own di package.
package di

import (
	"fmt"
	"sync"
)

// ServiceRegistry is the read side of the container.
type ServiceRegistry interface {
	// Get returns the service registered under name, or nil.
	Get(name string) any
}

// Container registers and resolves services by name.
type Container interface {
	ServiceRegistry
	// Register stores svc under name, replacing any previous registration.
	Register(name string, svc any)
}

type container struct {
	mu       sync.RWMutex
	services map[string]any
}

// NewContainer creates an empty Container.
func NewContainer() Container {
	return &container{services: make(map[string]any)}
}

func (c *container) Register(name string, svc any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.services[name] = svc
}

func (c *container) Get(name string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.services[name]
}

// MustGet returns the service under name or panics. Intended for startup
// wiring where a missing registration is a programming error.
func MustGet[T any](s ServiceRegistry, name string) T {
	svc := s.Get(name)
	if svc == nil {
		panic(fmt.Sprintf("di: service %q not registered", name))
	}
	typed, ok := svc.(T)
	if !ok {
		panic(fmt.Sprintf("di: service %q has unexpected type %T", name, svc))
	}
	return typed
}
