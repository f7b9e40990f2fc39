// Package app wires the LemOS modules together. Instead of ambient global
// singletons, constructed module instances are registered in an explicit
// container and handed to whoever needs them.
package app

import (
	"fmt"
	"log"

	"github.com/lemos-dev/lemos/pkg/core"
)

// Stopper is implemented by modules that hold live resources (timers,
// scheduled jobs, bus subscriptions) needing explicit release.
type Stopper interface {
	Stop()
}

// App maps module identifiers to constructed instances. Registration order
// is remembered so shutdown can release modules in reverse.
type App struct {
	bus     *core.Bus
	modules map[string]any
	order   []string
}

// New creates an empty container around the shared bus.
func New(bus *core.Bus) *App {
	return &App{
		bus:     bus,
		modules: make(map[string]any),
	}
}

// Bus returns the shared event bus.
func (a *App) Bus() *core.Bus {
	return a.bus
}

// Register adds a module under an identifier. Duplicate identifiers are a
// wiring mistake and fail loudly.
func (a *App) Register(id string, module any) error {
	if id == "" {
		return fmt.Errorf("module id cannot be empty")
	}
	if _, exists := a.modules[id]; exists {
		return fmt.Errorf("module already registered: %s", id)
	}

	a.modules[id] = module
	a.order = append(a.order, id)
	log.Printf("[App] registered module: %s", id)
	return nil
}

// Module looks up a registered instance by id.
func (a *App) Module(id string) (any, bool) {
	module, ok := a.modules[id]
	return module, ok
}

// Shutdown stops every Stopper module in reverse registration order.
func (a *App) Shutdown() {
	for i := len(a.order) - 1; i >= 0; i-- {
		id := a.order[i]
		if stopper, ok := a.modules[id].(Stopper); ok {
			stopper.Stop()
			log.Printf("[App] stopped module: %s", id)
		}
	}
}
