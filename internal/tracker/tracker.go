// Package tracker owns the single live GlobalContext for the process: which
// constellation, ritual run, scene, and planetary mode are currently active.
// It keeps itself current by subscribing to the bus, and hands out defensive
// snapshot copies to everyone else.
package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

// planetaryModeStorageKey is where the mode survives across processes.
const planetaryModeStorageKey = "lemos.planetaryMode"

const (
	defaultIdleTimeout   = 2 * time.Hour
	defaultSweepSchedule = "@every 10m"
)

// Options tune the idle-timeout sweep. Zero values select the defaults
// (2 hour timeout, checked every 10 minutes).
type Options struct {
	IdleTimeout   time.Duration
	SweepSchedule string
}

// Manager tracks the global context. Construct with NewManager and release
// with Stop; the idle sweep is a live scheduled job that nothing else will
// cancel.
//
// Storage is optional. When present, planetary mode changes are persisted
// fire-and-forget and the prior mode is loaded on construction; when absent
// the manager degrades silently to the in-memory default.
type Manager struct {
	bus   *core.Bus
	store storage.Store
	queue *storage.Queue

	mu           sync.Mutex
	state        core.GlobalContext
	lastActivity time.Time

	idleTimeout time.Duration
	sweeper     *cron.Cron
	subs        []*core.Subscription
	stopOnce    sync.Once
}

// NewManager builds the manager, loads any persisted planetary mode, wires
// the bus subscriptions, and starts the idle-timeout sweep. The persisted
// mode is loaded before any subscription is registered, so no event can race
// the initial state.
func NewManager(bus *core.Bus, store storage.Store, queue *storage.Queue, opts Options) (*Manager, error) {
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = defaultIdleTimeout
	}
	if opts.SweepSchedule == "" {
		opts.SweepSchedule = defaultSweepSchedule
	}

	m := &Manager{
		bus:   bus,
		store: store,
		queue: queue,
		state: core.GlobalContext{
			PlanetaryMode: core.DefaultPlanetaryMode,
			Timestamp:     time.Now(),
		},
		lastActivity: time.Now(),
		idleTimeout:  opts.IdleTimeout,
	}

	m.loadPlanetaryMode()
	m.subscribe()

	m.sweeper = cron.New()
	if _, err := m.sweeper.AddFunc(opts.SweepSchedule, m.sweep); err != nil {
		m.closeSubscriptions()
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", opts.SweepSchedule, err)
	}
	m.sweeper.Start()

	return m, nil
}

// loadPlanetaryMode hydrates the mode from storage, if any.
func (m *Manager) loadPlanetaryMode() {
	if m.store == nil {
		log.Printf("[Context] no storage provided, using default planetary mode")
		return
	}

	value, err := m.store.Get(context.Background(), planetaryModeStorageKey)
	if err != nil {
		if !storage.IsNotFound(err) {
			log.Printf("[Context] failed to load planetary mode: %v", err)
		}
		return
	}

	mode := core.PlanetaryMode(value)
	if err := mode.Validate(); err != nil {
		log.Printf("[Context] ignoring stored planetary mode: %v", err)
		return
	}
	m.state.PlanetaryMode = mode
}

func (m *Manager) subscribe() {
	m.subs = []*core.Subscription{
		m.bus.Subscribe(core.EventConstellationSelected, func(event core.Event) error {
			payload, ok := event.Payload.(core.ConstellationSelectedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			m.SetActiveConstellation(payload.ID)
			return nil
		}),
		m.bus.Subscribe(core.EventRitualStarted, func(event core.Event) error {
			payload, ok := event.Payload.(core.RitualStartedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			m.SetActiveRitual(payload.RitualID, payload.RunID)
			return nil
		}),
		m.bus.Subscribe(core.EventRitualCompleted, func(event core.Event) error {
			payload, ok := event.Payload.(core.RitualCompletedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			m.clearRitualIfCurrent(payload.RunID)
			return nil
		}),
		m.bus.Subscribe(core.EventRitualAbandoned, func(event core.Event) error {
			payload, ok := event.Payload.(core.RitualAbandonedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			m.clearRitualIfCurrent(payload.RunID)
			return nil
		}),
		m.bus.Subscribe(core.EventSceneChanged, func(event core.Event) error {
			payload, ok := event.Payload.(core.SceneChangedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			m.SetActiveScene(payload.SceneID)
			return nil
		}),
		m.bus.Subscribe(core.EventPlanetaryModeChanged, func(event core.Event) error {
			payload, ok := event.Payload.(core.PlanetaryModeChangedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			return m.SetPlanetaryMode(payload.Mode)
		}),
	}
}

// Snapshot returns a copy of the current context. The copy is fully detached;
// callers cannot mutate manager state through it.
func (m *Manager) Snapshot() core.GlobalContext {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// SetActiveConstellation records the active constellation. An empty id
// clears the field.
func (m *Manager) SetActiveConstellation(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ActiveConstellationID = id
	m.touch()
}

// SetActiveRitual records the active ritual definition and run. Empty ids
// clear the fields.
func (m *Manager) SetActiveRitual(ritualID, runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ActiveRitualID = ritualID
	m.state.ActiveRitualRunID = runID
	m.touch()
}

// clearRitualIfCurrent clears the active-ritual fields only if the ended
// run matches the one being tracked. A stale or duplicate end event for an
// older run must not clobber a newer one.
func (m *Manager) clearRitualIfCurrent(runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state.ActiveRitualRunID != runID {
		return
	}
	m.state.ActiveRitualID = ""
	m.state.ActiveRitualRunID = ""
	m.touch()
}

// SetActiveScene records the active scene. An empty id clears the field.
func (m *Manager) SetActiveScene(sceneID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.ActiveSceneID = sceneID
	m.touch()
}

// SetPlanetaryMode switches the mode and persists it fire-and-forget.
func (m *Manager) SetPlanetaryMode(mode core.PlanetaryMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.state.PlanetaryMode = mode
	m.touch()
	m.mu.Unlock()

	m.persistPlanetaryMode(mode)
	return nil
}

func (m *Manager) persistPlanetaryMode(mode core.PlanetaryMode) {
	if m.store == nil || m.queue == nil {
		return
	}
	m.queue.Enqueue("planetary mode write", func(ctx context.Context) error {
		return m.store.Set(ctx, planetaryModeStorageKey, string(mode))
	})
}

// ClearContext resets every field to its default with a fresh timestamp.
func (m *Manager) ClearContext() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clearLocked()
}

func (m *Manager) clearLocked() {
	m.state = core.GlobalContext{
		PlanetaryMode: core.DefaultPlanetaryMode,
	}
	m.touch()
}

// touch stamps the last-mutation time. Callers hold m.mu.
func (m *Manager) touch() {
	now := time.Now()
	m.lastActivity = now
	m.state.Timestamp = now
}

// sweep clears the context when nothing has touched it for longer than the
// idle timeout. Runs on the sweeper's schedule.
func (m *Manager) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastActivity) <= m.idleTimeout {
		return
	}

	log.Printf("[Context] idle timeout: auto-clearing stale context")
	m.clearLocked()
}

func (m *Manager) closeSubscriptions() {
	for _, sub := range m.subs {
		sub.Close()
	}
	m.subs = nil
}

// Stop cancels the idle sweep and removes the bus subscriptions. The manager
// must not be used afterwards. Safe to call multiple times.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		ctx := m.sweeper.Stop()
		<-ctx.Done()
		m.closeSubscriptions()
	})
}
