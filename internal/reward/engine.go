// Package reward accrues the gamified energy currency and experience from
// tick and completion events. XP is ground truth; level is always recomputed
// from it, never independently stored.
package reward

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

// stateStorageKey holds the persisted snapshot blob.
const stateStorageKey = "lemos.reward.state"

// moduleID identifies this module in state_hydrated events.
const moduleID = "reward"

// Reward is the energy/xp delta granted for completing one ritual.
type Reward struct {
	Energy int `yaml:"energy"`
	XP     int `yaml:"xp"`
}

// State is the persisted snapshot. Level is included for consumers reading
// the blob directly but is derived from XP on load.
type State struct {
	Energy    int       `json:"energy"`
	XP        int       `json:"xp"`
	Level     int       `json:"level"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Options tune accrual. Zero values select the defaults: 1 energy per tick
// and the built-in ritual reward table.
type Options struct {
	EnergyPerTick int
	Rewards       map[string]Reward
}

// defaultRewards is the static table keyed by ritual id. Unknown ids earn
// nothing.
var defaultRewards = map[string]Reward{
	"morning-anchor": {Energy: 15, XP: 20},
}

// Engine listens for session ticks and ritual completions and keeps the
// running energy/xp totals. Every mutation triggers a best-effort persisted
// snapshot; on construction the engine hydrates from a prior snapshot and
// announces the result so UI consumers know when initial state is
// trustworthy.
type Engine struct {
	bus   *core.Bus
	store storage.Store
	queue *storage.Queue

	mu            sync.Mutex
	energy        int
	xp            int
	hydrated      bool
	energyPerTick int
	rewards       map[string]Reward
	subs          []*core.Subscription
}

// NewEngine builds the engine, hydrates any persisted state, and subscribes
// to the bus. Storage is optional; without it the totals are memory-only.
func NewEngine(bus *core.Bus, store storage.Store, queue *storage.Queue, opts Options) *Engine {
	if opts.EnergyPerTick <= 0 {
		opts.EnergyPerTick = 1
	}
	if opts.Rewards == nil {
		opts.Rewards = defaultRewards
	}

	e := &Engine{
		bus:           bus,
		store:         store,
		queue:         queue,
		energyPerTick: opts.EnergyPerTick,
		rewards:       opts.Rewards,
	}

	e.hydrate()

	e.subs = []*core.Subscription{
		bus.Subscribe(core.EventSessionTick, func(event core.Event) error {
			payload, ok := event.Payload.(core.SessionTickPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			e.addEnergy(e.energyPerTick, "tick-"+payload.SessionID)
			return nil
		}),
		bus.Subscribe(core.EventRitualCompleted, func(event core.Event) error {
			payload, ok := event.Payload.(core.RitualCompletedPayload)
			if !ok {
				return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
			}
			e.applyRitualReward(payload.RitualID)
			return nil
		}),
	}

	return e
}

// hydrate loads the persisted snapshot and publishes the hydration result.
func (e *Engine) hydrate() {
	if e.store == nil {
		e.hydrated = true
		e.publishHydrated(true)
		return
	}

	value, err := e.store.Get(context.Background(), stateStorageKey)
	if err != nil {
		if storage.IsNotFound(err) {
			e.hydrated = true
			e.publishHydrated(true)
			return
		}
		log.Printf("[Reward] failed to load state: %v", err)
		e.publishHydrated(false)
		return
	}

	var state State
	if err := json.Unmarshal([]byte(value), &state); err != nil {
		log.Printf("[Reward] failed to decode state: %v", err)
		e.publishHydrated(false)
		return
	}

	e.energy = state.Energy
	e.xp = state.XP
	e.hydrated = true
	e.publishHydrated(true)

	// Announce the restored total so displays start from real state.
	e.bus.Publish(core.NewEvent(core.EventEnergyUpdated, core.EnergyUpdatedPayload{
		Current: e.energy,
		Delta:   0,
		Source:  "hydration",
	}))
}

func (e *Engine) publishHydrated(success bool) {
	e.bus.Publish(core.NewEvent(core.EventStateHydrated, core.StateHydratedPayload{
		Module:  moduleID,
		Success: success,
	}))
}

// addEnergy applies an energy delta, announces the new total, and schedules
// a snapshot write.
func (e *Engine) addEnergy(amount int, source string) {
	e.mu.Lock()
	e.energy += amount
	current := e.energy
	e.mu.Unlock()

	e.bus.Publish(core.NewEvent(core.EventEnergyUpdated, core.EnergyUpdatedPayload{
		Current: current,
		Delta:   amount,
		Source:  source,
	}))

	e.saveState()
}

// addXP applies an experience delta and schedules a snapshot write.
func (e *Engine) addXP(amount int) {
	e.mu.Lock()
	previousLevel := levelFor(e.xp)
	e.xp += amount
	newLevel := levelFor(e.xp)
	e.mu.Unlock()

	if newLevel > previousLevel {
		log.Printf("[Reward] level up: now level %d", newLevel)
	}

	e.saveState()
}

// applyRitualReward grants the static reward for the ritual, if any.
func (e *Engine) applyRitualReward(ritualID string) {
	grant := e.rewards[ritualID]
	if grant.Energy > 0 {
		e.addEnergy(grant.Energy, "ritual-"+ritualID)
	}
	if grant.XP > 0 {
		e.addXP(grant.XP)
	}
}

// levelFor is the level function: 1 + floor(xp/100).
func levelFor(xp int) int {
	return 1 + xp/100
}

func (e *Engine) saveState() {
	if e.store == nil || e.queue == nil {
		return
	}

	e.mu.Lock()
	state := State{
		Energy:    e.energy,
		XP:        e.xp,
		Level:     levelFor(e.xp),
		UpdatedAt: time.Now(),
	}
	e.mu.Unlock()

	e.queue.Enqueue("reward state write", func(ctx context.Context) error {
		blob, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to marshal reward state: %w", err)
		}
		return e.store.Set(ctx, stateStorageKey, string(blob))
	})
}

// Energy returns the current energy total.
func (e *Engine) Energy() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.energy
}

// XP returns the current experience total.
func (e *Engine) XP() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.xp
}

// Level returns the level derived from the current XP.
func (e *Engine) Level() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return levelFor(e.xp)
}

// Hydrated reports whether initial state loaded successfully.
func (e *Engine) Hydrated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hydrated
}

// Stop removes the bus subscriptions.
func (e *Engine) Stop() {
	for _, sub := range e.subs {
		sub.Close()
	}
	e.subs = nil
}
