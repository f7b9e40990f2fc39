// Package ritual runs guided multi-step rituals. The engine owns a catalog
// of immutable definitions and at most one in-progress run across the whole
// process, and emits every state change through the bus.
package ritual

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

// Caller errors. These are usage mistakes and are surfaced synchronously;
// they never mutate engine state.
var (
	// ErrNotFound means the requested ritual id is not in the catalog.
	ErrNotFound = errors.New("ritual not found")

	// ErrAlreadyActive means a run is already in progress.
	ErrAlreadyActive = errors.New("ritual already active")

	// ErrNoActiveRun means there is no run to advance or abandon.
	ErrNoActiveRun = errors.New("no active ritual")
)

// ActiveRun is one in-progress execution of a ritual. The engine owns the
// live instance exclusively; accessors hand out copies.
//
// Invariant: 0 <= CurrentStepIndex <= len(Definition.Steps).
type ActiveRun struct {
	RunID            string
	RitualID         string
	Definition       core.RitualDefinition
	CurrentStepIndex int
	StartedAt        time.Time
	StepsCompleted   []string
}

// Log is one persisted completion record. Written once, on successful
// completion only; abandonment leaves no record. ConstellationID is the
// constellation that was active when the run completed, or empty.
type Log struct {
	ID              string
	RitualID        string
	ConstellationID string
	CompletedAt     time.Time
	DurationSeconds int
	StepsCompleted  []string
}

// Engine is the ritual state machine:
//
//	Idle -> Running(step 0..N) -> {Completed | Abandoned} -> Idle
//
// All methods must be called from the owning goroutine; in-memory
// transitions are synchronous and atomic under the single-threaded model.
// Persistence of completion records is asynchronous and best-effort.
type Engine struct {
	bus           *core.Bus
	store         storage.Store
	queue         *storage.Queue
	contextSource core.ContextSource

	catalog map[string]core.RitualDefinition
	order   []string
	active  *ActiveRun
}

// NewEngine loads the definitions into the catalog. Later definitions with a
// duplicate id replace earlier ones. Storage is optional; without it,
// completions simply leave no history. The context source is optional too;
// when present, completions are stamped with the active constellation.
func NewEngine(bus *core.Bus, definitions []core.RitualDefinition, store storage.Store, queue *storage.Queue, contextSource core.ContextSource) *Engine {
	e := &Engine{
		bus:           bus,
		store:         store,
		queue:         queue,
		contextSource: contextSource,
		catalog:       make(map[string]core.RitualDefinition, len(definitions)),
	}

	for _, def := range definitions {
		if _, exists := e.catalog[def.ID]; !exists {
			e.order = append(e.order, def.ID)
		}
		e.catalog[def.ID] = def
	}

	log.Printf("[Ritual] loaded %d ritual definitions", len(e.catalog))
	return e
}

// Definitions returns the catalog in load order.
func (e *Engine) Definitions() []core.RitualDefinition {
	defs := make([]core.RitualDefinition, 0, len(e.order))
	for _, id := range e.order {
		defs = append(defs, e.catalog[id])
	}
	return defs
}

// Definition looks up a single catalog entry.
func (e *Engine) Definition(ritualID string) (core.RitualDefinition, bool) {
	def, ok := e.catalog[ritualID]
	return def, ok
}

// Active returns a copy of the in-progress run, or false when idle.
func (e *Engine) Active() (ActiveRun, bool) {
	if e.active == nil {
		return ActiveRun{}, false
	}

	run := *e.active
	run.StepsCompleted = append([]string(nil), e.active.StepsCompleted...)
	return run, true
}

// StartRitual begins a new run of the given ritual and returns the fresh run
// id. Fails with ErrNotFound for unknown ids and ErrAlreadyActive when a run
// is in progress; neither failure mutates the existing run.
func (e *Engine) StartRitual(ritualID string) (string, error) {
	definition, ok := e.catalog[ritualID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ritualID)
	}
	if e.active != nil {
		return "", fmt.Errorf("%w: %s", ErrAlreadyActive, e.active.RitualID)
	}

	runID := uuid.New().String()
	e.active = &ActiveRun{
		RunID:          runID,
		RitualID:       ritualID,
		Definition:     definition,
		StartedAt:      time.Now(),
		StepsCompleted: []string{},
	}

	e.bus.Publish(core.NewEvent(core.EventRitualStarted, core.RitualStartedPayload{
		RitualID: ritualID,
		RunID:    runID,
		Steps:    definition.Steps,
	}))
	return runID, nil
}

// CompleteStep finishes the current step. The step index is advanced before
// the step-completed event is published, so any listener reading engine
// state during that event sees the post-advance index. That ordering is a
// contract, not an accident. Completing the final step immediately and
// synchronously completes the run.
func (e *Engine) CompleteStep() error {
	if e.active == nil {
		return ErrNoActiveRun
	}

	steps := e.active.Definition.Steps
	if e.active.CurrentStepIndex >= len(steps) {
		return fmt.Errorf("no step at index %d", e.active.CurrentStepIndex)
	}

	step := steps[e.active.CurrentStepIndex]
	completedIndex := e.active.CurrentStepIndex
	e.active.StepsCompleted = append(e.active.StepsCompleted, step.ID)
	e.active.CurrentStepIndex++

	e.bus.Publish(core.NewEvent(core.EventRitualStepCompleted, core.RitualStepCompletedPayload{
		RitualID:  e.active.RitualID,
		RunID:     e.active.RunID,
		StepID:    step.ID,
		StepIndex: completedIndex,
	}))

	if e.active != nil && e.active.CurrentStepIndex >= len(steps) {
		e.completeRun()
	}
	return nil
}

// completeRun publishes exactly one ritual-completed event, schedules the
// history write, and clears the run. The write is best-effort; a failure is
// logged and does not roll back the already-emitted event.
func (e *Engine) completeRun() {
	run := e.active
	now := time.Now()
	totalDuration := int(now.Sub(run.StartedAt).Seconds())

	var constellationID string
	if e.contextSource != nil {
		constellationID = e.contextSource.Snapshot().ActiveConstellationID
	}

	e.bus.Publish(core.NewEvent(core.EventRitualCompleted, core.RitualCompletedPayload{
		RitualID:        run.RitualID,
		RunID:           run.RunID,
		TotalDuration:   totalDuration,
		CompletedAt:     now,
		ConstellationID: constellationID,
	}))

	e.persistCompletion(Log{
		RitualID:        run.RitualID,
		ConstellationID: constellationID,
		CompletedAt:     now,
		DurationSeconds: totalDuration,
		StepsCompleted:  append([]string(nil), run.StepsCompleted...),
	})

	e.active = nil
}

func (e *Engine) persistCompletion(entry Log) {
	if e.store == nil || e.queue == nil {
		return
	}
	e.queue.Enqueue("ritual completion write", func(ctx context.Context) error {
		record, err := logToRecord(entry)
		if err != nil {
			return err
		}
		_, err = e.store.Insert(ctx, storage.TableRitualLogs, record)
		return err
	})
}

// AbandonRitual gives up the in-progress run. No history record is written;
// history only records completions.
func (e *Engine) AbandonRitual() error {
	if e.active == nil {
		return ErrNoActiveRun
	}

	run := e.active
	e.bus.Publish(core.NewEvent(core.EventRitualAbandoned, core.RitualAbandonedPayload{
		RitualID:       run.RitualID,
		RunID:          run.RunID,
		StepsCompleted: len(run.StepsCompleted),
	}))

	e.active = nil
	return nil
}

// History returns completion records, optionally filtered by ritual id.
// Without storage, or when the read fails, it degrades to an empty result.
func (e *Engine) History(ctx context.Context, ritualID string) []Log {
	if e.store == nil {
		return nil
	}

	var filter storage.Record
	if ritualID != "" {
		filter = storage.Record{"ritual_id": ritualID}
	}

	records, err := e.store.Query(ctx, storage.TableRitualLogs, filter)
	if err != nil {
		log.Printf("[Ritual] failed to read history: %v", err)
		return nil
	}

	logs := make([]Log, 0, len(records))
	for _, record := range records {
		entry, err := recordToLog(record)
		if err != nil {
			log.Printf("[Ritual] skipping malformed history record: %v", err)
			continue
		}
		logs = append(logs, entry)
	}
	return logs
}
