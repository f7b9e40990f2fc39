// Package core provides the shared coordination types for LemOS: the event
// bus every module communicates through, the typed event payloads, and the
// global context snapshot used to correlate activity across modules.
//
// Modules never call each other directly. A module mutates its own state,
// publishes an event, and other modules react to it. The bus is synchronous
// and in-process; persistence is a separate, best-effort concern.
package core

import (
	"time"

	"github.com/google/uuid"
)

// Event type names published on the bus. Payload shape is keyed by type;
// see the corresponding *Payload structs.
const (
	EventSessionStarted = "session_started"
	EventSessionTick    = "session_tick"
	EventSessionEnded   = "session_ended"

	EventRitualStarted       = "ritual_started"
	EventRitualStepCompleted = "ritual_step_completed"
	EventRitualCompleted     = "ritual_completed"
	EventRitualAbandoned     = "ritual_abandoned"

	EventConstellationCreated  = "constellation_created"
	EventConstellationUpdated  = "constellation_updated"
	EventConstellationArchived = "constellation_archived"
	EventConstellationSelected = "constellation_selected"

	EventSceneChanged         = "scene_changed"
	EventPlanetaryModeChanged = "planetary_mode_changed"

	EventEnergyUpdated = "energy_updated"
	EventStateHydrated = "state_hydrated"

	EventNoteCreated   = "note_created"
	EventTaskCompleted = "task_completed"

	EventRitualCreated = "ritual_created"
	EventRitualUpdated = "ritual_updated"
	EventRitualDeleted = "ritual_deleted"
)

// Event is a single immutable message on the bus. ID and Timestamp are
// assigned when the event is built and are never reused. The bus does not
// store events; delivery is fire-and-forget.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent builds an event with a fresh UUID and the current time.
func NewEvent(eventType string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   payload,
	}
}

// RitualStep is one prompted step inside a ritual definition.
type RitualStep struct {
	ID           string `json:"id" yaml:"id"`
	Prompt       string `json:"prompt" yaml:"prompt"`
	DurationHint int    `json:"duration_hint" yaml:"duration_hint"` // seconds
}

// RitualDefinition describes a named, ordered sequence of steps. Definitions
// are immutable once loaded into the engine's catalog.
type RitualDefinition struct {
	ID          string       `json:"id" yaml:"id"`
	Name        string       `json:"name" yaml:"name"`
	Description string       `json:"description" yaml:"description"`
	Steps       []RitualStep `json:"steps" yaml:"steps"`
}

// SessionStartedPayload is published when a focus session begins.
type SessionStartedPayload struct {
	SessionID        string `json:"session_id"`
	IntendedDuration int    `json:"intended_duration"` // seconds
	ConstellationID  string `json:"constellation_id,omitempty"`
}

// SessionTickPayload is published once per second while a session runs.
type SessionTickPayload struct {
	SessionID string `json:"session_id"`
	Remaining int    `json:"remaining"` // seconds
	Elapsed   int    `json:"elapsed"`   // seconds
}

// SessionEndedPayload is published when a session stops, whether it ran to
// completion or was cut short. ConstellationID is empty for sessions with no
// constellation association.
type SessionEndedPayload struct {
	SessionID        string `json:"session_id"`
	IntendedDuration int    `json:"intended_duration"` // seconds
	ActualDuration   int    `json:"actual_duration"`   // seconds
	WasCompleted     bool   `json:"was_completed"`
	ConstellationID  string `json:"constellation_id,omitempty"`
}

// RitualStartedPayload carries the full step list so listeners can render
// the run without querying the engine.
type RitualStartedPayload struct {
	RitualID string       `json:"ritual_id"`
	RunID    string       `json:"run_id"`
	Steps    []RitualStep `json:"steps"`
}

// RitualStepCompletedPayload reports the step that was just finished.
// StepIndex is the index of the completed step; the engine has already
// advanced past it when this event is delivered.
type RitualStepCompletedPayload struct {
	RitualID  string `json:"ritual_id"`
	RunID     string `json:"run_id"`
	StepID    string `json:"step_id"`
	StepIndex int    `json:"step_index"`
}

// RitualCompletedPayload is published exactly once per successful run.
// ConstellationID carries the constellation that was active at completion
// time, or empty when none was.
type RitualCompletedPayload struct {
	RitualID        string    `json:"ritual_id"`
	RunID           string    `json:"run_id"`
	TotalDuration   int       `json:"total_duration"` // seconds
	CompletedAt     time.Time `json:"completed_at"`
	ConstellationID string    `json:"constellation_id,omitempty"`
}

// RitualAbandonedPayload is published when a run is given up partway.
// Abandoned runs leave no history record.
type RitualAbandonedPayload struct {
	RitualID       string `json:"ritual_id"`
	RunID          string `json:"run_id"`
	StepsCompleted int    `json:"steps_completed"`
}

// EnergyUpdatedPayload carries the new energy total after an accrual.
type EnergyUpdatedPayload struct {
	Current int    `json:"current"`
	Delta   int    `json:"delta"`
	Source  string `json:"source"`
}

// StateHydratedPayload signals whether a module's persisted state loaded
// successfully, so UI consumers know when initial state is trustworthy.
type StateHydratedPayload struct {
	Module  string `json:"module"`
	Success bool   `json:"success"`
}

// ConstellationCreatedPayload announces a new constellation.
type ConstellationCreatedPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Icon  string `json:"icon"`
}

// ConstellationUpdatedPayload carries the merged-in changes.
type ConstellationUpdatedPayload struct {
	ID      string            `json:"id"`
	Changes map[string]string `json:"changes"`
}

// ConstellationArchivedPayload announces a soft-delete.
type ConstellationArchivedPayload struct {
	ID string `json:"id"`
}

// ConstellationSelectedPayload sets or clears (empty ID) the active
// constellation in the global context.
type ConstellationSelectedPayload struct {
	ID string `json:"id"`
}

// SceneChangedPayload sets or clears (empty ID) the active scene.
type SceneChangedPayload struct {
	SceneID string `json:"scene_id"`
}

// PlanetaryModeChangedPayload switches the global planetary mode.
type PlanetaryModeChangedPayload struct {
	Mode PlanetaryMode `json:"mode"`
}

// NoteCreatedPayload is published by the journaling surface.
type NoteCreatedPayload struct {
	NoteID    string    `json:"note_id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// TaskCompletedPayload is published when a task is ticked off.
type TaskCompletedPayload struct {
	TaskID      string    `json:"task_id"`
	CompletedAt time.Time `json:"completed_at"`
}

// RitualCreatedPayload announces a new ritual template.
type RitualCreatedPayload struct {
	RitualID string   `json:"ritual_id"`
	Name     string   `json:"name"`
	Tags     []string `json:"tags,omitempty"`
}

// RitualUpdatedPayload carries a summary of template changes.
type RitualUpdatedPayload struct {
	RitualID string `json:"ritual_id"`
}

// RitualDeletedPayload announces a template deletion.
type RitualDeletedPayload struct {
	RitualID string `json:"ritual_id"`
}
