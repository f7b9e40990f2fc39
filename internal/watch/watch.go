// Package watch renders live bus traffic as human-readable lines, one per
// event. It powers the CLI's watch mode.
package watch

import (
	"fmt"
	"io"
	"time"

	"github.com/lemos-dev/lemos/pkg/core"
)

// watchedEventTypes is everything the renderer subscribes to. Session ticks
// are deliberately excluded: one line per second would drown the rest.
var watchedEventTypes = []string{
	core.EventSessionStarted,
	core.EventSessionEnded,
	core.EventRitualStarted,
	core.EventRitualStepCompleted,
	core.EventRitualCompleted,
	core.EventRitualAbandoned,
	core.EventConstellationCreated,
	core.EventConstellationUpdated,
	core.EventConstellationArchived,
	core.EventConstellationSelected,
	core.EventSceneChanged,
	core.EventPlanetaryModeChanged,
	core.EventEnergyUpdated,
	core.EventStateHydrated,
	core.EventNoteCreated,
	core.EventTaskCompleted,
	core.EventRitualCreated,
	core.EventRitualUpdated,
	core.EventRitualDeleted,
}

// Renderer subscribes to the bus and writes one formatted line per event.
type Renderer struct {
	out  io.Writer
	subs []*core.Subscription
}

// New starts rendering onto out.
func New(bus *core.Bus, out io.Writer) *Renderer {
	r := &Renderer{out: out}
	for _, eventType := range watchedEventTypes {
		r.subs = append(r.subs, bus.Subscribe(eventType, func(event core.Event) error {
			fmt.Fprintf(r.out, "[%s] %s\n", event.Timestamp.Format("15:04:05"), FormatEvent(event))
			return nil
		}))
	}
	return r
}

// Stop removes the bus subscriptions.
func (r *Renderer) Stop() {
	for _, sub := range r.subs {
		sub.Close()
	}
	r.subs = nil
}

// FormatEvent renders a single event as a one-line summary. Unknown payload
// shapes fall back to the bare event type.
func FormatEvent(event core.Event) string {
	switch payload := event.Payload.(type) {
	case core.SessionStartedPayload:
		line := fmt.Sprintf("▶️  Session Started: id=%s duration=%s", payload.SessionID,
			time.Duration(payload.IntendedDuration)*time.Second)
		if payload.ConstellationID != "" {
			line += " constellation=" + payload.ConstellationID
		}
		return line
	case core.SessionEndedPayload:
		outcome := "stopped early"
		if payload.WasCompleted {
			outcome = "completed"
		}
		return fmt.Sprintf("⏹️  Session Ended: id=%s after=%s (%s)", payload.SessionID,
			time.Duration(payload.ActualDuration)*time.Second, outcome)
	case core.RitualStartedPayload:
		return fmt.Sprintf("🕯️  Ritual Started: %s run=%s steps=%d", payload.RitualID, payload.RunID, len(payload.Steps))
	case core.RitualStepCompletedPayload:
		return fmt.Sprintf("✔️  Step Completed: %s step=%s (#%d)", payload.RitualID, payload.StepID, payload.StepIndex)
	case core.RitualCompletedPayload:
		line := fmt.Sprintf("✅ Ritual Completed: %s in %s", payload.RitualID,
			time.Duration(payload.TotalDuration)*time.Second)
		if payload.ConstellationID != "" {
			line += " constellation=" + payload.ConstellationID
		}
		return line
	case core.RitualAbandonedPayload:
		return fmt.Sprintf("❌ Ritual Abandoned: %s after %d steps", payload.RitualID, payload.StepsCompleted)
	case core.ConstellationCreatedPayload:
		return fmt.Sprintf("🌟 Constellation Created: %s (%s)", payload.Name, payload.ID)
	case core.ConstellationUpdatedPayload:
		return fmt.Sprintf("🌟 Constellation Updated: %s (%d fields)", payload.ID, len(payload.Changes))
	case core.ConstellationArchivedPayload:
		return fmt.Sprintf("🗃️  Constellation Archived: %s", payload.ID)
	case core.ConstellationSelectedPayload:
		if payload.ID == "" {
			return "🎯 Constellation Cleared"
		}
		return fmt.Sprintf("🎯 Constellation Selected: %s", payload.ID)
	case core.SceneChangedPayload:
		return fmt.Sprintf("🏞️  Scene Changed: %s", payload.SceneID)
	case core.PlanetaryModeChangedPayload:
		return fmt.Sprintf("🪐 Planetary Mode: %s", payload.Mode)
	case core.EnergyUpdatedPayload:
		return fmt.Sprintf("⚡ Energy: %d (%+d from %s)", payload.Current, payload.Delta, payload.Source)
	case core.StateHydratedPayload:
		if payload.Success {
			return fmt.Sprintf("💧 State Hydrated: %s", payload.Module)
		}
		return fmt.Sprintf("💧 State Hydration FAILED: %s", payload.Module)
	case core.NoteCreatedPayload:
		return fmt.Sprintf("📝 Note Created: %s", payload.NoteID)
	case core.TaskCompletedPayload:
		return fmt.Sprintf("☑️  Task Completed: %s", payload.TaskID)
	case core.RitualCreatedPayload:
		return fmt.Sprintf("📋 Template Created: %s (%s)", payload.Name, payload.RitualID)
	case core.RitualUpdatedPayload:
		return fmt.Sprintf("📋 Template Updated: %s", payload.RitualID)
	case core.RitualDeletedPayload:
		return fmt.Sprintf("📋 Template Deleted: %s", payload.RitualID)
	default:
		return "• " + event.Type
	}
}
