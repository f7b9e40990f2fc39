package core

import (
	"fmt"
	"time"
)

// PlanetaryMode is the global cosmetic/behavioral mode flag. It always holds
// a valid value; there is no "unset" mode.
type PlanetaryMode string

const (
	// ModeSun is the default daytime mode.
	ModeSun PlanetaryMode = "sun"

	// ModeMoon is the low-stimulation evening mode.
	ModeMoon PlanetaryMode = "moon"

	// ModeVoid is the distraction-free deep-focus mode.
	ModeVoid PlanetaryMode = "void"
)

// DefaultPlanetaryMode is applied on construction and on context clear.
const DefaultPlanetaryMode = ModeSun

// Validate checks if the PlanetaryMode is a valid enum value.
func (m PlanetaryMode) Validate() error {
	switch m {
	case ModeSun, ModeMoon, ModeVoid:
		return nil
	default:
		return fmt.Errorf("unknown planetary mode: %q", m)
	}
}

// GlobalContext is a snapshot of "what is currently active" across the whole
// process: the selected constellation, the in-progress ritual run, the scene,
// and the planetary mode. Exactly one live instance exists, owned by the
// context tracker; everything handed out is a copy.
//
// Empty string fields mean "nothing active". PlanetaryMode is never empty.
// Timestamp is the last-mutation time, used for idle-timeout detection.
type GlobalContext struct {
	ActiveConstellationID string        `json:"active_constellation_id"`
	ActiveRitualID        string        `json:"active_ritual_id"`
	ActiveRitualRunID     string        `json:"active_ritual_run_id"`
	ActiveSceneID         string        `json:"active_scene_id"`
	PlanetaryMode         PlanetaryMode `json:"planetary_mode"`
	Timestamp             time.Time     `json:"timestamp"`
}

// ContextSource is the capability to produce a context snapshot. Modules that
// enrich their output with ambient context depend on this interface, never on
// the concrete tracker, so their only coupling to context is "can produce a
// snapshot".
type ContextSource interface {
	Snapshot() GlobalContext
}
