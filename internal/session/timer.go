// Package session provides the focus session timer. The timer is the
// heartbeat of the reward loop: it publishes one tick per second while
// running, and a session-ended event that the constellation registry and the
// unified logger capture.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lemos-dev/lemos/pkg/core"
)

// State is the timer lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Caller errors.
var (
	// ErrSessionActive means a session is already running.
	ErrSessionActive = errors.New("session already running")

	// ErrNotRunning means there is nothing to pause.
	ErrNotRunning = errors.New("session is not running")

	// ErrNotPaused means there is nothing to resume.
	ErrNotPaused = errors.New("session is not paused")
)

// Options tune the timer. A zero TickInterval selects one second.
type Options struct {
	TickInterval time.Duration
}

// Timer runs at most one focus session at a time:
//
//	Idle -> Running <-> Paused -> Idle
//
// The ticker goroutine is the only autonomously-scheduled activity; it is
// stopped whenever the session pauses or ends.
type Timer struct {
	bus          *core.Bus
	tickInterval time.Duration

	mu               sync.Mutex
	state            State
	sessionID        string
	constellationID  string
	intendedDuration int // seconds
	elapsed          int // seconds
	stopTick         chan struct{}
}

// NewTimer creates an idle timer.
func NewTimer(bus *core.Bus, opts Options) *Timer {
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	return &Timer{
		bus:          bus,
		tickInterval: opts.TickInterval,
		state:        StateIdle,
	}
}

// StartSession begins a session of the given length, optionally associated
// with a constellation. Fails when a session is already running.
func (t *Timer) StartSession(durationMinutes int, constellationID string) (string, error) {
	if durationMinutes <= 0 {
		return "", fmt.Errorf("invalid session duration: %d minutes", durationMinutes)
	}

	t.mu.Lock()
	if t.state == StateRunning {
		t.mu.Unlock()
		return "", ErrSessionActive
	}

	t.sessionID = uuid.New().String()
	t.constellationID = constellationID
	t.intendedDuration = durationMinutes * 60
	t.elapsed = 0
	t.state = StateRunning
	sessionID := t.sessionID
	intended := t.intendedDuration
	t.mu.Unlock()

	t.bus.Publish(core.NewEvent(core.EventSessionStarted, core.SessionStartedPayload{
		SessionID:        sessionID,
		IntendedDuration: intended,
		ConstellationID:  constellationID,
	}))

	t.startTicker()
	return sessionID, nil
}

// PauseSession suspends the ticker without ending the session.
func (t *Timer) PauseSession() error {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return ErrNotRunning
	}
	t.state = StatePaused
	t.mu.Unlock()

	t.stopTicker()
	return nil
}

// ResumeSession restarts the ticker of a paused session.
func (t *Timer) ResumeSession() error {
	t.mu.Lock()
	if t.state != StatePaused {
		t.mu.Unlock()
		return ErrNotPaused
	}
	t.state = StateRunning
	t.mu.Unlock()

	t.startTicker()
	return nil
}

// StopSession ends the session early. A stopped session was not completed.
// No-op when idle.
func (t *Timer) StopSession() {
	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	t.endSession(false)
}

// Stop tears the timer down for shutdown, ending any session in progress.
func (t *Timer) Stop() {
	t.StopSession()
}

// State returns the current lifecycle state.
func (t *Timer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Elapsed returns the seconds ticked so far.
func (t *Timer) Elapsed() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.elapsed
}

// Remaining returns the seconds left, never negative.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remainingLocked()
}

func (t *Timer) remainingLocked() int {
	remaining := t.intendedDuration - t.elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (t *Timer) startTicker() {
	t.mu.Lock()
	stop := make(chan struct{})
	t.stopTick = stop
	t.mu.Unlock()

	go func() {
		ticker := time.NewTicker(t.tickInterval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				t.tick()
			}
		}
	}()
}

func (t *Timer) stopTicker() {
	t.mu.Lock()
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
	t.mu.Unlock()
}

// tick advances elapsed time by one second and publishes the tick. Reaching
// the intended duration ends the session as completed.
func (t *Timer) tick() {
	t.mu.Lock()
	if t.state != StateRunning {
		t.mu.Unlock()
		return
	}

	t.elapsed++
	payload := core.SessionTickPayload{
		SessionID: t.sessionID,
		Remaining: t.remainingLocked(),
		Elapsed:   t.elapsed,
	}
	t.mu.Unlock()

	t.bus.Publish(core.NewEvent(core.EventSessionTick, payload))

	if payload.Remaining == 0 {
		t.endSession(true)
	}
}

func (t *Timer) endSession(wasCompleted bool) {
	t.stopTicker()

	t.mu.Lock()
	if t.state == StateIdle {
		t.mu.Unlock()
		return
	}

	payload := core.SessionEndedPayload{
		SessionID:        t.sessionID,
		IntendedDuration: t.intendedDuration,
		ActualDuration:   t.elapsed,
		WasCompleted:     wasCompleted,
		ConstellationID:  t.constellationID,
	}
	t.state = StateIdle
	t.sessionID = ""
	t.constellationID = ""
	t.mu.Unlock()

	t.bus.Publish(core.NewEvent(core.EventSessionEnded, payload))
}
