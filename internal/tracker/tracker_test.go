package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

// setupTest builds a manager on a fresh bus with a miniredis-backed store.
func setupTest(t *testing.T) (*Manager, *core.Bus, *storage.RedisStore, *storage.Queue) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := storage.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := storage.NewQueue(16)
	t.Cleanup(func() { queue.Close() })

	bus := core.NewBus()
	m, err := NewManager(bus, store, queue, Options{})
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	return m, bus, store, queue
}

func TestNewManager(t *testing.T) {
	t.Run("starts with defaults", func(t *testing.T) {
		m, _, _, _ := setupTest(t)

		snapshot := m.Snapshot()
		assert.Empty(t, snapshot.ActiveConstellationID)
		assert.Empty(t, snapshot.ActiveRitualID)
		assert.Empty(t, snapshot.ActiveRitualRunID)
		assert.Empty(t, snapshot.ActiveSceneID)
		assert.Equal(t, core.DefaultPlanetaryMode, snapshot.PlanetaryMode)
		assert.False(t, snapshot.Timestamp.IsZero())
	})

	t.Run("works without storage", func(t *testing.T) {
		m, err := NewManager(core.NewBus(), nil, nil, Options{})
		require.NoError(t, err)
		t.Cleanup(m.Stop)

		assert.Equal(t, core.DefaultPlanetaryMode, m.Snapshot().PlanetaryMode)
	})

	t.Run("rejects invalid sweep schedule", func(t *testing.T) {
		_, err := NewManager(core.NewBus(), nil, nil, Options{SweepSchedule: "not a schedule"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid sweep schedule")
	})

	t.Run("loads persisted planetary mode", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		t.Cleanup(mr.Close)

		store, err := storage.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })

		require.NoError(t, store.Set(context.Background(), planetaryModeStorageKey, "moon"))

		m, err := NewManager(core.NewBus(), store, nil, Options{})
		require.NoError(t, err)
		t.Cleanup(m.Stop)

		assert.Equal(t, core.ModeMoon, m.Snapshot().PlanetaryMode)
	})

	t.Run("ignores corrupt persisted mode", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		t.Cleanup(mr.Close)

		store, err := storage.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })

		require.NoError(t, store.Set(context.Background(), planetaryModeStorageKey, "eclipse"))

		m, err := NewManager(core.NewBus(), store, nil, Options{})
		require.NoError(t, err)
		t.Cleanup(m.Stop)

		assert.Equal(t, core.DefaultPlanetaryMode, m.Snapshot().PlanetaryMode)
	})
}

func TestEventDrivenUpdates(t *testing.T) {
	t.Run("constellation_selected sets the field", func(t *testing.T) {
		m, bus, _, _ := setupTest(t)

		bus.Publish(core.NewEvent(core.EventConstellationSelected,
			core.ConstellationSelectedPayload{ID: "deep-work"}))

		assert.Equal(t, "deep-work", m.Snapshot().ActiveConstellationID)
	})

	t.Run("empty constellation_selected clears the field", func(t *testing.T) {
		m, bus, _, _ := setupTest(t)

		bus.Publish(core.NewEvent(core.EventConstellationSelected,
			core.ConstellationSelectedPayload{ID: "deep-work"}))
		bus.Publish(core.NewEvent(core.EventConstellationSelected,
			core.ConstellationSelectedPayload{ID: ""}))

		assert.Empty(t, m.Snapshot().ActiveConstellationID)
	})

	t.Run("ritual lifecycle sets and clears the run", func(t *testing.T) {
		m, bus, _, _ := setupTest(t)

		bus.Publish(core.NewEvent(core.EventRitualStarted,
			core.RitualStartedPayload{RitualID: "morning-anchor", RunID: "run-1"}))

		snapshot := m.Snapshot()
		assert.Equal(t, "morning-anchor", snapshot.ActiveRitualID)
		assert.Equal(t, "run-1", snapshot.ActiveRitualRunID)

		bus.Publish(core.NewEvent(core.EventRitualCompleted,
			core.RitualCompletedPayload{RitualID: "morning-anchor", RunID: "run-1"}))

		snapshot = m.Snapshot()
		assert.Empty(t, snapshot.ActiveRitualID)
		assert.Empty(t, snapshot.ActiveRitualRunID)
	})

	t.Run("stale run end does not clobber a newer run", func(t *testing.T) {
		m, bus, _, _ := setupTest(t)

		bus.Publish(core.NewEvent(core.EventRitualStarted,
			core.RitualStartedPayload{RitualID: "morning-anchor", RunID: "run-2"}))
		bus.Publish(core.NewEvent(core.EventRitualCompleted,
			core.RitualCompletedPayload{RitualID: "morning-anchor", RunID: "run-1"}))

		assert.Equal(t, "run-2", m.Snapshot().ActiveRitualRunID)
	})

	t.Run("abandoned run clears the context too", func(t *testing.T) {
		m, bus, _, _ := setupTest(t)

		bus.Publish(core.NewEvent(core.EventRitualStarted,
			core.RitualStartedPayload{RitualID: "morning-anchor", RunID: "run-3"}))
		bus.Publish(core.NewEvent(core.EventRitualAbandoned,
			core.RitualAbandonedPayload{RitualID: "morning-anchor", RunID: "run-3"}))

		assert.Empty(t, m.Snapshot().ActiveRitualRunID)
	})

	t.Run("scene_changed sets the field", func(t *testing.T) {
		m, bus, _, _ := setupTest(t)

		bus.Publish(core.NewEvent(core.EventSceneChanged,
			core.SceneChangedPayload{SceneID: "forest"}))

		assert.Equal(t, "forest", m.Snapshot().ActiveSceneID)
	})

	t.Run("planetary_mode_changed switches mode", func(t *testing.T) {
		m, bus, _, _ := setupTest(t)

		bus.Publish(core.NewEvent(core.EventPlanetaryModeChanged,
			core.PlanetaryModeChangedPayload{Mode: core.ModeVoid}))

		assert.Equal(t, core.ModeVoid, m.Snapshot().PlanetaryMode)
	})
}

func TestSetPlanetaryMode(t *testing.T) {
	t.Run("persists the mode", func(t *testing.T) {
		m, _, store, queue := setupTest(t)

		require.NoError(t, m.SetPlanetaryMode(core.ModeMoon))
		queue.Flush()

		value, err := store.Get(context.Background(), planetaryModeStorageKey)
		require.NoError(t, err)
		assert.Equal(t, "moon", value)
	})

	t.Run("rejects unknown mode", func(t *testing.T) {
		m, _, _, _ := setupTest(t)

		err := m.SetPlanetaryMode(core.PlanetaryMode("eclipse"))
		require.Error(t, err)
		assert.Equal(t, core.DefaultPlanetaryMode, m.Snapshot().PlanetaryMode)
	})
}

func TestSnapshotIsDetached(t *testing.T) {
	m, _, _, _ := setupTest(t)

	m.SetActiveConstellation("deep-work")
	snapshot := m.Snapshot()
	snapshot.ActiveConstellationID = "mutated"

	assert.Equal(t, "deep-work", m.Snapshot().ActiveConstellationID)
}

func TestClearContext(t *testing.T) {
	m, _, _, _ := setupTest(t)

	m.SetActiveConstellation("deep-work")
	m.SetActiveScene("forest")
	require.NoError(t, m.SetPlanetaryMode(core.ModeMoon))

	m.ClearContext()

	snapshot := m.Snapshot()
	assert.Empty(t, snapshot.ActiveConstellationID)
	assert.Empty(t, snapshot.ActiveSceneID)
	assert.Equal(t, core.DefaultPlanetaryMode, snapshot.PlanetaryMode)
}

func TestIdleSweep(t *testing.T) {
	t.Run("clears stale context", func(t *testing.T) {
		m, _, _, _ := setupTest(t)

		m.SetActiveConstellation("deep-work")

		// Age the context past the timeout, then run the sweep directly.
		m.mu.Lock()
		m.lastActivity = time.Now().Add(-3 * time.Hour)
		m.mu.Unlock()
		m.sweep()

		assert.Empty(t, m.Snapshot().ActiveConstellationID)
	})

	t.Run("leaves fresh context alone", func(t *testing.T) {
		m, _, _, _ := setupTest(t)

		m.SetActiveConstellation("deep-work")
		m.sweep()

		assert.Equal(t, "deep-work", m.Snapshot().ActiveConstellationID)
	})
}

func TestStop(t *testing.T) {
	m, bus, _, _ := setupTest(t)

	m.Stop()

	// Subscriptions are gone: events no longer mutate the context.
	bus.Publish(core.NewEvent(core.EventConstellationSelected,
		core.ConstellationSelectedPayload{ID: "deep-work"}))
	assert.Empty(t, m.Snapshot().ActiveConstellationID)

	// Stopping twice is safe.
	m.Stop()
}
