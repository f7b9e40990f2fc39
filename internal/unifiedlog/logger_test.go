package unifiedlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

// mutableContext is a test context source whose snapshot can be changed
// between events.
type mutableContext struct {
	snapshot core.GlobalContext
}

func (m *mutableContext) Snapshot() core.GlobalContext {
	return m.snapshot
}

func setupTest(t *testing.T) (*Logger, *core.Bus, *storage.RedisStore, *storage.Queue, *mutableContext) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := storage.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := storage.NewQueue(16)
	t.Cleanup(func() { queue.Close() })

	bus := core.NewBus()
	source := &mutableContext{snapshot: core.GlobalContext{PlanetaryMode: core.DefaultPlanetaryMode}}
	logger := NewLogger(bus, store, queue, source)
	t.Cleanup(logger.Stop)

	return logger, bus, store, queue, source
}

func TestWhitelist(t *testing.T) {
	logger, bus, _, queue, _ := setupTest(t)
	ctx := context.Background()

	t.Run("whitelisted events are logged", func(t *testing.T) {
		bus.Publish(core.NewEvent(core.EventNoteCreated,
			core.NoteCreatedPayload{NoteID: "n-1", Text: "remember this"}))
		bus.Publish(core.NewEvent(core.EventTaskCompleted,
			core.TaskCompletedPayload{TaskID: "t-1"}))
		queue.Flush()

		entries := logger.QueryLogs(ctx, Filter{})
		assert.Len(t, entries, 2)
	})

	t.Run("non-whitelisted events are never logged", func(t *testing.T) {
		bus.Publish(core.NewEvent(core.EventSessionTick, core.SessionTickPayload{SessionID: "s-1"}))
		bus.Publish(core.NewEvent(core.EventEnergyUpdated, core.EnergyUpdatedPayload{Current: 5}))
		bus.Publish(core.NewEvent(core.EventRitualStarted, core.RitualStartedPayload{RunID: "run-1"}))
		queue.Flush()

		entries := logger.QueryLogs(ctx, Filter{})
		assert.Len(t, entries, 2)
	})

	t.Run("whitelist copy is detached", func(t *testing.T) {
		types := LoggedEventTypes()
		require.NotEmpty(t, types)
		types[0] = "mutated"
		assert.NotEqual(t, "mutated", LoggedEventTypes()[0])
	})
}

func TestContextEnrichment(t *testing.T) {
	logger, bus, _, queue, source := setupTest(t)
	ctx := context.Background()

	source.snapshot = core.GlobalContext{
		ActiveConstellationID: "deep-work",
		ActiveRitualID:        "morning-anchor",
		ActiveRitualRunID:     "run-1",
		ActiveSceneID:         "forest",
		PlanetaryMode:         core.ModeMoon,
	}

	bus.Publish(core.NewEvent(core.EventNoteCreated,
		core.NoteCreatedPayload{NoteID: "n-1", Text: "logged in context"}))
	queue.Flush()

	entries := logger.QueryLogs(ctx, Filter{})
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, core.EventNoteCreated, entry.EventType)
	assert.Equal(t, "deep-work", entry.ConstellationID)
	assert.Equal(t, "morning-anchor", entry.RitualID)
	assert.Equal(t, "run-1", entry.RitualRunID)
	assert.Equal(t, "forest", entry.SceneID)
	assert.Equal(t, core.ModeMoon, entry.PlanetaryMode)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.Timestamp.IsZero())

	var payload core.NoteCreatedPayload
	require.NoError(t, json.Unmarshal(entry.Payload, &payload))
	assert.Equal(t, "logged in context", payload.Text)
}

func TestContextOverride(t *testing.T) {
	logger, _, _, queue, source := setupTest(t)
	ctx := context.Background()

	source.snapshot = core.GlobalContext{
		ActiveConstellationID: "deep-work",
		ActiveSceneID:         "forest",
		PlanetaryMode:         core.DefaultPlanetaryMode,
	}

	override := "wellness"
	logger.LogEvent(core.EventNoteCreated,
		core.NoteCreatedPayload{NoteID: "n-1"},
		&ContextOverride{ConstellationID: &override})
	queue.Flush()

	entries := logger.QueryLogs(ctx, Filter{})
	require.Len(t, entries, 1)

	// Overridden field replaced, everything else from the snapshot.
	assert.Equal(t, "wellness", entries[0].ConstellationID)
	assert.Equal(t, "forest", entries[0].SceneID)
}

// seedEntry writes an entry with a fixed timestamp straight to the store.
func seedEntry(t *testing.T, store storage.Store, id, eventType, constellationID string, at time.Time) {
	t.Helper()
	_, err := store.Insert(context.Background(), storage.TableUnifiedLogs, entryToRecord(Entry{
		ID:              id,
		EventType:       eventType,
		Timestamp:       at,
		Payload:         json.RawMessage(`{}`),
		ConstellationID: constellationID,
		PlanetaryMode:   core.DefaultPlanetaryMode,
	}))
	require.NoError(t, err)
}

func TestQueryLogs(t *testing.T) {
	logger, _, store, _, _ := setupTest(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	seedEntry(t, store, "e-1", core.EventSessionEnded, "deep-work", base)
	seedEntry(t, store, "e-2", core.EventNoteCreated, "deep-work", base.Add(time.Hour))
	seedEntry(t, store, "e-3", core.EventTaskCompleted, "wellness", base.Add(2*time.Hour))

	t.Run("newest first", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{})
		require.Len(t, entries, 3)
		assert.Equal(t, "e-3", entries[0].ID)
		assert.Equal(t, "e-2", entries[1].ID)
		assert.Equal(t, "e-1", entries[2].ID)
	})

	t.Run("limit applies after sorting", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{Limit: 2})
		require.Len(t, entries, 2)
		assert.Equal(t, "e-3", entries[0].ID)
		assert.Equal(t, "e-2", entries[1].ID)
	})

	t.Run("single event type", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{EventTypes: []string{core.EventNoteCreated}})
		require.Len(t, entries, 1)
		assert.Equal(t, "e-2", entries[0].ID)
	})

	t.Run("event type list", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{
			EventTypes: []string{core.EventSessionEnded, core.EventTaskCompleted},
		})
		require.Len(t, entries, 2)
		assert.Equal(t, "e-3", entries[0].ID)
		assert.Equal(t, "e-1", entries[1].ID)
	})

	t.Run("constellation filter", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{ConstellationID: "deep-work"})
		assert.Len(t, entries, 2)
	})

	t.Run("date range is inclusive", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{
			Start: base.Add(time.Hour),
			End:   base.Add(2 * time.Hour),
		})
		require.Len(t, entries, 2)
		assert.Equal(t, "e-3", entries[0].ID)
		assert.Equal(t, "e-2", entries[1].ID)
	})

	t.Run("open-ended range", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{Start: base.Add(2 * time.Hour)})
		require.Len(t, entries, 1)
		assert.Equal(t, "e-3", entries[0].ID)
	})

	t.Run("combined filters", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{
			ConstellationID: "deep-work",
			Start:           base.Add(30 * time.Minute),
			Limit:           5,
		})
		require.Len(t, entries, 1)
		assert.Equal(t, "e-2", entries[0].ID)
	})

	t.Run("no matches", func(t *testing.T) {
		entries := logger.QueryLogs(ctx, Filter{ConstellationID: "nope"})
		assert.Empty(t, entries)
	})
}

func TestEntrySerializationRoundTrip(t *testing.T) {
	entry := Entry{
		ID:              "e-1",
		EventType:       core.EventSessionEnded,
		Timestamp:       time.Date(2026, 8, 29, 12, 0, 0, 123456789, time.UTC),
		Payload:         json.RawMessage(`{"session_id":"s-1"}`),
		ConstellationID: "deep-work",
		PlanetaryMode:   core.ModeVoid,
	}

	back, err := recordToEntry(entryToRecord(entry))
	require.NoError(t, err)
	assert.Equal(t, entry, back)
}

func TestStop(t *testing.T) {
	logger, bus, _, queue, _ := setupTest(t)

	logger.Stop()
	bus.Publish(core.NewEvent(core.EventNoteCreated, core.NoteCreatedPayload{NoteID: "n-1"}))
	queue.Flush()

	assert.Empty(t, logger.QueryLogs(context.Background(), Filter{}))
}
