package constellation

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

func setupTest(t *testing.T) (*Registry, *core.Bus, *storage.RedisStore, *storage.Queue) {
	mr := miniredis.NewMiniRedis()
	require.NoError(t, mr.Start())
	t.Cleanup(mr.Close)

	store, err := storage.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	queue := storage.NewQueue(16)
	t.Cleanup(func() { queue.Close() })

	bus := core.NewBus()
	registry := NewRegistry(bus, store, queue)
	t.Cleanup(registry.Stop)

	return registry, bus, store, queue
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Side Project":      "side-project",
		"Deep Work":         "deep-work",
		"  Mixed   Case  ":  "-mixed-case-",
		"Émojis & Symbols!": "mojis--symbols",
		"already-a-slug":    "already-a-slug",
	}
	for name, want := range cases {
		assert.Equal(t, want, Slugify(name), "Slugify(%q)", name)
	}
}

func TestSeeding(t *testing.T) {
	t.Run("seeds defaults into an empty store", func(t *testing.T) {
		registry, _, _, _ := setupTest(t)

		defs := registry.List(context.Background(), false)
		require.Len(t, defs, 3)

		ids := make([]string, 0, len(defs))
		for _, def := range defs {
			ids = append(ids, def.ID)
		}
		assert.ElementsMatch(t, []string{"deep-work", "wellness", "learning"}, ids)
	})

	t.Run("seeding is idempotent", func(t *testing.T) {
		registry, bus, store, queue := setupTest(t)

		// A second registry on the same store must not duplicate the set.
		second := NewRegistry(bus, store, queue)
		t.Cleanup(second.Stop)

		assert.Len(t, registry.List(context.Background(), false), 3)
	})

	t.Run("seeding leaves user data alone", func(t *testing.T) {
		mr := miniredis.NewMiniRedis()
		require.NoError(t, mr.Start())
		t.Cleanup(mr.Close)

		store, err := storage.NewRedisStore(&redis.Options{Addr: mr.Addr()}, "test-instance")
		require.NoError(t, err)
		t.Cleanup(func() { store.Close() })

		_, err = store.Insert(context.Background(), storage.TableConstellations,
			definitionToRecord(Definition{ID: "custom", Name: "Custom", CreatedAt: time.Now()}))
		require.NoError(t, err)

		registry := NewRegistry(core.NewBus(), store, nil)
		t.Cleanup(registry.Stop)

		defs := registry.List(context.Background(), false)
		require.Len(t, defs, 1)
		assert.Equal(t, "custom", defs[0].ID)
	})
}

func TestCreate(t *testing.T) {
	registry, bus, _, _ := setupTest(t)
	ctx := context.Background()

	var created []core.ConstellationCreatedPayload
	bus.Subscribe(core.EventConstellationCreated, func(event core.Event) error {
		created = append(created, event.Payload.(core.ConstellationCreatedPayload))
		return nil
	})

	id, err := registry.Create(ctx, "Side Project", "evenings and weekends", "#f43f5e", "rocket")
	require.NoError(t, err)
	assert.Equal(t, "side-project", id)

	def, err := registry.Get(ctx, "side-project")
	require.NoError(t, err)
	assert.Equal(t, "Side Project", def.Name)
	assert.Equal(t, "evenings and weekends", def.Description)
	assert.False(t, def.Archived)
	assert.False(t, def.CreatedAt.IsZero())

	require.Len(t, created, 1)
	assert.Equal(t, "side-project", created[0].ID)

	t.Run("no storage", func(t *testing.T) {
		registry := NewRegistry(core.NewBus(), nil, nil)
		t.Cleanup(registry.Stop)

		_, err := registry.Create(ctx, "Anything", "", "", "")
		assert.ErrorIs(t, err, ErrNoStorage)
	})
}

func TestGet(t *testing.T) {
	registry, _, _, _ := setupTest(t)

	_, err := registry.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	registry, bus, _, _ := setupTest(t)
	ctx := context.Background()

	var updated []core.ConstellationUpdatedPayload
	bus.Subscribe(core.EventConstellationUpdated, func(event core.Event) error {
		updated = append(updated, event.Payload.(core.ConstellationUpdatedPayload))
		return nil
	})

	newName := "Deep Focus"
	newColor := "#0ea5e9"
	require.NoError(t, registry.Update(ctx, "deep-work", Changes{Name: &newName, Color: &newColor}))

	def, err := registry.Get(ctx, "deep-work")
	require.NoError(t, err)
	assert.Equal(t, "Deep Focus", def.Name)
	assert.Equal(t, "#0ea5e9", def.Color)
	// Untouched fields survive the merge.
	assert.Equal(t, "Focused, undistracted effort", def.Description)

	require.Len(t, updated, 1)
	assert.Equal(t, map[string]string{"name": "Deep Focus", "color": "#0ea5e9"}, updated[0].Changes)

	t.Run("unknown id", func(t *testing.T) {
		err := registry.Update(ctx, "nope", Changes{Name: &newName})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestArchive(t *testing.T) {
	registry, bus, _, _ := setupTest(t)
	ctx := context.Background()

	var archived []core.ConstellationArchivedPayload
	bus.Subscribe(core.EventConstellationArchived, func(event core.Event) error {
		archived = append(archived, event.Payload.(core.ConstellationArchivedPayload))
		return nil
	})

	require.NoError(t, registry.Archive(ctx, "wellness"))

	require.Len(t, archived, 1)
	assert.Equal(t, "wellness", archived[0].ID)

	t.Run("hidden from default listing", func(t *testing.T) {
		defs := registry.List(ctx, false)
		for _, def := range defs {
			assert.NotEqual(t, "wellness", def.ID)
		}
		assert.Len(t, defs, 2)
	})

	t.Run("visible when asked for", func(t *testing.T) {
		defs := registry.List(ctx, true)
		assert.Len(t, defs, 3)
	})

	t.Run("record survives in storage", func(t *testing.T) {
		def, err := registry.Get(ctx, "wellness")
		require.NoError(t, err)
		assert.True(t, def.Archived)
	})
}

func TestRecordSession(t *testing.T) {
	t.Run("captures session_ended with a constellation", func(t *testing.T) {
		_, bus, store, queue := setupTest(t)

		bus.Publish(core.NewEvent(core.EventSessionEnded, core.SessionEndedPayload{
			SessionID:        "s-1",
			IntendedDuration: 1800,
			ActualDuration:   1500,
			WasCompleted:     true,
			ConstellationID:  "deep-work",
		}))
		queue.Flush()

		records, err := store.Query(context.Background(), storage.TableSessionLogs,
			storage.Record{"constellation_id": "deep-work"})
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "1500", records[0]["duration_seconds"])
		assert.Equal(t, "1800", records[0]["planned_duration"])
		assert.Equal(t, "true", records[0]["was_completed"])
	})

	t.Run("ignores session_ended without a constellation", func(t *testing.T) {
		_, bus, store, queue := setupTest(t)

		bus.Publish(core.NewEvent(core.EventSessionEnded, core.SessionEndedPayload{
			SessionID:      "s-2",
			ActualDuration: 600,
			WasCompleted:   true,
		}))
		queue.Flush()

		records, err := store.Query(context.Background(), storage.TableSessionLogs, nil)
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestStats(t *testing.T) {
	registry, _, store, _ := setupTest(t)
	ctx := context.Background()

	insertSession := func(constellationID string, seconds int, completed bool, at time.Time) {
		_, err := store.Insert(ctx, storage.TableSessionLogs, sessionLogToRecord(SessionLog{
			SessionID:       "s-" + strconv.Itoa(seconds),
			ConstellationID: constellationID,
			StartedAt:       at.Add(-time.Duration(seconds) * time.Second),
			CompletedAt:     at,
			DurationSeconds: seconds,
			PlannedDuration: seconds,
			WasCompleted:    completed,
		}))
		require.NoError(t, err)
	}
	insertRitual := func(constellationID string, seconds int, at time.Time) {
		_, err := store.Insert(ctx, storage.TableRitualLogs, storage.Record{
			"ritual_id":        "morning-anchor",
			"constellation_id": constellationID,
			"completed_at":     at.Format(time.RFC3339Nano),
			"duration_seconds": strconv.Itoa(seconds),
			"steps_completed":  `["breathe"]`,
		})
		require.NoError(t, err)
	}

	sessionTime := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	ritualTime := time.Date(2026, 8, 29, 10, 0, 0, 0, time.UTC)

	t.Run("joins sessions and rituals", func(t *testing.T) {
		insertSession("deep-work", 1500, true, sessionTime)
		insertRitual("deep-work", 300, ritualTime)

		stats := registry.Stats(ctx, "deep-work")
		assert.Equal(t, "deep-work", stats.ConstellationID)
		assert.Equal(t, 1, stats.TotalSessions)
		assert.Equal(t, 1, stats.TotalRituals)
		assert.Equal(t, 30, stats.TotalMinutes) // 1500s + 300s
		assert.Equal(t, 100, stats.CompletionRate)
		require.NotNil(t, stats.LastActivityAt)
		assert.True(t, stats.LastActivityAt.Equal(ritualTime))
	})

	t.Run("malformed records do not skew the counts", func(t *testing.T) {
		insertSession("writing", 1200, true, sessionTime)
		_, err := store.Insert(ctx, storage.TableSessionLogs, storage.Record{
			"session_id":       "s-bad",
			"constellation_id": "writing",
			"duration_seconds": "not-a-number",
		})
		require.NoError(t, err)
		_, err = store.Insert(ctx, storage.TableRitualLogs, storage.Record{
			"ritual_id":        "morning-anchor",
			"constellation_id": "writing",
			"completed_at":     "yesterday-ish",
		})
		require.NoError(t, err)

		stats := registry.Stats(ctx, "writing")
		assert.Equal(t, 1, stats.TotalSessions)
		assert.Equal(t, 0, stats.TotalRituals)
		assert.Equal(t, 20, stats.TotalMinutes)
		assert.Equal(t, 100, stats.CompletionRate)
	})

	t.Run("completion rate is rounded percent", func(t *testing.T) {
		insertSession("learning", 600, true, sessionTime)
		insertSession("learning", 600, false, sessionTime.Add(time.Hour))
		insertSession("learning", 600, false, sessionTime.Add(2*time.Hour))

		stats := registry.Stats(ctx, "learning")
		assert.Equal(t, 3, stats.TotalSessions)
		assert.Equal(t, 33, stats.CompletionRate)
	})

	t.Run("empty history", func(t *testing.T) {
		stats := registry.Stats(ctx, "wellness")
		assert.Zero(t, stats.TotalSessions)
		assert.Zero(t, stats.TotalRituals)
		assert.Zero(t, stats.TotalMinutes)
		assert.Zero(t, stats.CompletionRate)
		assert.Nil(t, stats.LastActivityAt)
	})

	t.Run("no storage degrades to zero stats", func(t *testing.T) {
		registry := NewRegistry(core.NewBus(), nil, nil)
		t.Cleanup(registry.Stop)

		stats := registry.Stats(ctx, "deep-work")
		assert.Equal(t, Stats{ConstellationID: "deep-work"}, stats)
	})
}

func TestDefinitionSerializationRoundTrip(t *testing.T) {
	def := Definition{
		ID:          "side-project",
		Name:        "Side Project",
		Description: "evenings and weekends",
		Color:       "#f43f5e",
		Icon:        "rocket",
		CreatedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Archived:    true,
	}

	back, err := recordToDefinition(definitionToRecord(def))
	require.NoError(t, err)
	assert.Equal(t, def, back)
}
