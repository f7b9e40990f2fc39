// Package constellation manages the named goal groupings that sessions and
// rituals can be associated with, and computes aggregate statistics over
// their history.
package constellation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

var (
	// ErrNotFound means the constellation id is unknown.
	ErrNotFound = errors.New("constellation not found")

	// ErrNoStorage means the operation requires persistence and no store
	// was supplied.
	ErrNoStorage = errors.New("storage not available")
)

// Definition is one constellation. The id is a slug derived from the name at
// creation time and never changes. Archived definitions are soft-deleted:
// hidden from the default listing but never removed from storage.
type Definition struct {
	ID          string
	Name        string
	Description string
	Color       string
	Icon        string
	CreatedAt   time.Time
	Archived    bool
}

// Changes carries a partial update. Nil fields are left untouched.
type Changes struct {
	Name        *string
	Description *string
	Color       *string
	Icon        *string
	Archived    *bool
}

// Stats is the computed aggregate over a constellation's session and ritual
// history. Never stored.
type Stats struct {
	ConstellationID string
	TotalSessions   int
	TotalRituals    int
	TotalMinutes    int
	CompletionRate  int // percent, 0 when there are no sessions
	LastActivityAt  *time.Time
}

// SessionLog is one persisted session-history record for a constellation.
type SessionLog struct {
	ID              string
	SessionID       string
	ConstellationID string
	StartedAt       time.Time
	CompletedAt     time.Time
	DurationSeconds int
	PlannedDuration int
	WasCompleted    bool
}

// Registry provides the constellation lifecycle and statistics. It seeds a
// default set on first use and captures session-ended events into
// per-constellation history.
//
// Seeding happens synchronously during construction, so the registry is safe
// to use immediately. A seeding failure is logged, not raised: the registry
// trades correctness of the default data for availability.
type Registry struct {
	bus   *core.Bus
	store storage.Store
	queue *storage.Queue
	subs  []*core.Subscription
}

// defaultDefinitions is inserted when the store has no constellations yet.
var defaultDefinitions = []Definition{
	{ID: "deep-work", Name: "Deep Work", Description: "Focused, undistracted effort", Color: "#6366f1", Icon: "telescope"},
	{ID: "wellness", Name: "Wellness", Description: "Body and mind upkeep", Color: "#22c55e", Icon: "leaf"},
	{ID: "learning", Name: "Learning", Description: "Study and exploration", Color: "#eab308", Icon: "book"},
}

// NewRegistry builds the registry, seeds defaults if the store is empty, and
// subscribes to session-ended events. Storage is optional; without it the
// registry serves empty listings and zero stats.
func NewRegistry(bus *core.Bus, store storage.Store, queue *storage.Queue) *Registry {
	r := &Registry{
		bus:   bus,
		store: store,
		queue: queue,
	}

	r.seedDefaults()

	r.subs = append(r.subs, bus.Subscribe(core.EventSessionEnded, func(event core.Event) error {
		payload, ok := event.Payload.(core.SessionEndedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload for %s: %T", event.Type, event.Payload)
		}
		r.recordSession(payload)
		return nil
	}))

	return r
}

// seedDefaults inserts the default set when the constellation table is
// empty. Idempotent: a seeded store is left alone.
func (r *Registry) seedDefaults() {
	if r.store == nil {
		return
	}

	ctx := context.Background()
	existing, err := r.store.Query(ctx, storage.TableConstellations, nil)
	if err != nil {
		log.Printf("[Constellation] failed to check for existing definitions: %v", err)
		return
	}
	if len(existing) > 0 {
		log.Printf("[Constellation] found %d existing constellations", len(existing))
		return
	}

	for _, def := range defaultDefinitions {
		def.CreatedAt = time.Now()
		if _, err := r.store.Insert(ctx, storage.TableConstellations, definitionToRecord(def)); err != nil {
			log.Printf("[Constellation] failed to seed %q: %v", def.ID, err)
		}
	}
	log.Printf("[Constellation] seeded %d default constellations", len(defaultDefinitions))
}

// Create inserts a new constellation and returns its slug id. The id is
// derived from the name; collisions are not checked, so a differently-cased
// or punctuation-variant duplicate name silently shares the slug.
func (r *Registry) Create(ctx context.Context, name, description, color, icon string) (string, error) {
	if r.store == nil {
		return "", ErrNoStorage
	}

	def := Definition{
		ID:          Slugify(name),
		Name:        name,
		Description: description,
		Color:       color,
		Icon:        icon,
		CreatedAt:   time.Now(),
	}

	if _, err := r.store.Insert(ctx, storage.TableConstellations, definitionToRecord(def)); err != nil {
		return "", fmt.Errorf("failed to create constellation: %w", err)
	}

	r.bus.Publish(core.NewEvent(core.EventConstellationCreated, core.ConstellationCreatedPayload{
		ID:    def.ID,
		Name:  def.Name,
		Color: def.Color,
		Icon:  def.Icon,
	}))
	return def.ID, nil
}

// Get returns a single definition by id.
func (r *Registry) Get(ctx context.Context, id string) (Definition, error) {
	if r.store == nil {
		return Definition{}, ErrNoStorage
	}

	records, err := r.store.Query(ctx, storage.TableConstellations, storage.Record{"id": id})
	if err != nil {
		return Definition{}, fmt.Errorf("failed to read constellation: %w", err)
	}
	if len(records) == 0 {
		return Definition{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return recordToDefinition(records[0])
}

// Update merges the changes into the existing record and replaces it
// wholesale. Last write wins; there is no concurrency check.
func (r *Registry) Update(ctx context.Context, id string, changes Changes) error {
	if r.store == nil {
		return ErrNoStorage
	}

	def, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	changed := map[string]string{}
	if changes.Name != nil {
		def.Name = *changes.Name
		changed["name"] = def.Name
	}
	if changes.Description != nil {
		def.Description = *changes.Description
		changed["description"] = def.Description
	}
	if changes.Color != nil {
		def.Color = *changes.Color
		changed["color"] = def.Color
	}
	if changes.Icon != nil {
		def.Icon = *changes.Icon
		changed["icon"] = def.Icon
	}
	if changes.Archived != nil {
		def.Archived = *changes.Archived
		changed["archived"] = fmt.Sprintf("%t", def.Archived)
	}

	if err := r.store.Update(ctx, storage.TableConstellations, definitionToRecord(def)); err != nil {
		return fmt.Errorf("failed to update constellation: %w", err)
	}

	r.bus.Publish(core.NewEvent(core.EventConstellationUpdated, core.ConstellationUpdatedPayload{
		ID:      id,
		Changes: changed,
	}))
	return nil
}

// Archive soft-deletes the constellation and announces it.
func (r *Registry) Archive(ctx context.Context, id string) error {
	archived := true
	if err := r.Update(ctx, id, Changes{Archived: &archived}); err != nil {
		return err
	}

	r.bus.Publish(core.NewEvent(core.EventConstellationArchived, core.ConstellationArchivedPayload{
		ID: id,
	}))
	return nil
}

// List returns all definitions, hiding archived ones unless asked for.
// Degrades to an empty listing when storage is missing or failing.
func (r *Registry) List(ctx context.Context, includeArchived bool) []Definition {
	if r.store == nil {
		return nil
	}

	records, err := r.store.Query(ctx, storage.TableConstellations, nil)
	if err != nil {
		log.Printf("[Constellation] failed to list constellations: %v", err)
		return nil
	}

	defs := make([]Definition, 0, len(records))
	for _, record := range records {
		def, err := recordToDefinition(record)
		if err != nil {
			log.Printf("[Constellation] skipping malformed definition: %v", err)
			continue
		}
		if def.Archived && !includeArchived {
			continue
		}
		defs = append(defs, def)
	}
	return defs
}

// Stats joins session and ritual history for the constellation. Degrades to
// zero stats when storage is missing or failing.
func (r *Registry) Stats(ctx context.Context, id string) Stats {
	stats := Stats{ConstellationID: id}
	if r.store == nil {
		return stats
	}

	sessions, err := r.store.Query(ctx, storage.TableSessionLogs, storage.Record{"constellation_id": id})
	if err != nil {
		log.Printf("[Constellation] failed to read session history: %v", err)
		return stats
	}
	rituals, err := r.store.Query(ctx, storage.TableRitualLogs, storage.Record{"constellation_id": id})
	if err != nil {
		log.Printf("[Constellation] failed to read ritual history: %v", err)
		return stats
	}

	var totalSeconds, completedSessions int
	var lastActivity time.Time

	// Malformed records are skipped entirely so they cannot skew the counts
	// or the completion rate.
	for _, record := range sessions {
		entry, err := recordToSessionLog(record)
		if err != nil {
			log.Printf("[Constellation] skipping malformed session record: %v", err)
			continue
		}
		stats.TotalSessions++
		totalSeconds += entry.DurationSeconds
		if entry.WasCompleted {
			completedSessions++
		}
		if entry.CompletedAt.After(lastActivity) {
			lastActivity = entry.CompletedAt
		}
	}
	for _, record := range rituals {
		entry, err := ritualRecordActivity(record)
		if err != nil {
			log.Printf("[Constellation] skipping malformed ritual record: %v", err)
			continue
		}
		stats.TotalRituals++
		totalSeconds += entry.durationSeconds
		if entry.completedAt.After(lastActivity) {
			lastActivity = entry.completedAt
		}
	}

	stats.TotalMinutes = int(math.Round(float64(totalSeconds) / 60))
	if stats.TotalSessions > 0 {
		stats.CompletionRate = int(math.Round(100 * float64(completedSessions) / float64(stats.TotalSessions)))
	}
	if !lastActivity.IsZero() {
		stats.LastActivityAt = &lastActivity
	}
	return stats
}

// recordSession appends a session-history record for sessions that carry a
// constellation association. Sessions without one are not tracked here.
func (r *Registry) recordSession(payload core.SessionEndedPayload) {
	if r.store == nil || r.queue == nil || payload.ConstellationID == "" {
		return
	}

	now := time.Now()
	entry := SessionLog{
		SessionID:       payload.SessionID,
		ConstellationID: payload.ConstellationID,
		StartedAt:       now.Add(-time.Duration(payload.ActualDuration) * time.Second),
		CompletedAt:     now,
		DurationSeconds: payload.ActualDuration,
		PlannedDuration: payload.IntendedDuration,
		WasCompleted:    payload.WasCompleted,
	}

	r.queue.Enqueue("session history write", func(ctx context.Context) error {
		_, err := r.store.Insert(ctx, storage.TableSessionLogs, sessionLogToRecord(entry))
		return err
	})
}

// Stop removes the bus subscriptions.
func (r *Registry) Stop() {
	for _, sub := range r.subs {
		sub.Close()
	}
	r.subs = nil
}
