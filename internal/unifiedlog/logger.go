// Package unifiedlog writes the context-enriched append-only event log and
// answers filtered queries over it. Entries are immutable once written; the
// log is how cross-module causality gets reconstructed after the fact.
package unifiedlog

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

// loggedEventTypes is the fixed whitelist. Anything outside it is never
// logged; this is a deliberate allow-list, not a catch-all.
var loggedEventTypes = []string{
	core.EventSessionEnded,
	core.EventRitualCompleted,
	core.EventNoteCreated,
	core.EventTaskCompleted,
	core.EventRitualCreated,
	core.EventRitualUpdated,
	core.EventRitualDeleted,
}

// Entry is one persisted log record: the event payload plus the context
// snapshot taken when the event was observed. Payload is stored as an opaque
// serialized blob and handed back raw on read.
type Entry struct {
	ID        string
	EventType string
	Timestamp time.Time
	Payload   json.RawMessage

	ConstellationID string
	RitualID        string
	RitualRunID     string
	SceneID         string
	PlanetaryMode   core.PlanetaryMode
}

// Filter selects log entries. EventTypes with a single element and
// ConstellationID/RitualRunID are pushed down to the store as equality
// filters; a list of event types or a date range is applied in memory after
// an equality-filtered fetch, because the store only supports equality.
// That is a known scalability ceiling, not a hidden one.
//
// Start and End are inclusive; zero values leave that bound open. Limit <= 0
// means no limit. Results are always sorted by timestamp descending before
// the limit is applied.
type Filter struct {
	EventTypes      []string
	ConstellationID string
	RitualRunID     string
	Start           time.Time
	End             time.Time
	Limit           int
}

// ContextOverride lets a caller replace individual context fields for one
// entry. Nil fields keep the snapshot's value.
type ContextOverride struct {
	ConstellationID *string
	RitualID        *string
	RitualRunID     *string
	SceneID         *string
	PlanetaryMode   *core.PlanetaryMode
}

// Logger subscribes to the whitelist and records each matching event with
// the context snapshot available at that instant. The context comes through
// the injected ContextSource capability, never a concrete tracker, and
// persistence failures are logged, never raised to the event publisher.
type Logger struct {
	bus           *core.Bus
	store         storage.Store
	queue         *storage.Queue
	contextSource core.ContextSource
	subs          []*core.Subscription
}

// NewLogger builds the logger and subscribes it to the whitelisted event
// types.
func NewLogger(bus *core.Bus, store storage.Store, queue *storage.Queue, contextSource core.ContextSource) *Logger {
	l := &Logger{
		bus:           bus,
		store:         store,
		queue:         queue,
		contextSource: contextSource,
	}

	for _, eventType := range loggedEventTypes {
		l.subs = append(l.subs, bus.Subscribe(eventType, func(event core.Event) error {
			l.LogEvent(event.Type, event.Payload, nil)
			return nil
		}))
	}

	return l
}

// LogEvent records one entry: context snapshot, override merge, fresh id and
// timestamp, serialized payload, asynchronous write. Failures are contained
// here.
func (l *Logger) LogEvent(eventType string, payload any, override *ContextOverride) {
	snapshot := l.contextSource.Snapshot()
	if override != nil {
		if override.ConstellationID != nil {
			snapshot.ActiveConstellationID = *override.ConstellationID
		}
		if override.RitualID != nil {
			snapshot.ActiveRitualID = *override.RitualID
		}
		if override.RitualRunID != nil {
			snapshot.ActiveRitualRunID = *override.RitualRunID
		}
		if override.SceneID != nil {
			snapshot.ActiveSceneID = *override.SceneID
		}
		if override.PlanetaryMode != nil {
			snapshot.PlanetaryMode = *override.PlanetaryMode
		}
	}

	blob, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[Logger] failed to serialize %s payload: %v", eventType, err)
		return
	}

	entry := Entry{
		ID:              uuid.New().String(),
		EventType:       eventType,
		Timestamp:       time.Now(),
		Payload:         blob,
		ConstellationID: snapshot.ActiveConstellationID,
		RitualID:        snapshot.ActiveRitualID,
		RitualRunID:     snapshot.ActiveRitualRunID,
		SceneID:         snapshot.ActiveSceneID,
		PlanetaryMode:   snapshot.PlanetaryMode,
	}

	l.queue.Enqueue("unified log write", func(ctx context.Context) error {
		_, err := l.store.Insert(ctx, storage.TableUnifiedLogs, entryToRecord(entry))
		return err
	})
}

// QueryLogs returns matching entries, newest first. Degrades to an empty
// result when the read fails.
func (l *Logger) QueryLogs(ctx context.Context, filter Filter) []Entry {
	equality := storage.Record{}
	if len(filter.EventTypes) == 1 {
		equality["event_type"] = filter.EventTypes[0]
	}
	if filter.ConstellationID != "" {
		equality["constellation_id"] = filter.ConstellationID
	}
	if filter.RitualRunID != "" {
		equality["ritual_run_id"] = filter.RitualRunID
	}

	records, err := l.store.Query(ctx, storage.TableUnifiedLogs, equality)
	if err != nil {
		log.Printf("[Logger] failed to query logs: %v", err)
		return nil
	}

	entries := make([]Entry, 0, len(records))
	for _, record := range records {
		entry, err := recordToEntry(record)
		if err != nil {
			log.Printf("[Logger] skipping malformed log entry: %v", err)
			continue
		}
		if !matchesInMemory(entry, filter) {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	if filter.Limit > 0 && len(entries) > filter.Limit {
		entries = entries[:filter.Limit]
	}
	return entries
}

// matchesInMemory applies the predicates the store cannot: event type lists
// and the inclusive date range.
func matchesInMemory(entry Entry, filter Filter) bool {
	if len(filter.EventTypes) > 1 {
		found := false
		for _, eventType := range filter.EventTypes {
			if entry.EventType == eventType {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !filter.Start.IsZero() && entry.Timestamp.Before(filter.Start) {
		return false
	}
	if !filter.End.IsZero() && entry.Timestamp.After(filter.End) {
		return false
	}
	return true
}

// LoggedEventTypes returns a copy of the whitelist.
func LoggedEventTypes() []string {
	return append([]string(nil), loggedEventTypes...)
}

// Stop removes the bus subscriptions.
func (l *Logger) Stop() {
	for _, sub := range l.subs {
		sub.Close()
	}
	l.subs = nil
}
