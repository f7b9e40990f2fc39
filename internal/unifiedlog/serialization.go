package unifiedlog

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

func entryToRecord(entry Entry) storage.Record {
	record := storage.Record{
		"id":             entry.ID,
		"event_type":     entry.EventType,
		"timestamp":      entry.Timestamp.Format(time.RFC3339Nano),
		"payload":        string(entry.Payload),
		"planetary_mode": string(entry.PlanetaryMode),
	}
	// Context fields are written only when set, so equality queries on them
	// match exactly the entries that carried the association.
	if entry.ConstellationID != "" {
		record["constellation_id"] = entry.ConstellationID
	}
	if entry.RitualID != "" {
		record["ritual_id"] = entry.RitualID
	}
	if entry.RitualRunID != "" {
		record["ritual_run_id"] = entry.RitualRunID
	}
	if entry.SceneID != "" {
		record["scene_id"] = entry.SceneID
	}
	return record
}

func recordToEntry(record storage.Record) (Entry, error) {
	timestamp, err := time.Parse(time.RFC3339Nano, record["timestamp"])
	if err != nil {
		return Entry{}, fmt.Errorf("invalid timestamp field: %w", err)
	}

	mode := core.PlanetaryMode(record["planetary_mode"])
	if err := mode.Validate(); err != nil {
		return Entry{}, fmt.Errorf("invalid planetary_mode field: %w", err)
	}

	return Entry{
		ID:              record["id"],
		EventType:       record["event_type"],
		Timestamp:       timestamp,
		Payload:         json.RawMessage(record["payload"]),
		ConstellationID: record["constellation_id"],
		RitualID:        record["ritual_id"],
		RitualRunID:     record["ritual_run_id"],
		SceneID:         record["scene_id"],
		PlanetaryMode:   mode,
	}, nil
}
