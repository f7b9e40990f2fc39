package ritual

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Completion records are stored as string hashes. The steps array is
// JSON-encoded into a single field; timestamps are RFC 3339.

func logToRecord(entry Log) (map[string]string, error) {
	stepsJSON, err := json.Marshal(entry.StepsCompleted)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal steps_completed: %w", err)
	}

	record := map[string]string{
		"ritual_id":        entry.RitualID,
		"completed_at":     entry.CompletedAt.Format(time.RFC3339Nano),
		"duration_seconds": strconv.Itoa(entry.DurationSeconds),
		"steps_completed":  string(stepsJSON),
	}
	if entry.ConstellationID != "" {
		record["constellation_id"] = entry.ConstellationID
	}
	if entry.ID != "" {
		record["id"] = entry.ID
	}
	return record, nil
}

func recordToLog(record map[string]string) (Log, error) {
	completedAt, err := time.Parse(time.RFC3339Nano, record["completed_at"])
	if err != nil {
		return Log{}, fmt.Errorf("invalid completed_at field: %w", err)
	}

	duration, err := strconv.Atoi(record["duration_seconds"])
	if err != nil {
		return Log{}, fmt.Errorf("invalid duration_seconds field: %w", err)
	}

	var steps []string
	if stepsJSON := record["steps_completed"]; stepsJSON != "" {
		if err := json.Unmarshal([]byte(stepsJSON), &steps); err != nil {
			return Log{}, fmt.Errorf("failed to unmarshal steps_completed: %w", err)
		}
	}
	if steps == nil {
		steps = []string{}
	}

	return Log{
		ID:              record["id"],
		RitualID:        record["ritual_id"],
		ConstellationID: record["constellation_id"],
		CompletedAt:     completedAt,
		DurationSeconds: duration,
		StepsCompleted:  steps,
	}, nil
}
