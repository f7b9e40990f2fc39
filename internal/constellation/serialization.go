package constellation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lemos-dev/lemos/pkg/storage"
)

var (
	whitespaceRuns = regexp.MustCompile(`\s+`)
	invalidSlug    = regexp.MustCompile(`[^a-z0-9-]`)
)

// Slugify derives a constellation id from its name: lowercased, whitespace
// runs replaced with hyphens, everything else outside [a-z0-9-] stripped.
func Slugify(name string) string {
	slug := strings.ToLower(name)
	slug = whitespaceRuns.ReplaceAllString(slug, "-")
	return invalidSlug.ReplaceAllString(slug, "")
}

func definitionToRecord(def Definition) storage.Record {
	return storage.Record{
		"id":          def.ID,
		"name":        def.Name,
		"description": def.Description,
		"color":       def.Color,
		"icon":        def.Icon,
		"created_at":  def.CreatedAt.Format(time.RFC3339Nano),
		"archived":    strconv.FormatBool(def.Archived),
	}
}

func recordToDefinition(record storage.Record) (Definition, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, record["created_at"])
	if err != nil {
		return Definition{}, fmt.Errorf("invalid created_at field: %w", err)
	}

	// Absent field means never archived.
	archived := record["archived"] == "true"

	return Definition{
		ID:          record["id"],
		Name:        record["name"],
		Description: record["description"],
		Color:       record["color"],
		Icon:        record["icon"],
		CreatedAt:   createdAt,
		Archived:    archived,
	}, nil
}

func sessionLogToRecord(entry SessionLog) storage.Record {
	record := storage.Record{
		"session_id":       entry.SessionID,
		"constellation_id": entry.ConstellationID,
		"started_at":       entry.StartedAt.Format(time.RFC3339Nano),
		"completed_at":     entry.CompletedAt.Format(time.RFC3339Nano),
		"duration_seconds": strconv.Itoa(entry.DurationSeconds),
		"planned_duration": strconv.Itoa(entry.PlannedDuration),
		"was_completed":    strconv.FormatBool(entry.WasCompleted),
	}
	if entry.ID != "" {
		record["id"] = entry.ID
	}
	return record
}

func recordToSessionLog(record storage.Record) (SessionLog, error) {
	startedAt, err := time.Parse(time.RFC3339Nano, record["started_at"])
	if err != nil {
		return SessionLog{}, fmt.Errorf("invalid started_at field: %w", err)
	}
	completedAt, err := time.Parse(time.RFC3339Nano, record["completed_at"])
	if err != nil {
		return SessionLog{}, fmt.Errorf("invalid completed_at field: %w", err)
	}
	duration, err := strconv.Atoi(record["duration_seconds"])
	if err != nil {
		return SessionLog{}, fmt.Errorf("invalid duration_seconds field: %w", err)
	}
	planned, err := strconv.Atoi(record["planned_duration"])
	if err != nil {
		return SessionLog{}, fmt.Errorf("invalid planned_duration field: %w", err)
	}

	return SessionLog{
		ID:              record["id"],
		SessionID:       record["session_id"],
		ConstellationID: record["constellation_id"],
		StartedAt:       startedAt,
		CompletedAt:     completedAt,
		DurationSeconds: duration,
		PlannedDuration: planned,
		WasCompleted:    record["was_completed"] == "true",
	}, nil
}

// ritualActivity is the slice of a ritual log the stats join needs.
type ritualActivity struct {
	durationSeconds int
	completedAt     time.Time
}

func ritualRecordActivity(record storage.Record) (ritualActivity, error) {
	completedAt, err := time.Parse(time.RFC3339Nano, record["completed_at"])
	if err != nil {
		return ritualActivity{}, fmt.Errorf("invalid completed_at field: %w", err)
	}
	duration, err := strconv.Atoi(record["duration_seconds"])
	if err != nil {
		return ritualActivity{}, fmt.Errorf("invalid duration_seconds field: %w", err)
	}
	return ritualActivity{durationSeconds: duration, completedAt: completedAt}, nil
}
