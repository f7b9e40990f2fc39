package editor

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

func templateToRecord(template Template) storage.Record {
	tagsJSON, _ := json.Marshal(template.Tags)
	stepsJSON, _ := json.Marshal(template.Steps)

	return storage.Record{
		"id":          template.ID,
		"name":        template.Name,
		"description": template.Description,
		"tags":        string(tagsJSON),
		"steps":       string(stepsJSON),
		"planet":      string(template.Planet),
		"intensity":   string(template.Intensity),
		"created_at":  template.CreatedAt.Format(time.RFC3339Nano),
		"updated_at":  template.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func recordToTemplate(record storage.Record) (Template, error) {
	createdAt, err := time.Parse(time.RFC3339Nano, record["created_at"])
	if err != nil {
		return Template{}, fmt.Errorf("invalid created_at field: %w", err)
	}
	updatedAt, err := time.Parse(time.RFC3339Nano, record["updated_at"])
	if err != nil {
		return Template{}, fmt.Errorf("invalid updated_at field: %w", err)
	}

	var tags []string
	if record["tags"] != "" {
		if err := json.Unmarshal([]byte(record["tags"]), &tags); err != nil {
			return Template{}, fmt.Errorf("failed to unmarshal tags: %w", err)
		}
	}

	steps := []TemplateStep{}
	if record["steps"] != "" {
		if err := json.Unmarshal([]byte(record["steps"]), &steps); err != nil {
			return Template{}, fmt.Errorf("failed to unmarshal steps: %w", err)
		}
	}

	return Template{
		ID:          record["id"],
		Name:        record["name"],
		Description: record["description"],
		Tags:        tags,
		Steps:       steps,
		Planet:      core.PlanetaryMode(record["planet"]),
		Intensity:   Intensity(record["intensity"]),
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}
