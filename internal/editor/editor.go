// Package editor manages user-editable ritual templates: the drafts users
// build and rework before a ritual earns a place in the running catalog.
// Template changes are announced on the bus, where the unified logger
// records them.
package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lemos-dev/lemos/pkg/core"
	"github.com/lemos-dev/lemos/pkg/storage"
)

var (
	// ErrNotFound means the template id is unknown.
	ErrNotFound = errors.New("ritual template not found")

	// ErrNoStorage means the operation requires persistence and no store
	// was supplied.
	ErrNoStorage = errors.New("storage not available")
)

// StepType categorizes a template step.
type StepType string

const (
	StepText     StepType = "text"
	StepMovement StepType = "movement"
	StepSound    StepType = "sound"
	StepPrompt   StepType = "prompt"
	StepAgent    StepType = "agent"
	StepCustom   StepType = "custom"
)

// Validate checks if the StepType is a valid enum value.
func (st StepType) Validate() error {
	switch st {
	case StepText, StepMovement, StepSound, StepPrompt, StepAgent, StepCustom:
		return nil
	default:
		return fmt.Errorf("unknown step type: %q", st)
	}
}

// Intensity grades how demanding a template is.
type Intensity string

const (
	IntensityLow    Intensity = "low"
	IntensityMedium Intensity = "medium"
	IntensityHigh   Intensity = "high"
)

// Validate checks if the Intensity is a valid enum value. Empty is allowed;
// intensity is optional metadata.
func (i Intensity) Validate() error {
	switch i {
	case "", IntensityLow, IntensityMedium, IntensityHigh:
		return nil
	default:
		return fmt.Errorf("unknown intensity: %q", i)
	}
}

// TemplateStep is one step of a template. Duration is in seconds, zero when
// untimed.
type TemplateStep struct {
	ID       string   `json:"id"`
	Type     StepType `json:"type"`
	Content  string   `json:"content"`
	Duration int      `json:"duration,omitempty"`
}

// Template is a user-editable ritual draft.
type Template struct {
	ID          string
	Name        string
	Description string
	Tags        []string
	Steps       []TemplateStep
	Planet      core.PlanetaryMode // optional, empty when unset
	Intensity   Intensity          // optional
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Changes carries a partial template update. Nil fields are left untouched.
type Changes struct {
	Name        *string
	Description *string
	Tags        *[]string
	Planet      *core.PlanetaryMode
	Intensity   *Intensity
}

// Editor provides template CRUD and step management. Writes are synchronous:
// the caller needs the outcome, unlike the event-driven history writes
// elsewhere in the core.
type Editor struct {
	bus   *core.Bus
	store storage.Store
}

// NewEditor creates the editor. Storage is optional only for Create, which
// still announces the template even when it cannot be persisted.
func NewEditor(bus *core.Bus, store storage.Store) *Editor {
	return &Editor{bus: bus, store: store}
}

// Create inserts a new empty template and returns its id.
func (e *Editor) Create(ctx context.Context, name, description string, tags []string) (string, error) {
	now := time.Now()
	template := Template{
		ID:          uuid.New().String(),
		Name:        strings.TrimSpace(name),
		Description: strings.TrimSpace(description),
		Tags:        cleanTags(tags),
		Steps:       []TemplateStep{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if e.store != nil {
		if _, err := e.store.Insert(ctx, storage.TableRitualTemplates, templateToRecord(template)); err != nil {
			return "", fmt.Errorf("failed to create ritual template: %w", err)
		}
	}

	e.bus.Publish(core.NewEvent(core.EventRitualCreated, core.RitualCreatedPayload{
		RitualID: template.ID,
		Name:     template.Name,
		Tags:     template.Tags,
	}))
	return template.ID, nil
}

// Templates lists every template. Degrades to empty without storage.
func (e *Editor) Templates(ctx context.Context) ([]Template, error) {
	if e.store == nil {
		return nil, nil
	}

	records, err := e.store.Query(ctx, storage.TableRitualTemplates, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list ritual templates: %w", err)
	}

	templates := make([]Template, 0, len(records))
	for _, record := range records {
		template, err := recordToTemplate(record)
		if err != nil {
			return nil, err
		}
		templates = append(templates, template)
	}
	return templates, nil
}

// Template returns a single template by id.
func (e *Editor) Template(ctx context.Context, ritualID string) (Template, error) {
	if e.store == nil {
		return Template{}, ErrNoStorage
	}

	records, err := e.store.Query(ctx, storage.TableRitualTemplates, storage.Record{"id": ritualID})
	if err != nil {
		return Template{}, fmt.Errorf("failed to read ritual template: %w", err)
	}
	if len(records) == 0 {
		return Template{}, fmt.Errorf("%w: %s", ErrNotFound, ritualID)
	}
	return recordToTemplate(records[0])
}

// Update merges the changes into the template, stamps updated-at, and
// replaces the record.
func (e *Editor) Update(ctx context.Context, ritualID string, changes Changes) error {
	if e.store == nil {
		return ErrNoStorage
	}

	template, err := e.Template(ctx, ritualID)
	if err != nil {
		return err
	}

	if changes.Name != nil {
		template.Name = strings.TrimSpace(*changes.Name)
	}
	if changes.Description != nil {
		template.Description = strings.TrimSpace(*changes.Description)
	}
	if changes.Tags != nil {
		template.Tags = cleanTags(*changes.Tags)
	}
	if changes.Planet != nil {
		if *changes.Planet != "" {
			if err := changes.Planet.Validate(); err != nil {
				return err
			}
		}
		template.Planet = *changes.Planet
	}
	if changes.Intensity != nil {
		if err := changes.Intensity.Validate(); err != nil {
			return err
		}
		template.Intensity = *changes.Intensity
	}

	return e.save(ctx, template)
}

// AddStep appends a step to the template.
func (e *Editor) AddStep(ctx context.Context, ritualID string, step TemplateStep) error {
	if err := step.Type.Validate(); err != nil {
		return err
	}

	template, err := e.Template(ctx, ritualID)
	if err != nil {
		return err
	}

	if step.ID == "" {
		step.ID = uuid.New().String()
	}
	template.Steps = append(template.Steps, step)
	return e.save(ctx, template)
}

// RemoveStep deletes a step by id. Removing an unknown step is an error.
func (e *Editor) RemoveStep(ctx context.Context, ritualID, stepID string) error {
	template, err := e.Template(ctx, ritualID)
	if err != nil {
		return err
	}

	for i, step := range template.Steps {
		if step.ID == stepID {
			template.Steps = append(template.Steps[:i], template.Steps[i+1:]...)
			return e.save(ctx, template)
		}
	}
	return fmt.Errorf("step not found in %s: %s", ritualID, stepID)
}

// save replaces the record and announces the update.
func (e *Editor) save(ctx context.Context, template Template) error {
	template.UpdatedAt = time.Now()
	if err := e.store.Update(ctx, storage.TableRitualTemplates, templateToRecord(template)); err != nil {
		return fmt.Errorf("failed to update ritual template: %w", err)
	}

	e.bus.Publish(core.NewEvent(core.EventRitualUpdated, core.RitualUpdatedPayload{
		RitualID: template.ID,
	}))
	return nil
}

// Delete removes a template permanently and announces the deletion.
func (e *Editor) Delete(ctx context.Context, ritualID string) error {
	if e.store == nil {
		return ErrNoStorage
	}

	// Confirm existence first so deleting an unknown id is a caller error.
	if _, err := e.Template(ctx, ritualID); err != nil {
		return err
	}

	if err := e.store.DeleteRecord(ctx, storage.TableRitualTemplates, ritualID); err != nil {
		return fmt.Errorf("failed to delete ritual template: %w", err)
	}

	e.bus.Publish(core.NewEvent(core.EventRitualDeleted, core.RitualDeletedPayload{
		RitualID: ritualID,
	}))
	return nil
}

func cleanTags(tags []string) []string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
