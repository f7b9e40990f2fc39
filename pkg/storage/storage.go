// Package storage defines the persistence contract consumed by every
// stateful LemOS module, and a Redis-backed implementation of it.
//
// The contract is deliberately small: a string key/value area for module
// state blobs, and table-scoped records with equality filtering and
// upsert-by-identity. The store owns physical representation; modules only
// depend on this interface and degrade to in-memory defaults when no store
// is supplied.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound indicates a requested key or record is missing.
var ErrNotFound = errors.New("not found")

// IsNotFound returns true if the error is a missing key/record error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// Table identifies one of the record tables used by the core. The set is
// closed: every Store implementation switches exhaustively over these values,
// so an unhandled table name cannot exist at runtime.
type Table int

const (
	// TableRitualLogs holds completed ritual run history.
	TableRitualLogs Table = iota

	// TableSessionLogs holds per-constellation session history.
	TableSessionLogs

	// TableConstellations holds constellation definitions.
	TableConstellations

	// TableUnifiedLogs holds the append-only context-enriched event log.
	TableUnifiedLogs

	// TableRitualTemplates holds user-editable ritual templates.
	TableRitualTemplates
)

// String returns the stable storage name of the table.
func (t Table) String() string {
	switch t {
	case TableRitualLogs:
		return "ritual_logs"
	case TableSessionLogs:
		return "session_logs"
	case TableConstellations:
		return "constellation_definitions"
	case TableUnifiedLogs:
		return "unified_logs"
	case TableRitualTemplates:
		return "ritual_templates"
	}
	return fmt.Sprintf("table(%d)", int(t))
}

// Validate checks if the Table is a declared enum value.
func (t Table) Validate() error {
	switch t {
	case TableRitualLogs, TableSessionLogs, TableConstellations,
		TableUnifiedLogs, TableRitualTemplates:
		return nil
	default:
		return fmt.Errorf("unknown table: %d", int(t))
	}
}

// Record is the string-to-string hash representation of a stored record.
// Modules serialize complex fields (arrays, payload blobs) to JSON inside a
// single hash field, trading queryability for flexibility. The "id" field
// identifies the record.
type Record map[string]string

// Matches reports whether every field in filter equals the corresponding
// record field. An empty or nil filter matches everything.
func (r Record) Matches(filter Record) bool {
	for field, want := range filter {
		if r[field] != want {
			return false
		}
	}
	return true
}

// Store is the persistence contract every module writes through.
//
// Get returns ErrNotFound for missing keys. Query supports only equality
// filters; richer predicates (lists, ranges) are applied by callers in
// memory. Update has upsert semantics: the record replaces any existing
// record with the same id, and is created if none exists.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error

	Query(ctx context.Context, table Table, filter Record) ([]Record, error)
	Insert(ctx context.Context, table Table, record Record) (string, error)
	Update(ctx context.Context, table Table, record Record) error
	DeleteRecord(ctx context.Context, table Table, id string) error
}
