package timespec

import (
	"fmt"
	"time"
)

// Parse parses a time specification into a time.Time.
// Supports two formats:
//   - Go duration format: "1h", "30m", "1h30m2s"
//   - RFC3339 timestamps: "2026-08-29T13:00:00Z"
//
// Duration specifications are relative to the current time (subtracted from
// now). For example, "1h" means "1 hour ago".
func Parse(spec string) (time.Time, error) {
	if spec == "" {
		return time.Time{}, fmt.Errorf("empty time specification")
	}

	// Try parsing as RFC3339 first
	if t, err := time.Parse(time.RFC3339, spec); err == nil {
		return t, nil
	}

	// Try parsing as Go duration
	if d, err := time.ParseDuration(spec); err == nil {
		return time.Now().Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("invalid time specification: %s (use duration like '1h30m' or RFC3339 like '2026-08-29T13:00:00Z')", spec)
}

// ParseRange parses --since and --until flags into a time range. Zero times
// indicate "no bound" for that end of the range.
//
// Validates that since < until if both are specified.
func ParseRange(since, until string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if since != "" {
		start, err = Parse(since)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --since: %w", err)
		}
	}

	if until != "" {
		end, err = Parse(until)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --until: %w", err)
		}
	}

	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return time.Time{}, time.Time{}, fmt.Errorf("--since must be before --until")
	}

	return start, end, nil
}
