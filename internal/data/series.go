package data

import (
	"errors"
	"fmt"
	"strings"

	"tabletop/internal/scenario"
)

// DefaultAtColumn holds the point in time of each row unless a series
// names another column.
const DefaultAtColumn = "at"

// Series generates events of one kind from the rows of a data file. Each
// row becomes an event: the at column gives its point in time, either as
// milliseconds or as a duration such as "1m30s", and the other columns are
// merged over Data.
type Series struct {
	Phase    string         `yaml:"phase"`
	Kind     string         `yaml:"kind"`
	File     string         `yaml:"file"`
	AtColumn string         `yaml:"atColumn,omitempty"`
	Data     map[string]any `yaml:"data,omitempty"`
}

func (s Series) Validate() error {
	var errs []error
	if s.Phase == "" {
		errs = append(errs, errors.New("phase is required"))
	}
	if s.Kind == "" {
		errs = append(errs, errors.New("kind is required"))
	}
	if s.File == "" {
		errs = append(errs, errors.New("file is required"))
	}
	return errors.Join(errs...)
}

// Events converts rows into scenario events.
func (s Series) Events(rows Rows) ([]scenario.DocumentEvent, error) {
	col := s.AtColumn
	if col == "" {
		col = DefaultAtColumn
	}

	out := make([]scenario.DocumentEvent, 0, len(rows))
	for i, row := range rows {
		raw, ok := row[col]
		if !ok {
			return nil, fmt.Errorf("row %d: missing column %q (have %s)", i+1, col, strings.Join(rows.Columns(), ", "))
		}
		ev := scenario.DocumentEvent{Kind: s.Kind, Data: make(map[string]any, len(s.Data)+len(row))}
		switch v := raw.(type) {
		case string:
			ev.At = v
		case int64:
			ev.PointInTime = v
		case float64:
			ev.PointInTime = int64(v)
		default:
			return nil, fmt.Errorf("row %d: %w: column %q holds %v", i+1, scenario.ErrInvalidEvent, col, raw)
		}
		if at, err := ev.Millis(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		} else if at < 0 {
			return nil, fmt.Errorf("row %d: %w: negative point in time %d", i+1, scenario.ErrInvalidEvent, at)
		}

		for k, v := range s.Data {
			ev.Data[k] = v
		}
		for k, v := range row {
			if k != col {
				ev.Data[k] = v
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// Expand loads every series and appends its events to the phase of doc it
// names. Files are resolved against baseDir.
func Expand(doc *scenario.Document, series []Series, baseDir string) error {
	for i, s := range series {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("series %d: %w", i, err)
		}
		idx := -1
		for j, p := range doc.Phases {
			if p.Name == s.Phase {
				idx = j
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("series %d: %w: %q", i, scenario.ErrPhaseNotFound, s.Phase)
		}

		rows, err := LoadFile(s.File, baseDir)
		if err != nil {
			return fmt.Errorf("series %d: %w", i, err)
		}
		events, err := s.Events(rows)
		if err != nil {
			return fmt.Errorf("series %d (%s): %w", i, s.File, err)
		}
		doc.Phases[idx].Events = append(doc.Phases[idx].Events, events...)
	}
	return nil
}
