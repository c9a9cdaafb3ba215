// Package data loads tabular files (CSV or JSON) and turns their rows into
// scenario events, so a measurement series can be scripted from a file
// instead of by hand.
package data

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// Rows is a loaded table. Each row maps column names to values.
type Rows []map[string]any

// Columns returns the column names of the first row, sorted.
func (r Rows) Columns() []string {
	if len(r) == 0 {
		return nil
	}
	cols := make([]string, 0, len(r[0]))
	for c := range r[0] {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

// LoadFile loads a CSV or JSON data file. Relative paths are resolved
// against baseDir, usually the directory of the playbook.
func LoadFile(path, baseDir string) (Rows, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	var (
		rows Rows
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = loadCSV(path)
	case ".json":
		rows, err = loadJSON(path)
	default:
		return nil, fmt.Errorf("unsupported file format %q (use .csv or .json)", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data file %s is empty", path)
	}
	return rows, nil
}

// loadCSV reads a header row followed by data rows. Cells that parse as
// numbers or booleans are converted.
func loadCSV(path string) (Rows, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	headers := records[0]
	rows := make(Rows, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(headers))
		for i, header := range headers {
			if i < len(record) {
				row[header] = cell(record[i])
			} else {
				row[header] = ""
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// loadJSON reads an array of objects.
func loadJSON(path string) (Rows, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows Rows
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}
	return rows, nil
}

func cell(s string) any {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}
