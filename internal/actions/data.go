package actions

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"tabletop/internal/core"
	"tabletop/internal/scenario"
	"tabletop/internal/template"
)

// variables exposes configuration properties, event data and the event's
// identity and scenario time to templates. Event data wins on conflicts.
func variables(ev scenario.Event, cfg scenario.Configuration) core.Variables {
	return core.VariablesFrom(cfg.Properties, ev.Data, map[string]any{
		"event.id":          ev.ID,
		"event.kind":        ev.Kind,
		"event.pointInTime": ev.PointInTime,
		template.TimeVar:    cfg.EventTime(ev),
	})
}

func text(data map[string]any, key string) (string, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: missing %q", scenario.ErrInvalidEvent, key)
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprint(v), nil
	}
	return s, nil
}

func integer(data map[string]any, key string) (int64, error) {
	v, ok := data[key]
	if !ok || v == nil {
		return 0, fmt.Errorf("%w: missing %q", scenario.ErrInvalidEvent, key)
	}
	if s, ok := v.(string); ok {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not an integer: %q", scenario.ErrInvalidEvent, key, s)
		}
		return n, nil
	}
	f, ok := number(v)
	if !ok || f != math.Trunc(f) {
		return 0, fmt.Errorf("%w: %q is not an integer: %v", scenario.ErrInvalidEvent, key, v)
	}
	return int64(f), nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

// point reads a GeoJSON point stored under key, either directly in data or
// in data["locations"].
func point(data map[string]any, key string) (lon, lat float64, err error) {
	raw, ok := data[key]
	if !ok {
		if locs, isMap := data["locations"].(map[string]any); isMap {
			raw, ok = locs[key]
		}
	}
	if !ok || raw == nil {
		return 0, 0, fmt.Errorf("%w: missing location %q", scenario.ErrInvalidEvent, key)
	}
	geo, ok := raw.(map[string]any)
	if !ok {
		return 0, 0, fmt.Errorf("%w: location %q is not an object", scenario.ErrInvalidEvent, key)
	}
	coords, ok := geo["coordinates"].([]any)
	if !ok || len(coords) < 2 {
		return 0, 0, fmt.Errorf("%w: location %q needs [longitude, latitude]", scenario.ErrInvalidEvent, key)
	}
	lon, okLon := number(coords[0])
	lat, okLat := number(coords[1])
	if !okLon || !okLat {
		return 0, 0, fmt.Errorf("%w: location %q has non-numeric coordinates", scenario.ErrInvalidEvent, key)
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return 0, 0, fmt.Errorf("%w: location %q out of range", scenario.ErrInvalidEvent, key)
	}
	return lon, lat, nil
}
