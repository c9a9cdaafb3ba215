// Package scenario holds exercise scenarios, their phases and events, the
// configurations they are played with, and turns a selection of phases into
// a simulation queue.
package scenario

import (
	"fmt"
	"strconv"
	"time"
)

// Event is one scripted action at a point in time relative to the start of
// the exercise. Data is interpreted by the event's kind.
type Event struct {
	ID          int64          `json:"id" yaml:"id"`
	Kind        string         `json:"kind" yaml:"kind"`
	PointInTime int64          `json:"pointInTime" yaml:"pointInTime"` // ms
	Data        map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Phase groups events of a scenario.
type Phase struct {
	ID     int64   `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Events []Event `json:"events" yaml:"events"`
}

// Shift moves every event of the phase by delta milliseconds. It fails
// without changing anything if an event would end up before zero.
func (p *Phase) Shift(delta int64) error {
	for _, e := range p.Events {
		if e.PointInTime+delta < 0 {
			return fmt.Errorf("event %d at %dms shifted by %dms: %w", e.ID, e.PointInTime, delta, ErrInvalidShift)
		}
	}
	for i := range p.Events {
		p.Events[i].PointInTime += delta
	}
	return nil
}

func (p *Phase) eventIndex(id int64) int {
	for i, e := range p.Events {
		if e.ID == id {
			return i
		}
	}
	return -1
}

// Scenario is an exercise script. Its first phase is the standard phase,
// which always exists and collects the events of discarded phases.
type Scenario struct {
	ID              int64   `json:"id" yaml:"id"`
	Name            string  `json:"name" yaml:"name"`
	StandardPhaseID int64   `json:"standardPhaseId" yaml:"standardPhaseId"`
	Phases          []Phase `json:"phases" yaml:"phases"`
}

// Phase returns the phase with the given id.
func (s *Scenario) Phase(id int64) (*Phase, error) {
	for i := range s.Phases {
		if s.Phases[i].ID == id {
			return &s.Phases[i], nil
		}
	}
	return nil, fmt.Errorf("phase %d in scenario %d: %w", id, s.ID, ErrPhaseNotFound)
}

// EventCount returns the number of events over all phases.
func (s *Scenario) EventCount() int {
	n := 0
	for _, p := range s.Phases {
		n += len(p.Events)
	}
	return n
}

func (s *Scenario) clone() Scenario {
	out := *s
	out.Phases = make([]Phase, len(s.Phases))
	for i, p := range s.Phases {
		out.Phases[i] = p
		out.Phases[i].Events = append([]Event(nil), p.Events...)
	}
	return out
}

// Configuration carries the environment a scenario is played in: the wall
// time the exercise pretends to start at, and properties such as service
// URLs and credentials that actions read when they execute.
type Configuration struct {
	ID                int64          `json:"id" yaml:"id"`
	Name              string         `json:"name,omitempty" yaml:"name,omitempty"`
	ScenarioStartTime int64          `json:"scenarioStartTime" yaml:"scenarioStartTime"` // unix ms
	Properties        map[string]any `json:"properties,omitempty" yaml:"properties,omitempty"`
}

// StartTime is the scenario start as a UTC time.
func (c Configuration) StartTime() time.Time {
	return time.UnixMilli(c.ScenarioStartTime).UTC()
}

// EventTime is the absolute time an event pretends to happen at.
func (c Configuration) EventTime(e Event) time.Time {
	return c.StartTime().Add(time.Duration(e.PointInTime) * time.Millisecond)
}

// Property returns the property as a string.
func (c Configuration) Property(key string) (string, error) {
	v, ok := c.Properties[key]
	if !ok || v == nil {
		return "", fmt.Errorf("configuration %d: %w: %s", c.ID, ErrMissingProperty, key)
	}
	switch v := v.(type) {
	case string:
		if v == "" {
			return "", fmt.Errorf("configuration %d: %w: %s", c.ID, ErrMissingProperty, key)
		}
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return fmt.Sprint(v), nil
	}
}
