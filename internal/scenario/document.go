package scenario

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Document is the portable form of a scenario. It carries no identifiers;
// the repository assigns new ones on import.
type Document struct {
	Name   string          `json:"name" yaml:"name"`
	Phases []DocumentPhase `json:"phases" yaml:"phases"`
}

type DocumentPhase struct {
	Name string `json:"name" yaml:"name"`
	// Standard marks the phase that collects the events of discarded
	// phases. At most one phase may carry it.
	Standard bool            `json:"standard,omitempty" yaml:"standard,omitempty"`
	Events   []DocumentEvent `json:"events,omitempty" yaml:"events,omitempty"`
}

type DocumentEvent struct {
	Kind string `json:"kind" yaml:"kind"`
	// PointInTime is in milliseconds. At accepts a duration such as
	// "1m30s" instead and wins when both are given.
	PointInTime int64          `json:"pointInTime,omitempty" yaml:"pointInTime,omitempty"`
	At          string         `json:"at,omitempty" yaml:"at,omitempty"`
	Data        map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Millis resolves the event's point in time.
func (e DocumentEvent) Millis() (int64, error) {
	if e.At == "" {
		return e.PointInTime, nil
	}
	d, err := time.ParseDuration(e.At)
	if err != nil {
		return 0, fmt.Errorf("%w: at %q: %v", ErrInvalidEvent, e.At, err)
	}
	return d.Milliseconds(), nil
}

// ParseDocument decodes a YAML or JSON scenario document.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("parse scenario document: %w", err)
	}
	return doc, nil
}

func (d Document) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func (d Document) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}

func (d Document) validate(v func(kind string, data map[string]any) error) error {
	standards := 0
	for pi, p := range d.Phases {
		if p.Standard {
			standards++
		}
		for ei, e := range p.Events {
			at, err := e.Millis()
			if err != nil {
				return fmt.Errorf("phase %d event %d: %w", pi, ei, err)
			}
			if at < 0 {
				return fmt.Errorf("phase %d event %d: %w: negative point in time %d", pi, ei, ErrInvalidEvent, at)
			}
			if err := v(e.Kind, e.Data); err != nil {
				return fmt.Errorf("phase %d event %d: %w", pi, ei, err)
			}
		}
	}
	if standards > 1 {
		return fmt.Errorf("%w: %d standard phases", ErrInvalidEvent, standards)
	}
	return nil
}

// ImportScenario stores a document as a new scenario. Every event is
// validated first; an invalid document leaves the repository unchanged.
// Without a phase marked standard an empty standard phase is created.
func (r *Repository) ImportScenario(doc Document) (Scenario, error) {
	if err := doc.validate(r.validate); err != nil {
		return Scenario{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextScenario++
	s := &Scenario{ID: r.nextScenario, Name: doc.Name}

	hasStandard := false
	for _, p := range doc.Phases {
		hasStandard = hasStandard || p.Standard
	}
	if !hasStandard {
		r.nextPhase++
		s.StandardPhaseID = r.nextPhase
		s.Phases = append(s.Phases, Phase{ID: r.nextPhase, Name: "Standard"})
	}

	for _, dp := range doc.Phases {
		r.nextPhase++
		p := Phase{ID: r.nextPhase, Name: dp.Name}
		if dp.Standard {
			s.StandardPhaseID = p.ID
		}
		for _, de := range dp.Events {
			at, _ := de.Millis()
			r.nextEvent++
			p.Events = append(p.Events, Event{ID: r.nextEvent, Kind: de.Kind, PointInTime: at, Data: de.Data})
		}
		if dp.Standard {
			s.Phases = append([]Phase{p}, s.Phases...)
		} else {
			s.Phases = append(s.Phases, p)
		}
	}

	r.scenarios[s.ID] = s
	return s.clone(), nil
}

// ExportScenario renders a scenario as a document.
func (r *Repository) ExportScenario(id int64) (Document, error) {
	s, err := r.Scenario(id)
	if err != nil {
		return Document{}, err
	}
	doc := Document{Name: s.Name}
	for _, p := range s.Phases {
		dp := DocumentPhase{Name: p.Name, Standard: p.ID == s.StandardPhaseID}
		for _, e := range p.Events {
			dp.Events = append(dp.Events, DocumentEvent{Kind: e.Kind, PointInTime: e.PointInTime, Data: e.Data})
		}
		doc.Phases = append(doc.Phases, dp)
	}
	return doc, nil
}
