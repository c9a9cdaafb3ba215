// Package config loads playbook files for headless runs and server settings
// from the environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"tabletop/internal/collector"
	"tabletop/internal/data"
	"tabletop/internal/scenario"
)

// Playbook describes one headless replay: the scenario, the configuration
// it is played with, and how to run it.
type Playbook struct {
	Scenario      scenario.Document     `yaml:"scenario"`
	Configuration ConfigurationConfig   `yaml:"configuration"`
	Series        []data.Series         `yaml:"series,omitempty"`
	Phases        []string              `yaml:"phases,omitempty"` // names or ids; empty selects all
	Speed         float64               `yaml:"speed,omitempty"`
	Pool          PoolConfig            `yaml:"pool,omitempty"`
	Thresholds    *collector.Thresholds `yaml:"thresholds,omitempty"`
	Timeout       time.Duration         `yaml:"timeout,omitempty"` // bounds harvesting after the run
}

// ConfigurationConfig is the playbook form of scenario.Configuration.
type ConfigurationConfig struct {
	Name       string         `yaml:"name,omitempty"`
	StartTime  string         `yaml:"startTime,omitempty"` // RFC 3339; empty means now
	Properties map[string]any `yaml:"properties,omitempty"`
}

// PoolConfig bounds the worker pool. Zero values mean unbounded.
type PoolConfig struct {
	MaxInFlight   int64   `yaml:"maxInFlight,omitempty"`
	RatePerSecond float64 `yaml:"ratePerSecond,omitempty"`
}

// LoadPlaybook reads and parses a playbook file. Series files are resolved
// relative to the playbook and expanded into scenario events.
func LoadPlaybook(path string) (*Playbook, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading playbook: %w", err)
	}
	pb, err := ParsePlaybook(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing playbook %s: %w", path, err)
	}
	if err := data.Expand(&pb.Scenario, pb.Series, filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("playbook %s: %w", path, err)
	}
	return pb, nil
}

// ParsePlaybook parses and validates a YAML playbook. Unknown fields are
// rejected.
func ParsePlaybook(raw []byte) (*Playbook, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var pb Playbook
	if err := dec.Decode(&pb); err != nil {
		return nil, err
	}
	if err := pb.Validate(); err != nil {
		return nil, err
	}
	return &pb, nil
}

// Validate checks the run settings. Scenario events are validated when the
// scenario is imported.
func (p *Playbook) Validate() error {
	var errs []error
	if len(p.Scenario.Phases) == 0 {
		errs = append(errs, errors.New("scenario: at least one phase required"))
	}
	if p.Speed < 0 || math.IsNaN(p.Speed) || math.IsInf(p.Speed, 0) {
		errs = append(errs, fmt.Errorf("speed: must be a positive finite number, got %v", p.Speed))
	}
	if p.Pool.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("pool.maxInFlight: must not be negative, got %d", p.Pool.MaxInFlight))
	}
	if p.Pool.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("pool.ratePerSecond: must not be negative, got %v", p.Pool.RatePerSecond))
	}
	if p.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout: must not be negative, got %v", p.Timeout))
	}
	if p.Configuration.StartTime != "" {
		if _, err := time.Parse(time.RFC3339, p.Configuration.StartTime); err != nil {
			errs = append(errs, fmt.Errorf("configuration.startTime: %w", err))
		}
	}
	for i, s := range p.Series {
		if err := s.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("series[%d]: %w", i, err))
		}
	}
	if err := p.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("thresholds: %w", err))
	}
	return errors.Join(errs...)
}

// ScenarioConfiguration converts the playbook configuration. An empty start
// time uses now.
func (p *Playbook) ScenarioConfiguration(now time.Time) (scenario.Configuration, error) {
	start := now
	if p.Configuration.StartTime != "" {
		t, err := time.Parse(time.RFC3339, p.Configuration.StartTime)
		if err != nil {
			return scenario.Configuration{}, fmt.Errorf("configuration.startTime: %w", err)
		}
		start = t
	}
	return scenario.Configuration{
		Name:              p.Configuration.Name,
		ScenarioStartTime: start.UnixMilli(),
		Properties:        p.Configuration.Properties,
	}, nil
}

// PhaseIDs resolves the selected phases of an imported scenario. Each
// reference is a phase name or a numeric phase id. No selection selects
// every phase.
func (p *Playbook) PhaseIDs(s scenario.Scenario) ([]int64, error) {
	if len(p.Phases) == 0 {
		ids := make([]int64, len(s.Phases))
		for i, ph := range s.Phases {
			ids[i] = ph.ID
		}
		return ids, nil
	}
	ids := make([]int64, 0, len(p.Phases))
	for _, ref := range p.Phases {
		id, err := resolvePhase(s, ref)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func resolvePhase(s scenario.Scenario, ref string) (int64, error) {
	for _, ph := range s.Phases {
		if ph.Name == ref {
			return ph.ID, nil
		}
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		if _, err := s.Phase(id); err == nil {
			return id, nil
		}
	}
	return 0, fmt.Errorf("phases: %w: %q", scenario.ErrPhaseNotFound, ref)
}
