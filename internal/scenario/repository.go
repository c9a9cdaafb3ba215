package scenario

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Validator checks event data against its kind.
type Validator interface {
	Validate(kind string, data map[string]any) error
}

// Repository stores scenarios and configurations in memory. It assigns
// identifiers from its own counters: scenario, phase and event ids are
// unique within the repository, configuration ids likewise.
type Repository struct {
	validator Validator

	mu             sync.RWMutex
	scenarios      map[int64]*Scenario
	configurations map[int64]*Configuration
	nextScenario   int64
	nextPhase      int64
	nextEvent      int64
	nextConfig     int64
}

// NewRepository creates an empty repository. A nil validator accepts any
// event.
func NewRepository(v Validator) *Repository {
	return &Repository{
		validator:      v,
		scenarios:      make(map[int64]*Scenario),
		configurations: make(map[int64]*Configuration),
	}
}

func (r *Repository) validate(kind string, data map[string]any) error {
	if strings.TrimSpace(kind) == "" {
		return fmt.Errorf("%w: empty kind", ErrUnknownKind)
	}
	if r.validator == nil {
		return nil
	}
	return r.validator.Validate(kind, data)
}

func (r *Repository) scenario(id int64) (*Scenario, error) {
	s, ok := r.scenarios[id]
	if !ok {
		return nil, fmt.Errorf("scenario %d: %w", id, ErrScenarioNotFound)
	}
	return s, nil
}

// CreateScenario adds an empty scenario with its standard phase.
func (r *Repository) CreateScenario(name string) Scenario {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextScenario++
	r.nextPhase++
	s := &Scenario{
		ID:              r.nextScenario,
		Name:            name,
		StandardPhaseID: r.nextPhase,
		Phases:          []Phase{{ID: r.nextPhase, Name: "Standard"}},
	}
	r.scenarios[s.ID] = s
	return s.clone()
}

// Scenario returns a copy of the scenario.
func (r *Repository) Scenario(id int64) (Scenario, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, err := r.scenario(id)
	if err != nil {
		return Scenario{}, err
	}
	return s.clone(), nil
}

// Scenarios returns copies of all scenarios ordered by id.
func (r *Repository) Scenarios() []Scenario {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Scenario, 0, len(r.scenarios))
	for _, s := range r.scenarios {
		out = append(out, s.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) DeleteScenario(id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.scenario(id); err != nil {
		return err
	}
	delete(r.scenarios, id)
	return nil
}

func (r *Repository) RenameScenario(id int64, name string) (Scenario, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.scenario(id)
	if err != nil {
		return Scenario{}, err
	}
	s.Name = name
	return s.clone(), nil
}

// AddPhase appends an empty phase.
func (r *Repository) AddPhase(scenarioID int64, name string) (Phase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.scenario(scenarioID)
	if err != nil {
		return Phase{}, err
	}
	r.nextPhase++
	p := Phase{ID: r.nextPhase, Name: name}
	s.Phases = append(s.Phases, p)
	return p, nil
}

// DiscardPhase removes a phase; its events move to the standard phase.
func (r *Repository) DiscardPhase(scenarioID, phaseID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, err := r.scenario(scenarioID)
	if err != nil {
		return err
	}
	if phaseID == s.StandardPhaseID {
		return ErrStandardPhase
	}
	idx := -1
	for i, p := range s.Phases {
		if p.ID == phaseID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("phase %d in scenario %d: %w", phaseID, scenarioID, ErrPhaseNotFound)
	}

	moved := s.Phases[idx].Events
	s.Phases = append(s.Phases[:idx], s.Phases[idx+1:]...)
	std, err := s.Phase(s.StandardPhaseID)
	if err != nil {
		return err
	}
	std.Events = append(std.Events, moved...)
	return nil
}

// ShiftPhase moves every event of a phase by delta milliseconds.
func (r *Repository) ShiftPhase(scenarioID, phaseID, delta int64) (Phase, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.phase(scenarioID, phaseID)
	if err != nil {
		return Phase{}, err
	}
	if err := p.Shift(delta); err != nil {
		return Phase{}, err
	}
	out := *p
	out.Events = append([]Event(nil), p.Events...)
	return out, nil
}

func (r *Repository) phase(scenarioID, phaseID int64) (*Phase, error) {
	s, err := r.scenario(scenarioID)
	if err != nil {
		return nil, err
	}
	return s.Phase(phaseID)
}

// AddEvent validates and appends an event to a phase.
func (r *Repository) AddEvent(scenarioID, phaseID int64, kind string, pointInTime int64, data map[string]any) (Event, error) {
	if pointInTime < 0 {
		return Event{}, fmt.Errorf("%w: negative point in time %d", ErrInvalidEvent, pointInTime)
	}
	if err := r.validate(kind, data); err != nil {
		return Event{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.phase(scenarioID, phaseID)
	if err != nil {
		return Event{}, err
	}
	r.nextEvent++
	e := Event{ID: r.nextEvent, Kind: kind, PointInTime: pointInTime, Data: data}
	p.Events = append(p.Events, e)
	return e, nil
}

// EditEvent replaces the point in time and data of an event. The kind of
// an event never changes.
func (r *Repository) EditEvent(scenarioID, phaseID, eventID, pointInTime int64, data map[string]any) (Event, error) {
	if pointInTime < 0 {
		return Event{}, fmt.Errorf("%w: negative point in time %d", ErrInvalidEvent, pointInTime)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.phase(scenarioID, phaseID)
	if err != nil {
		return Event{}, err
	}
	i := p.eventIndex(eventID)
	if i < 0 {
		return Event{}, fmt.Errorf("event %d in phase %d: %w", eventID, phaseID, ErrEventNotFound)
	}
	if err := r.validate(p.Events[i].Kind, data); err != nil {
		return Event{}, err
	}
	p.Events[i].PointInTime = pointInTime
	p.Events[i].Data = data
	return p.Events[i], nil
}

func (r *Repository) RemoveEvent(scenarioID, phaseID, eventID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.phase(scenarioID, phaseID)
	if err != nil {
		return err
	}
	i := p.eventIndex(eventID)
	if i < 0 {
		return fmt.Errorf("event %d in phase %d: %w", eventID, phaseID, ErrEventNotFound)
	}
	p.Events = append(p.Events[:i], p.Events[i+1:]...)
	return nil
}

// CreateConfiguration stores cfg under a new id. Its ID field is ignored.
func (r *Repository) CreateConfiguration(cfg Configuration) Configuration {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextConfig++
	cfg.ID = r.nextConfig
	stored := cfg
	r.configurations[cfg.ID] = &stored
	return cfg
}

func (r *Repository) Configuration(id int64) (Configuration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.configurations[id]
	if !ok {
		return Configuration{}, fmt.Errorf("configuration %d: %w", id, ErrConfigurationNotFound)
	}
	return *c, nil
}

// Configurations returns all configurations ordered by id.
func (r *Repository) Configurations() []Configuration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Configuration, 0, len(r.configurations))
	for _, c := range r.configurations {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
