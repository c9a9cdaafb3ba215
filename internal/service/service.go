// Package service manages the simulations of a running server: it builds
// them from stored scenarios, relays control operations and harvests their
// results.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"strconv"
	"sync"
	"time"

	"tabletop/internal/collector"
	"tabletop/internal/core"
	"tabletop/internal/ratelimit"
	"tabletop/internal/scenario"
	"tabletop/internal/simulation"
	"tabletop/internal/storage"
)

//go:generate mockgen -destination mock_archive_test.go -package service tabletop/internal/service Archive

var (
	ErrSimulationNotFound = errors.New("simulation not found")
	ErrNoPhases           = errors.New("at least one phase must be selected")
)

// Factories binds events to actions for a configuration.
type Factories interface {
	Factory(cfg scenario.Configuration) scenario.Factory
}

// Archive stores harvested summaries.
type Archive interface {
	Save(ctx context.Context, simulationID int64, s *collector.Summary, th *collector.ThresholdResults) (storage.Report, error)
}

// Instruments receives action and state change events, see metrics.Metrics.
type Instruments interface {
	simulation.Observer
	Transition(from, to simulation.State)
}

// Options configures a Service. Repository and Factories are required.
type Options struct {
	Repository *scenario.Repository
	Factories  Factories
	Archive    Archive
	Metrics    Instruments
	Logger     *log.Logger
	Clock      core.Clock
	// MaxInFlight bounds concurrently executing actions per simulation.
	MaxInFlight int64
	// Limiter paces action starts across all simulations.
	Limiter *ratelimit.RateLimiter
}

// CreateRequest selects what a new simulation plays.
type CreateRequest struct {
	ScenarioID      int64   `json:"scenarioId"`
	ConfigurationID int64   `json:"configurationId"`
	PhaseIDs        []int64 `json:"phaseIds"`
	Speed           float64 `json:"speed,omitempty"`
}

// Snapshot is a consistent view of one simulation.
type Snapshot struct {
	ID              int64            `json:"id"`
	ScenarioID      int64            `json:"scenarioId"`
	ConfigurationID int64            `json:"configurationId"`
	PhaseIDs        []int64          `json:"selectedPhaseIds"`
	State           simulation.State `json:"state"`
	Speed           float64          `json:"speed"`
	PointInTime     int64            `json:"pointInTime"`
	Pending         int              `json:"pending"`
	Dispatched      int              `json:"dispatched"`
	InFlight        int64            `json:"inFlight"`
	CreatedAt       time.Time        `json:"createdAt"`
}

// Result is the outcome of Collect.
type Result struct {
	Summary    *collector.Summary
	Thresholds *collector.ThresholdResults
	// RunID identifies the archived report; empty without an archive.
	RunID string
}

type run struct {
	id              int64
	scenarioID      int64
	configurationID int64
	phaseIDs        []int64
	createdAt       time.Time
	sim             *simulation.Simulation
	pool            *simulation.Pool
}

func (r *run) snapshot() Snapshot {
	st := r.sim.Status()
	return Snapshot{
		ID:              r.id,
		ScenarioID:      r.scenarioID,
		ConfigurationID: r.configurationID,
		PhaseIDs:        append([]int64(nil), r.phaseIDs...),
		State:           st.State,
		Speed:           st.Speed,
		PointInTime:     st.PointInTime,
		Pending:         st.Pending,
		Dispatched:      st.Dispatched,
		InFlight:        r.pool.InFlight(),
		CreatedAt:       r.createdAt,
	}
}

// Service owns every simulation created through it.
type Service struct {
	opts Options

	mu     sync.RWMutex
	runs   map[int64]*run
	nextID int64
}

func New(opts Options) (*Service, error) {
	if opts.Repository == nil {
		return nil, errors.New("service: repository is required")
	}
	if opts.Factories == nil {
		return nil, errors.New("service: action factories are required")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	return &Service{opts: opts, runs: make(map[int64]*run)}, nil
}

// Create builds a simulation of the selected phases played with the given
// configuration. The simulation starts INITIALIZED.
func (s *Service) Create(req CreateRequest) (Snapshot, error) {
	if len(req.PhaseIDs) == 0 {
		return Snapshot{}, ErrNoPhases
	}
	sc, err := s.opts.Repository.Scenario(req.ScenarioID)
	if err != nil {
		return Snapshot{}, err
	}
	cfg, err := s.opts.Repository.Configuration(req.ConfigurationID)
	if err != nil {
		return Snapshot{}, err
	}
	events, err := scenario.SelectEvents(sc, req.PhaseIDs)
	if err != nil {
		return Snapshot{}, err
	}
	queue, err := scenario.BuildQueue(events, s.opts.Factories.Factory(cfg))
	if err != nil {
		return Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID

	poolOpts := simulation.PoolOptions{
		MaxInFlight: s.opts.MaxInFlight,
		Limiter:     s.opts.Limiter,
		Clock:       s.opts.Clock,
	}
	simOpts := simulation.Options{
		Name:   strconv.FormatInt(id, 10),
		Clock:  s.opts.Clock,
		Logger: s.opts.Logger,
		Speed:  req.Speed,
	}
	if s.opts.Metrics != nil {
		poolOpts.Observer = s.opts.Metrics
		simOpts.OnTransition = s.opts.Metrics.Transition
	}
	pool := simulation.NewPool(poolOpts)
	simOpts.Pool = pool

	sim, err := simulation.New(queue, simOpts)
	if err != nil {
		s.nextID--
		return Snapshot{}, err
	}
	r := &run{
		id:              id,
		scenarioID:      sc.ID,
		configurationID: cfg.ID,
		phaseIDs:        append([]int64(nil), req.PhaseIDs...),
		createdAt:       s.opts.Clock.Now(),
		sim:             sim,
		pool:            pool,
	}
	s.runs[id] = r
	s.opts.Logger.Printf("simulation %d: created for scenario %d with %d events", id, sc.ID, len(events))
	return r.snapshot(), nil
}

func (s *Service) get(id int64) (*run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("simulation %d: %w", id, ErrSimulationNotFound)
	}
	return r, nil
}

// Get returns a snapshot of one simulation.
func (s *Service) Get(id int64) (Snapshot, error) {
	r, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot(), nil
}

// Simulation exposes the engine of one simulation.
func (s *Service) Simulation(id int64) (*simulation.Simulation, error) {
	r, err := s.get(id)
	if err != nil {
		return nil, err
	}
	return r.sim, nil
}

// List returns every simulation ordered by id.
func (s *Service) List() []Snapshot {
	return s.filter(func(*run) bool { return true })
}

// ListForScenario returns the simulations of one scenario ordered by id.
func (s *Service) ListForScenario(scenarioID int64) []Snapshot {
	return s.filter(func(r *run) bool { return r.scenarioID == scenarioID })
}

func (s *Service) filter(keep func(*run) bool) []Snapshot {
	s.mu.RLock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		if keep(r) {
			runs = append(runs, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool { return runs[i].id < runs[j].id })
	out := make([]Snapshot, len(runs))
	for i, r := range runs {
		out[i] = r.snapshot()
	}
	return out
}

func (s *Service) control(id int64, op func(*simulation.Simulation) error) (Snapshot, error) {
	r, err := s.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := op(r.sim); err != nil {
		return Snapshot{}, err
	}
	return r.snapshot(), nil
}

func (s *Service) Start(id int64) (Snapshot, error) {
	return s.control(id, func(sim *simulation.Simulation) error {
		sim.Start()
		return nil
	})
}

func (s *Service) TogglePause(id int64) (Snapshot, error) {
	return s.control(id, func(sim *simulation.Simulation) error {
		sim.TogglePause()
		return nil
	})
}

// Play starts or resumes the simulation.
func (s *Service) Play(id int64) (Snapshot, error) {
	return s.control(id, func(sim *simulation.Simulation) error {
		sim.Play()
		return nil
	})
}

func (s *Service) Pause(id int64) (Snapshot, error) {
	return s.control(id, func(sim *simulation.Simulation) error {
		sim.Pause()
		return nil
	})
}

func (s *Service) Stop(id int64) (Snapshot, error) {
	return s.control(id, func(sim *simulation.Simulation) error {
		sim.Stop()
		return nil
	})
}

// FastForward skips to the due time of event eventID.
func (s *Service) FastForward(id, eventID int64) (Snapshot, error) {
	return s.control(id, func(sim *simulation.Simulation) error {
		_, err := sim.FastForwardTo(eventID)
		return err
	})
}

func (s *Service) ChangeSpeed(id int64, factor float64) (Snapshot, error) {
	return s.control(id, func(sim *simulation.Simulation) error {
		return sim.ChangeSpeed(factor)
	})
}

// Collect waits for every action dispatched so far, summarizes the reports
// and archives the summary. It does not stop the simulation; actions
// dispatched after the call are not included.
func (s *Service) Collect(ctx context.Context, id int64, thresholds *collector.Thresholds) (Result, error) {
	r, err := s.get(id)
	if err != nil {
		return Result{}, err
	}

	c := collector.NewCollector()
	if err := c.Harvest(ctx, r.sim.ResultHandles()); err != nil {
		return Result{}, fmt.Errorf("simulation %d: harvest: %w", id, err)
	}
	c.Close()

	res := Result{Summary: c.Compute(strconv.FormatInt(id, 10))}
	res.Thresholds = thresholds.Check(res.Summary)
	if s.opts.Archive != nil {
		report, err := s.opts.Archive.Save(ctx, id, res.Summary, res.Thresholds)
		if err != nil {
			return Result{}, fmt.Errorf("simulation %d: archive: %w", id, err)
		}
		res.RunID = report.RunID
	}
	return res, nil
}

// Close stops every simulation and waits for dispatched actions to finish
// or ctx to end.
func (s *Service) Close(ctx context.Context) error {
	s.mu.RLock()
	runs := make([]*run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	for _, r := range runs {
		r.sim.Stop()
	}
	done := make(chan struct{})
	go func() {
		for _, r := range runs {
			r.pool.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
