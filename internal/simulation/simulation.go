// Package simulation replays a queue of scheduled actions against a virtual
// clock that can be paused, sped up, slowed down and fast-forwarded.
package simulation

import (
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"time"

	"tabletop/internal/core"
)

var (
	// ErrUnknownAction is returned by FastForwardTo when no queued action
	// carries the requested identity.
	ErrUnknownAction = errors.New("action is not queued")
	ErrInvalidSpeed  = errors.New("speed must be a positive finite number")
)

// Options configures a Simulation.
type Options struct {
	Name   string
	Clock  core.Clock
	Logger *log.Logger
	// Pool executes dispatched actions. Defaults to an unbounded pool.
	Pool *Pool
	// Speed is the initial speed factor. Defaults to 1.
	Speed float64
	// OnTransition is called with the lock held after every state change.
	// It must not call back into the Simulation.
	OnTransition func(from, to State)
}

// Status is a consistent snapshot of a Simulation.
type Status struct {
	State       State   `json:"state"`
	Speed       float64 `json:"speed"`
	PointInTime int64   `json:"pointInTime"`
	Pending     int     `json:"pending"`
	Dispatched  int     `json:"dispatched"`
}

// Simulation is the playback engine for one queue of actions.
//
// A single mutex guards the state, the clock bookkeeping and the queue. The
// driver loop holds it only while dispatching due entries, which never
// blocks because Pool.Submit returns immediately.
type Simulation struct {
	name  string
	clock core.Clock
	log   *log.Logger
	pool  *Pool
	hook  func(from, to State)

	mu      sync.Mutex
	state   State
	tl      timeline
	queue   *Queue
	handles []*Handle

	wake     chan struct{}
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Simulation in the INITIALIZED state. It takes ownership of
// queue.
func New(queue *Queue, opts Options) (*Simulation, error) {
	if opts.Speed == 0 {
		opts.Speed = 1
	}
	if !validSpeed(opts.Speed) {
		return nil, fmt.Errorf("speed %v: %w", opts.Speed, ErrInvalidSpeed)
	}
	if queue == nil {
		queue = &Queue{}
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Pool == nil {
		opts.Pool = NewPool(PoolOptions{Clock: opts.Clock})
	}
	return &Simulation{
		name:  opts.Name,
		clock: opts.Clock,
		log:   opts.Logger,
		pool:  opts.Pool,
		hook:  opts.OnTransition,
		state: Initialized,
		tl:    newTimeline(opts.Speed),
		queue: queue,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}, nil
}

func validSpeed(f float64) bool {
	return f > 0 && !math.IsInf(f, 0) && !math.IsNaN(f)
}

// Start moves an INITIALIZED simulation to RUNNING and launches the driver
// loop. It is a no-op in any other state.
func (s *Simulation) Start() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Initialized {
		s.start()
	}
	return s.state
}

func (s *Simulation) start() {
	s.tl.begin(s.clock.Now())
	s.transition(Running)
	go s.drive()
}

// Play starts an INITIALIZED simulation or resumes a PAUSED one. It is a
// no-op in any other state.
func (s *Simulation) Play() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Initialized:
		s.start()
	case Paused:
		s.tl.resume(s.clock.Now())
		s.transition(Running)
		s.wakeUp()
	}
	return s.state
}

// Pause pauses a RUNNING simulation. It is a no-op in any other state.
func (s *Simulation) Pause() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Running {
		s.tl.pause(s.clock.Now())
		s.transition(Paused)
		s.wakeUp()
	}
	return s.state
}

// TogglePause switches between RUNNING and PAUSED. It is a no-op in any
// other state.
func (s *Simulation) TogglePause() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	switch s.state {
	case Running:
		s.tl.pause(now)
		s.transition(Paused)
	case Paused:
		s.tl.resume(now)
		s.transition(Running)
	default:
		return s.state
	}
	s.wakeUp()
	return s.state
}

// Stop terminates the simulation. Actions still queued are never
// dispatched; actions already dispatched run to completion. Stopping a
// FINISHED or TERMINATED simulation is a no-op.
func (s *Simulation) Stop() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return s.state
	}
	now := s.clock.Now()
	if s.state == Paused {
		s.tl.resume(now)
	}
	wasStarted := s.state != Initialized
	s.tl.finish(now)
	s.transition(Terminated)
	if wasStarted {
		s.wakeUp()
	} else {
		s.closeDone()
	}
	return s.state
}

// ChangeSpeed sets a new speed factor while keeping the point in time
// continuous. Changes smaller than 0.0001 and changes on a finished or
// terminated simulation are ignored.
func (s *Simulation) ChangeSpeed(factor float64) error {
	if !validSpeed(factor) {
		return fmt.Errorf("speed %v: %w", factor, ErrInvalidSpeed)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return nil
	}
	old := s.tl.speed
	if s.tl.changeSpeed(s.state, s.clock.Now(), factor) {
		s.log.Printf("simulation %s: speed %.4g -> %.4g", s.name, old, factor)
		s.wakeUp()
	}
	return nil
}

// FastForwardTo dispatches every action queued before the one identified by
// id, regardless of due time, then advances the clock so that action is
// exactly due. An unknown id is rejected without any change. On a finished
// or terminated simulation it is a no-op.
func (s *Simulation) FastForwardTo(id int64) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() {
		return s.state, nil
	}
	idx := s.queue.Index(id)
	if idx < 0 {
		return s.state, fmt.Errorf("fast-forward to %d: %w", id, ErrUnknownAction)
	}

	now := s.clock.Now()
	resume := s.state == Running
	if resume {
		s.tl.pause(now)
		s.state = Paused
	}

	for range idx {
		e, _ := s.queue.Pop()
		s.dispatch(e)
	}
	head, _ := s.queue.Peek()
	pit := s.tl.pointInTime(s.state, now)
	// never jump backwards when the target is already overdue
	if delta := head.DueTime - pit; delta > 0 {
		s.tl.fastForwardBy(delta)
	}
	s.log.Printf("simulation %s: fast-forward to action %d (t=%dms), %d skipped ahead",
		s.name, id, head.DueTime, idx)

	if resume {
		s.tl.resume(now)
		s.state = Running
	}
	s.wakeUp()
	return s.state, nil
}

// PointInTime returns the simulated time in milliseconds since start.
func (s *Simulation) PointInTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.pointInTime(s.state, s.clock.Now())
}

// ResultHandles returns the handles of all dispatched actions in dispatch
// order.
func (s *Simulation) ResultHandles() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

func (s *Simulation) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Simulation) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tl.speed
}

// Pending returns the number of actions not yet dispatched.
func (s *Simulation) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// Queued returns the not yet dispatched entries in dispatch order.
func (s *Simulation) Queued() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Entries()
}

func (s *Simulation) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		State:       s.state,
		Speed:       s.tl.speed,
		PointInTime: s.tl.pointInTime(s.state, s.clock.Now()),
		Pending:     s.queue.Len(),
		Dispatched:  len(s.handles),
	}
}

// Done is closed once the simulation reached FINISHED or TERMINATED and the
// driver loop has exited.
func (s *Simulation) Done() <-chan struct{} {
	return s.done
}

// Pool returns the pool dispatched actions run on.
func (s *Simulation) Pool() *Pool {
	return s.pool
}

// drive is the driver loop. It owns no state of its own; every decision is
// taken under s.mu by step.
func (s *Simulation) drive() {
	defer s.closeDone()
	for {
		next := s.step()
		switch {
		case next.exit:
			return
		case next.paused:
			<-s.wake
		default:
			s.sleep(next.wait)
		}
	}
}

// stepResult tells the driver loop what to do after a step.
type stepResult struct {
	wait   time.Duration // until the next entry is due
	paused bool
	exit   bool
}

// step dispatches every due entry and reports how the loop continues.
func (s *Simulation) step() stepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Running:
	case Paused:
		return stepResult{paused: true}
	default:
		return stepResult{exit: true}
	}

	now := s.clock.Now()
	for {
		head, ok := s.queue.Peek()
		if !ok {
			s.tl.finish(now)
			s.transition(Finished)
			return stepResult{exit: true}
		}
		pit := s.tl.pointInTime(s.state, now)
		if pit < head.DueTime {
			return stepResult{wait: s.tl.wallDuration(head.DueTime - pit)}
		}
		s.queue.Pop()
		s.dispatch(head)
	}
}

// sleep blocks for d or until a control operation wakes the loop.
func (s *Simulation) sleep(d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-s.wake:
	}
}

func (s *Simulation) dispatch(e Entry) {
	s.handles = append(s.handles, s.pool.Submit(e))
}

func (s *Simulation) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Simulation) transition(to State) {
	s.log.Printf("simulation %s: %s -> %s", s.name, s.state, to)
	from := s.state
	s.state = to
	if s.hook != nil {
		s.hook(from, to)
	}
}

func (s *Simulation) closeDone() {
	s.doneOnce.Do(func() { close(s.done) })
}
