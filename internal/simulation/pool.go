package simulation

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"tabletop/internal/core"
	"tabletop/internal/ratelimit"
)

//go:generate mockgen -destination mock_core_test.go -package simulation tabletop/internal/core Reporter

const tracerName = "tabletop/internal/simulation"

// Observer watches action executions. Calls arrive from worker goroutines.
type Observer interface {
	Started(e Entry)
	Finished(r core.ExecutionReport)
}

// PoolOptions configures a Pool. The zero value is an unbounded pool that
// starts every submitted action immediately.
type PoolOptions struct {
	// MaxInFlight bounds concurrently executing actions; 0 means unbounded.
	// Submissions beyond the bound wait inside their own goroutine, never in
	// the caller.
	MaxInFlight int64
	// Limiter paces action starts; nil disables pacing.
	Limiter  *ratelimit.RateLimiter
	Reporter core.Reporter
	Observer Observer
	Clock    core.Clock
}

// Pool executes submitted actions concurrently, one goroutine per action.
type Pool struct {
	ctx      context.Context
	opts     PoolOptions
	sem      *semaphore.Weighted
	tracer   trace.Tracer
	wg       sync.WaitGroup
	inFlight atomic.Int64
}

func NewPool(opts PoolOptions) *Pool {
	if opts.Reporter == nil {
		opts.Reporter = core.NullReporter
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	p := &Pool{
		ctx:    context.Background(),
		opts:   opts,
		tracer: otel.Tracer(tracerName),
	}
	if opts.MaxInFlight > 0 {
		p.sem = semaphore.NewWeighted(opts.MaxInFlight)
	}
	return p
}

// Submit starts executing e and returns its result handle without waiting.
func (p *Pool) Submit(e Entry) *Handle {
	h := newHandle(e.ID)
	p.wg.Add(1)
	go p.run(e, h)
	return h
}

// Wait blocks until every submitted action has completed.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// InFlight returns the number of actions currently executing.
func (p *Pool) InFlight() int64 {
	return p.inFlight.Load()
}

func (p *Pool) run(e Entry, h *Handle) {
	defer p.wg.Done()

	if p.sem != nil {
		// the pool context is never cancelled, so Acquire cannot fail
		_ = p.sem.Acquire(p.ctx, 1)
		defer p.sem.Release(1)
	}
	if p.opts.Limiter != nil {
		_ = p.opts.Limiter.Wait(p.ctx)
	}

	p.inFlight.Add(1)
	if p.opts.Observer != nil {
		p.opts.Observer.Started(e)
	}

	report := p.execute(e)

	p.inFlight.Add(-1)
	h.complete(report)
	if p.opts.Observer != nil {
		p.opts.Observer.Finished(report)
	}
	p.opts.Reporter.Report(report)
}

func (p *Pool) execute(e Entry) core.ExecutionReport {
	ctx := core.ContextWithActionID(p.ctx, e.ID)
	ctx, span := p.tracer.Start(ctx, "action.execute", trace.WithAttributes(
		attribute.Int64("action.id", e.ID),
		attribute.Int64("action.due_ms", e.DueTime),
	))
	defer span.End()

	start := p.opts.Clock.Now()
	report := p.safeExecute(ctx, e)

	if report.ActionID == 0 {
		report.ActionID = e.ID
	}
	report.DueTime = e.DueTime
	if report.CompletedAt.IsZero() {
		report.CompletedAt = p.opts.Clock.Now()
	}
	if report.Duration == 0 {
		report.Duration = report.CompletedAt.Sub(start)
	}

	span.SetAttributes(attribute.String("action.kind", report.Kind))
	if !report.Succeeded() {
		span.SetStatus(codes.Error, report.Error)
	}
	return report
}

// safeExecute turns a panicking action into an exceptional report.
func (p *Pool) safeExecute(ctx context.Context, e Entry) (report core.ExecutionReport) {
	defer func() {
		if r := recover(); r != nil {
			report = core.ExecutionReport{
				ActionID:    e.ID,
				Outcome:     core.CompletedExceptionally,
				Error:       fmt.Sprintf("panic: %v", r),
				CompletedAt: p.opts.Clock.Now(),
			}
		}
	}()
	if e.Action == nil {
		return core.ExecutionReport{
			ActionID: e.ID,
			Outcome:  core.CompletedExceptionally,
			Error:    "no action bound to entry",
		}
	}
	return e.Action.Execute(ctx)
}

// Handle is the asynchronous result of one dispatched action.
type Handle struct {
	id     int64
	done   chan struct{}
	report core.ExecutionReport
}

func newHandle(id int64) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

func (h *Handle) complete(r core.ExecutionReport) {
	h.report = r
	close(h.done)
}

// ActionID is the identity of the dispatched action.
func (h *Handle) ActionID() int64 {
	return h.id
}

// Done is closed once the report is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the action completed or ctx is done.
func (h *Handle) Wait(ctx context.Context) (core.ExecutionReport, error) {
	select {
	case <-h.done:
		return h.report, nil
	case <-ctx.Done():
		return core.ExecutionReport{}, ctx.Err()
	}
}

// Report returns the report if the action has completed.
func (h *Handle) Report() (core.ExecutionReport, bool) {
	select {
	case <-h.done:
		return h.report, true
	default:
		return core.ExecutionReport{}, false
	}
}
