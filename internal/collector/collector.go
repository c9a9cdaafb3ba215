// Package collector gathers the execution reports of a simulation and
// summarizes them.
package collector

import (
	"context"
	"sync"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/simulation"
)

// Collector accumulates execution reports. It is a core.Reporter, so it can
// be handed to a pool directly, and it can also harvest the result handles
// of a finished simulation.
type Collector struct {
	mu        sync.Mutex
	reports   []core.ExecutionReport
	closed    bool
	dropped   int
	startTime time.Time
	endTime   time.Time
}

func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// Report records r. Reports arriving after Close are counted as dropped.
// Thread-safe.
func (c *Collector) Report(r core.ExecutionReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		c.dropped++
		return
	}
	c.reports = append(c.reports, r)
}

// Harvest waits for every handle and records its report. It returns early
// with ctx's error; reports gathered until then are kept.
func (c *Collector) Harvest(ctx context.Context, handles []*simulation.Handle) error {
	for _, h := range handles {
		r, err := h.Wait(ctx)
		if err != nil {
			return err
		}
		c.Report(r)
	}
	return nil
}

// Close stops accepting reports.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.endTime = time.Now()
}

// Reports returns a copy of the collected reports.
func (c *Collector) Reports() []core.ExecutionReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]core.ExecutionReport, len(c.reports))
	copy(out, c.reports)
	return out
}

// Dropped is the number of reports that arrived after Close.
func (c *Collector) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Duration returns the time from creation to Close, or to now while the
// collector is open.
func (c *Collector) Duration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.endTime.IsZero() {
		return c.endTime.Sub(c.startTime)
	}
	return time.Since(c.startTime)
}

// Compute summarizes the collected reports.
func (c *Collector) Compute(simulationID string) *Summary {
	return ComputeSummary(simulationID, c.Reports(), c.Duration())
}
