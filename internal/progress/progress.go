// Package progress prints a live status line while a simulation plays.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"tabletop/internal/collector"
	"tabletop/internal/simulation"
)

// StatusSource reports the current scheduler status.
type StatusSource interface {
	Status() simulation.Status
}

type Progress struct {
	startTime time.Time
	source    StatusSource
	collector *collector.Collector
	interval  time.Duration
	ticker    *time.Ticker
	stopCh    chan struct{}
	stopped   atomic.Bool
	quiet     bool
	output    io.Writer
	mu        sync.Mutex
}

// NewProgress reports the status of src and the completions seen by c.
func NewProgress(src StatusSource, c *collector.Collector, quiet bool) *Progress {
	return &Progress{
		source:    src,
		collector: c,
		interval:  time.Second,
		quiet:     quiet,
		output:    os.Stderr,
	}
}

func (p *Progress) SetOutput(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = w
}

// SetInterval changes the refresh interval. Call before Start.
func (p *Progress) SetInterval(d time.Duration) {
	if d > 0 {
		p.interval = d
	}
}

func (p *Progress) Start() {
	if p.quiet {
		return
	}
	p.startTime = time.Now()
	p.stopCh = make(chan struct{})
	p.ticker = time.NewTicker(p.interval)
	go p.run()
}

func (p *Progress) run() {
	for {
		select {
		case <-p.stopCh:
			return
		case <-p.ticker.C:
			p.printProgress()
		}
	}
}

func (p *Progress) printProgress() {
	st := p.source.Status()
	var done, failed int
	if p.collector != nil {
		s := p.collector.Compute("")
		done, failed = s.Total, s.CompletedExceptionally
	}
	elapsed := time.Since(p.startTime).Round(time.Second)
	mins := int(elapsed.Minutes())
	secs := int(elapsed.Seconds()) % 60

	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K[%02d:%02d] %s t=%s x%g | Dispatched: %d | Pending: %d | Done: %d | Failed: %d",
		mins, secs, st.State, FormatPointInTime(st.PointInTime), st.Speed,
		st.Dispatched, st.Pending, done, failed)
	p.mu.Unlock()
}

func (p *Progress) Stop() {
	if p.quiet || p.stopped.Swap(true) {
		return
	}
	if p.ticker != nil {
		p.ticker.Stop()
	}
	if p.stopCh != nil {
		close(p.stopCh)
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K")
	p.mu.Unlock()
}

func (p *Progress) Print(message string) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K%s\n", message)
	p.mu.Unlock()
}

func (p *Progress) Printf(format string, args ...any) {
	if p.quiet {
		return
	}
	p.mu.Lock()
	fmt.Fprintf(p.output, "\033[K"+format+"\n", args...)
	p.mu.Unlock()
}

// FormatPointInTime renders scenario milliseconds as h:mm:ss.mmm.
func FormatPointInTime(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d:%02d.%03d",
		int(d/time.Hour), int(d%time.Hour/time.Minute),
		int(d%time.Minute/time.Second), int(d%time.Second/time.Millisecond))
}
