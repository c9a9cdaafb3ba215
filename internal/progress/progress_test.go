package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"tabletop/internal/collector"
	"tabletop/internal/core"
	"tabletop/internal/simulation"
)

type fixedStatus simulation.Status

func (f fixedStatus) Status() simulation.Status { return simulation.Status(f) }

// syncBuffer guards a buffer written by the progress goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

var running = fixedStatus{State: simulation.Running, Speed: 2, PointInTime: 61500, Pending: 3, Dispatched: 4}

func TestNewProgress_Quiet(t *testing.T) {
	progress := NewProgress(running, nil, true)

	if !progress.quiet {
		t.Error("quiet should be true")
	}

	// Start and stop should not panic in quiet mode
	progress.Start()
	time.Sleep(10 * time.Millisecond)
	progress.Stop()
}

func TestProgress_DoubleStop(t *testing.T) {
	progress := NewProgress(running, nil, false)
	progress.SetOutput(&syncBuffer{})
	progress.Start()

	// Double stop should not panic
	progress.Stop()
	progress.Stop()
}

func TestProgress_StopWithoutStart(t *testing.T) {
	progress := NewProgress(running, nil, false)
	progress.SetOutput(&bytes.Buffer{})

	// Stop without start should not panic
	progress.Stop()
}

func TestProgress_StatusLine(t *testing.T) {
	c := collector.NewCollector()
	c.Report(core.ExecutionReport{ActionID: 1, Outcome: core.CompletedNormal})
	c.Report(core.ExecutionReport{ActionID: 2, Outcome: core.CompletedExceptionally})

	out := &syncBuffer{}
	progress := NewProgress(running, c, false)
	progress.SetOutput(out)
	progress.SetInterval(10 * time.Millisecond)
	progress.Start()
	time.Sleep(50 * time.Millisecond)
	progress.Stop()

	want := "RUNNING t=0:01:01.500 x2 | Dispatched: 4 | Pending: 3 | Done: 2 | Failed: 1"
	if !strings.Contains(out.String(), want) {
		t.Errorf("expected %q in output, got: %q", want, out.String())
	}
}

func TestProgress_Print(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(running, nil, false)
	progress.SetOutput(&buf)

	progress.Print("Playing Rhine flood (3 events)")

	output := buf.String()
	if !strings.Contains(output, "\033[K") {
		t.Error("expected output to contain line clear escape sequence")
	}
	if !strings.Contains(output, "Playing Rhine flood (3 events)\n") {
		t.Errorf("expected message ending with newline, got: %q", output)
	}
}

func TestProgress_Print_QuietModeDoesNotPrint(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(running, nil, true)
	progress.SetOutput(&buf)

	progress.Print("Playing")
	progress.Printf("speed %g", 2.0)

	if buf.String() != "" {
		t.Errorf("expected no output in quiet mode, got: %q", buf.String())
	}
}

func TestProgress_Printf(t *testing.T) {
	var buf bytes.Buffer
	progress := NewProgress(running, nil, false)
	progress.SetOutput(&buf)

	progress.Printf("Fast-forwarded to event %d", 7)

	if !strings.Contains(buf.String(), "Fast-forwarded to event 7\n") {
		t.Errorf("expected formatted message, got: %q", buf.String())
	}
}

func TestFormatPointInTime(t *testing.T) {
	tests := []struct {
		ms   int64
		want string
	}{
		{0, "0:00:00.000"},
		{61500, "0:01:01.500"},
		{3723004, "1:02:03.004"},
	}
	for _, tt := range tests {
		if got := FormatPointInTime(tt.ms); got != tt.want {
			t.Errorf("FormatPointInTime(%d) = %q, want %q", tt.ms, got, tt.want)
		}
	}
}
