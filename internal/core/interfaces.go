// Package core defines the fundamental interfaces and types for tabletop.
package core

import (
	"context"
	"fmt"
	"time"
)

// Outcome is how a single action execution ended.
type Outcome int

const (
	CompletedNormal Outcome = iota
	CompletedExceptionally
)

func (o Outcome) String() string {
	switch o {
	case CompletedNormal:
		return "COMPLETED_NORMAL"
	case CompletedExceptionally:
		return "COMPLETED_EXCEPTIONALLY"
	default:
		return "UNKNOWN"
	}
}

func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

func (o *Outcome) UnmarshalText(text []byte) error {
	switch string(text) {
	case "COMPLETED_NORMAL":
		*o = CompletedNormal
	case "COMPLETED_EXCEPTIONALLY":
		*o = CompletedExceptionally
	default:
		return fmt.Errorf("unknown outcome %q", text)
	}
	return nil
}

// ExecutionReport is the immutable record of one action execution.
type ExecutionReport struct {
	ActionID    int64          `json:"actionId"`
	Kind        string         `json:"kind"`
	DueTime     int64          `json:"dueTime"` // ms relative to simulation start
	Outcome     Outcome        `json:"outcome"`
	Error       string         `json:"error,omitempty"`
	StatusCode  int            `json:"statusCode,omitempty"`
	Duration    time.Duration  `json:"duration"`
	CompletedAt time.Time      `json:"completedAt"`
	Extract     map[string]any `json:"extract,omitempty"`
}

// Succeeded reports whether the action completed normally.
func (r ExecutionReport) Succeeded() bool {
	return r.Outcome == CompletedNormal
}

// Action is a unit of work executed once when its due time arrives.
// Execute must not panic or return early on failure: every failure is
// captured in the returned report as CompletedExceptionally.
type Action interface {
	Execute(ctx context.Context) ExecutionReport
}

// ActionFunc adapts a function to the Action interface.
type ActionFunc func(ctx context.Context) ExecutionReport

func (f ActionFunc) Execute(ctx context.Context) ExecutionReport { return f(ctx) }

// Reporter receives every report produced by the worker pool.
type Reporter interface {
	Report(ExecutionReport)
}

// NullReporter discards all reports.
var NullReporter Reporter = nullReporter{}

type nullReporter struct{}

func (nullReporter) Report(ExecutionReport) {}
