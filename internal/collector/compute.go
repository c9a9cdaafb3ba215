package collector

import (
	"math"
	"sort"
	"time"

	"tabletop/internal/core"
)

// Summary is the outcome of a simulation run.
type Summary struct {
	Simulation             string
	Total                  int
	CompletedNormal        int
	CompletedExceptionally int
	SuccessRate            float64
	Elapsed                time.Duration
	Duration               DurationMetrics
	Kinds                  map[string]*KindSummary
	Failures               []Failure
}

// KindSummary aggregates the reports of one event kind.
type KindSummary struct {
	Count       int
	Normal      int
	Exceptional int
	Duration    DurationMetrics
}

// Failure is an action that completed exceptionally.
type Failure struct {
	ActionID int64  `json:"actionId"`
	Kind     string `json:"kind"`
	DueTime  int64  `json:"dueTime"`
	Error    string `json:"error"`
}

// DurationMetrics describes the distribution of action execution times.
type DurationMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// ComputeSummary summarizes reports. Pure function, no side effects.
func ComputeSummary(simulationID string, reports []core.ExecutionReport, elapsed time.Duration) *Summary {
	s := &Summary{
		Simulation: simulationID,
		Elapsed:    elapsed,
		Kinds:      make(map[string]*KindSummary),
	}
	if len(reports) == 0 {
		return s
	}

	all := make([]time.Duration, 0, len(reports))
	byKind := make(map[string][]time.Duration)

	for _, r := range reports {
		s.Total++
		k, ok := s.Kinds[r.Kind]
		if !ok {
			k = &KindSummary{}
			s.Kinds[r.Kind] = k
		}
		k.Count++

		if r.Succeeded() {
			s.CompletedNormal++
			k.Normal++
		} else {
			s.CompletedExceptionally++
			k.Exceptional++
			s.Failures = append(s.Failures, Failure{
				ActionID: r.ActionID,
				Kind:     r.Kind,
				DueTime:  r.DueTime,
				Error:    r.Error,
			})
		}

		all = append(all, r.Duration)
		byKind[r.Kind] = append(byKind[r.Kind], r.Duration)
	}

	s.SuccessRate = float64(s.CompletedNormal) / float64(s.Total) * 100
	s.Duration = ComputeDurationMetrics(all)
	for kind, durations := range byKind {
		s.Kinds[kind].Duration = ComputeDurationMetrics(durations)
	}
	sort.Slice(s.Failures, func(i, j int) bool {
		if s.Failures[i].DueTime != s.Failures[j].DueTime {
			return s.Failures[i].DueTime < s.Failures[j].DueTime
		}
		return s.Failures[i].ActionID < s.Failures[j].ActionID
	})
	return s
}

// ComputeDurationMetrics computes min, max, mean and percentiles.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}
	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}
	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}

// ComputePercentile returns the nearest-rank percentile p (0..1) of sorted.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
