package collector

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Thresholds are the pass/fail criteria of an exercise run. The top-level
// limits apply to all actions; Kinds narrows them to one event kind, so a
// drill can tolerate flaky sensor uploads but no lost chat messages.
type Thresholds struct {
	ActionDuration *DurationThresholds        `yaml:"action_duration" json:"actionDuration,omitempty"`
	ActionsFailed  *FailureThresholds         `yaml:"actions_failed" json:"actionsFailed,omitempty"`
	MinCompleted   int                        `yaml:"min_completed" json:"minCompleted,omitempty"`
	Kinds          map[string]*KindThresholds `yaml:"kinds" json:"kinds,omitempty"`
}

// KindThresholds limits the actions of a single kind.
type KindThresholds struct {
	ActionDuration *DurationThresholds `yaml:"action_duration" json:"actionDuration,omitempty"`
	ActionsFailed  *FailureThresholds  `yaml:"actions_failed" json:"actionsFailed,omitempty"`
}

// DurationThresholds are upper bounds on execution time. Zero fields are
// not checked.
type DurationThresholds struct {
	Avg time.Duration `yaml:"avg" json:"avg,omitempty"`
	P50 time.Duration `yaml:"p50" json:"p50,omitempty"`
	P90 time.Duration `yaml:"p90" json:"p90,omitempty"`
	P95 time.Duration `yaml:"p95" json:"p95,omitempty"`
	P99 time.Duration `yaml:"p99" json:"p99,omitempty"`
}

// FailureThresholds is the tolerated share of exceptional completions, as a
// percentage such as "5%".
type FailureThresholds struct {
	Rate string `yaml:"rate" json:"rate"`
}

// ThresholdResult is the outcome of a single check. Op is the relation the
// actual value must satisfy against Threshold.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Op        string `json:"op"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults contains all threshold check results.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports malformed thresholds before a run starts.
func (t *Thresholds) Validate() error {
	if t == nil {
		return nil
	}
	var errs []error
	if t.MinCompleted < 0 {
		errs = append(errs, fmt.Errorf("min_completed: must not be negative, got %d", t.MinCompleted))
	}
	errs = append(errs, validateLimits("", t.ActionDuration, t.ActionsFailed)...)
	for _, kind := range sortedThresholdKinds(t.Kinds) {
		k := t.Kinds[kind]
		if k == nil {
			continue
		}
		errs = append(errs, validateLimits("kinds."+kind+".", k.ActionDuration, k.ActionsFailed)...)
	}
	return errors.Join(errs...)
}

func validateLimits(prefix string, d *DurationThresholds, f *FailureThresholds) []error {
	var errs []error
	if d != nil {
		for _, l := range d.limits() {
			if l.limit < 0 {
				errs = append(errs, fmt.Errorf("%saction_duration.%s: must not be negative, got %v", prefix, l.name, l.limit))
			}
		}
	}
	if f != nil && f.Rate != "" {
		if _, err := parsePercentage(f.Rate); err != nil {
			errs = append(errs, fmt.Errorf("%sactions_failed.rate: %w", prefix, err))
		}
	}
	return errs
}

// Check evaluates all thresholds against s. Kinds absent from s count as
// zero actions.
func (t *Thresholds) Check(s *Summary) *ThresholdResults {
	r := &ThresholdResults{Passed: true}
	if t == nil {
		return r
	}
	r.Results = make([]ThresholdResult, 0)

	r.checkDurations("action_duration", t.ActionDuration, s.Duration)
	r.checkFailures("actions_failed.rate", t.ActionsFailed, s.CompletedExceptionally, s.Total)
	if t.MinCompleted > 0 {
		r.add(ThresholdResult{
			Name:      "actions_completed.count",
			Passed:    s.CompletedNormal >= t.MinCompleted,
			Op:        ">=",
			Threshold: strconv.Itoa(t.MinCompleted),
			Actual:    strconv.Itoa(s.CompletedNormal),
		})
	}

	for _, kind := range sortedThresholdKinds(t.Kinds) {
		k := t.Kinds[kind]
		if k == nil {
			continue
		}
		var ks KindSummary
		if got, ok := s.Kinds[kind]; ok && got != nil {
			ks = *got
		}
		r.checkDurations("kinds."+kind+".action_duration", k.ActionDuration, ks.Duration)
		r.checkFailures("kinds."+kind+".actions_failed.rate", k.ActionsFailed, ks.Exceptional, ks.Count)
	}
	return r
}

func (r *ThresholdResults) add(res ThresholdResult) {
	if !res.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, res)
}

type durationLimit struct {
	name  string
	limit time.Duration
	pick  func(DurationMetrics) time.Duration
}

func (d *DurationThresholds) limits() []durationLimit {
	return []durationLimit{
		{"avg", d.Avg, func(m DurationMetrics) time.Duration { return m.Avg }},
		{"p50", d.P50, func(m DurationMetrics) time.Duration { return m.P50 }},
		{"p90", d.P90, func(m DurationMetrics) time.Duration { return m.P90 }},
		{"p95", d.P95, func(m DurationMetrics) time.Duration { return m.P95 }},
		{"p99", d.P99, func(m DurationMetrics) time.Duration { return m.P99 }},
	}
}

func (r *ThresholdResults) checkDurations(prefix string, d *DurationThresholds, actual DurationMetrics) {
	if d == nil {
		return
	}
	for _, l := range d.limits() {
		if l.limit == 0 {
			continue
		}
		got := l.pick(actual)
		r.add(ThresholdResult{
			Name:      prefix + "." + l.name,
			Passed:    got < l.limit,
			Op:        "<",
			Threshold: FormatDuration(l.limit),
			Actual:    FormatDuration(got),
		})
	}
}

// checkFailures compares the exceptional share of total against the limit.
// Malformed rates are skipped; Validate reports them.
func (r *ThresholdResults) checkFailures(name string, f *FailureThresholds, exceptional, total int) {
	if f == nil || f.Rate == "" {
		return
	}
	limit, err := parsePercentage(f.Rate)
	if err != nil {
		return
	}
	var actual float64
	if total > 0 {
		actual = float64(exceptional) / float64(total) * 100
	}
	r.add(ThresholdResult{
		Name:      name,
		Passed:    actual < limit,
		Op:        "<",
		Threshold: f.Rate,
		Actual:    fmt.Sprintf("%.2f%%", actual),
	})
}

func sortedThresholdKinds(m map[string]*KindThresholds) []string {
	kinds := make([]string, 0, len(m))
	for k := range m {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if !strings.HasSuffix(s, "%") {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(s, "%"), 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("percentage out of range: %s", s)
	}
	return v, nil
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}

// Violations returns only the failed threshold results.
func (r *ThresholdResults) Violations() []ThresholdResult {
	violations := make([]ThresholdResult, 0)
	for _, result := range r.Results {
		if !result.Passed {
			violations = append(violations, result)
		}
	}
	return violations
}
