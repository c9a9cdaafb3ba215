package collector

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// FormatText writes the simulation report in human-readable format.
func FormatText(w io.Writer, s *Summary, thresholds *ThresholdResults) {
	header := fmt.Sprintf(" Report for simulation with id %s ", s.Simulation)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, header)
	fmt.Fprintln(w, strings.Repeat("=", len(header)))
	fmt.Fprintf(w, "Completed normal:\t%d\n", s.CompletedNormal)
	fmt.Fprintf(w, "Completed exceptionally:\t%d\n", s.CompletedExceptionally)
	fmt.Fprintf(w, "Total number of runners:\t%d\n", s.Total)

	if s.Total == 0 {
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Elapsed:        %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Success Rate:   %.1f%%\n", s.SuccessRate)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Execution Times:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(s.Duration.Min))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(s.Duration.Avg))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(s.Duration.P50))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(s.Duration.P95))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(s.Duration.Max))
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "By Kind:")
	for _, kind := range sortedKinds(s) {
		k := s.Kinds[kind]
		fmt.Fprintf(w, "  %-15s %d actions   failed=%d  avg=%s  p95=%s\n",
			kind, k.Count, k.Exceptional,
			FormatDuration(k.Duration.Avg),
			FormatDuration(k.Duration.P95))
	}

	if len(s.Failures) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Failures:")
		for _, f := range s.Failures {
			fmt.Fprintf(w, "  [%s] action %d (%s): %s\n",
				formatPointInTime(f.DueTime), f.ActionID, f.Kind, f.Error)
		}
	}

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, result := range thresholds.Results {
			symbol := "✓"
			if !result.Passed {
				symbol = "✗"
			}
			op := result.Op
			if op == "" {
				op = "<"
			}
			fmt.Fprintf(w, "  %s %s %s %s (actual: %s)\n",
				symbol, result.Name, op, result.Threshold, result.Actual)
		}
	}
}

// FormatJSON writes the simulation report in JSON format.
func FormatJSON(w io.Writer, s *Summary, thresholds *ThresholdResults) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(ToJSON(s, thresholds))
}

// JSONSummary is the wire form of a Summary.
type JSONSummary struct {
	Simulation             string                     `json:"simulation"`
	CompletedNormal        int                        `json:"completedNormal"`
	CompletedExceptionally int                        `json:"completedExceptionally"`
	Total                  int                        `json:"total"`
	SuccessRate            float64                    `json:"successRate"`
	Elapsed                string                     `json:"elapsed"`
	Durations              jsonDurationMetrics        `json:"durations"`
	Kinds                  map[string]jsonKindSummary `json:"kinds"`
	Failures               []Failure                  `json:"failures,omitempty"`
	Thresholds             *ThresholdResults          `json:"thresholds,omitempty"`
}

type jsonDurationMetrics struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

type jsonKindSummary struct {
	Count       int                 `json:"count"`
	Normal      int                 `json:"normal"`
	Exceptional int                 `json:"exceptional"`
	Durations   jsonDurationMetrics `json:"durations"`
}

// ToJSON converts s for encoding.
func ToJSON(s *Summary, thresholds *ThresholdResults) JSONSummary {
	out := JSONSummary{
		Simulation:             s.Simulation,
		CompletedNormal:        s.CompletedNormal,
		CompletedExceptionally: s.CompletedExceptionally,
		Total:                  s.Total,
		SuccessRate:            s.SuccessRate,
		Elapsed:                s.Elapsed.Round(time.Millisecond).String(),
		Durations:              toJSONDurationMetrics(s.Duration),
		Kinds:                  make(map[string]jsonKindSummary, len(s.Kinds)),
		Failures:               s.Failures,
		Thresholds:             thresholds,
	}
	for kind, k := range s.Kinds {
		out.Kinds[kind] = jsonKindSummary{
			Count:       k.Count,
			Normal:      k.Normal,
			Exceptional: k.Exceptional,
			Durations:   toJSONDurationMetrics(k.Duration),
		}
	}
	return out
}

func toJSONDurationMetrics(d DurationMetrics) jsonDurationMetrics {
	return jsonDurationMetrics{
		Min: FormatDuration(d.Min),
		Max: FormatDuration(d.Max),
		Avg: FormatDuration(d.Avg),
		P50: FormatDuration(d.P50),
		P90: FormatDuration(d.P90),
		P95: FormatDuration(d.P95),
		P99: FormatDuration(d.P99),
	}
}

func sortedKinds(s *Summary) []string {
	kinds := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// formatPointInTime renders scenario milliseconds as h:mm:ss.
func formatPointInTime(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	sec := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}
