package core

import "sync"

// RecordingReporter keeps every report it receives, in arrival order.
type RecordingReporter struct {
	mu      sync.Mutex
	reports []ExecutionReport
}

func (r *RecordingReporter) Report(rep ExecutionReport) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func (r *RecordingReporter) Reports() []ExecutionReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ExecutionReport, len(r.reports))
	copy(out, r.reports)
	return out
}
