package scenario

import (
	"fmt"
	"sort"

	"tabletop/internal/core"
	"tabletop/internal/simulation"
)

// Factory turns an event into the action that plays it.
type Factory func(Event) (core.Action, error)

// SelectEvents returns the events of the selected phases sorted by point in
// time. Events at the same time keep the order of phaseIDs, then their
// order within the phase. An empty selection selects every phase.
func SelectEvents(s Scenario, phaseIDs []int64) ([]Event, error) {
	if len(phaseIDs) == 0 {
		for _, p := range s.Phases {
			phaseIDs = append(phaseIDs, p.ID)
		}
	}

	var events []Event
	seen := make(map[int64]bool, len(phaseIDs))
	for _, id := range phaseIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, err := s.Phase(id)
		if err != nil {
			return nil, err
		}
		events = append(events, p.Events...)
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].PointInTime < events[j].PointInTime
	})
	return events, nil
}

// BuildQueue binds every event to its action. The first factory error
// aborts the build.
func BuildQueue(events []Event, factory Factory) (*simulation.Queue, error) {
	entries := make([]simulation.Entry, 0, len(events))
	for _, ev := range events {
		action, err := factory(ev)
		if err != nil {
			return nil, fmt.Errorf("build action for event %d: %w", ev.ID, err)
		}
		entries = append(entries, simulation.Entry{
			ID:      ev.ID,
			DueTime: ev.PointInTime,
			Action:  action,
		})
	}
	return simulation.NewQueue(entries)
}
