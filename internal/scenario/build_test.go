package scenario

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabletop/internal/core"
)

func testScenario() Scenario {
	return Scenario{
		ID:              1,
		StandardPhaseID: 10,
		Phases: []Phase{
			{ID: 10, Events: []Event{{ID: 1, PointInTime: 300}, {ID: 2, PointInTime: 100}}},
			{ID: 11, Events: []Event{{ID: 3, PointInTime: 100}, {ID: 4, PointInTime: 0}}},
			{ID: 12, Events: []Event{{ID: 5, PointInTime: 100}}},
		},
	}
}

func eventIDs(events []Event) []int64 {
	out := make([]int64, len(events))
	for i, e := range events {
		out[i] = e.ID
	}
	return out
}

func TestSelectEvents_AllPhases(t *testing.T) {
	events, err := SelectEvents(testScenario(), nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2, 3, 5, 1}, eventIDs(events))
}

func TestSelectEvents_TiesFollowSelectionOrder(t *testing.T) {
	events, err := SelectEvents(testScenario(), []int64{12, 11, 12})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 5, 3}, eventIDs(events))
}

func TestSelectEvents_UnknownPhase(t *testing.T) {
	_, err := SelectEvents(testScenario(), []int64{10, 99})
	assert.True(t, errors.Is(err, ErrPhaseNotFound))
}

func TestBuildQueue(t *testing.T) {
	events, _ := SelectEvents(testScenario(), nil)
	var built []int64
	q, err := BuildQueue(events, func(e Event) (core.Action, error) {
		built = append(built, e.ID)
		return core.ActionFunc(func(ctx context.Context) core.ExecutionReport {
			return core.ExecutionReport{}
		}), nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{4, 2, 3, 5, 1}, built)
	require.Equal(t, 5, q.Len())
	entries := q.Entries()
	assert.Equal(t, int64(4), entries[0].ID)
	assert.Equal(t, int64(0), entries[0].DueTime)
	assert.Equal(t, int64(300), entries[4].DueTime)
}

func TestBuildQueue_FactoryErrorAborts(t *testing.T) {
	boom := errors.New("boom")
	_, err := BuildQueue([]Event{{ID: 1}, {ID: 2}}, func(e Event) (core.Action, error) {
		if e.ID == 2 {
			return nil, boom
		}
		return nil, nil
	})
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "event 2")
}
