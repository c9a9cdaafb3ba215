package scenario

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhase_Shift(t *testing.T) {
	p := Phase{Events: []Event{{ID: 1, PointInTime: 500}, {ID: 2, PointInTime: 2000}}}

	require.NoError(t, p.Shift(1000))
	assert.Equal(t, int64(1500), p.Events[0].PointInTime)
	assert.Equal(t, int64(3000), p.Events[1].PointInTime)

	require.NoError(t, p.Shift(-1500))
	assert.Equal(t, int64(0), p.Events[0].PointInTime)
}

func TestPhase_ShiftBelowZeroChangesNothing(t *testing.T) {
	p := Phase{Events: []Event{{ID: 1, PointInTime: 5000}, {ID: 2, PointInTime: 100}}}

	err := p.Shift(-200)
	assert.True(t, errors.Is(err, ErrInvalidShift))
	assert.Equal(t, int64(5000), p.Events[0].PointInTime)
	assert.Equal(t, int64(100), p.Events[1].PointInTime)
}

func TestConfiguration_EventTime(t *testing.T) {
	start := time.Date(2019, 7, 1, 8, 0, 0, 0, time.UTC)
	cfg := Configuration{ScenarioStartTime: start.UnixMilli()}

	got := cfg.EventTime(Event{PointInTime: 90_500})
	assert.Equal(t, start.Add(90*time.Second+500*time.Millisecond), got)
	assert.Equal(t, time.UTC, got.Location())
}

func TestConfiguration_Property(t *testing.T) {
	cfg := Configuration{ID: 3, Properties: map[string]any{
		"frostServerUrl": "http://frost",
		"port":           8080,
		"ratio":          0.5,
		"empty":          "",
	}}

	v, err := cfg.Property("frostServerUrl")
	require.NoError(t, err)
	assert.Equal(t, "http://frost", v)

	v, _ = cfg.Property("port")
	assert.Equal(t, "8080", v)
	v, _ = cfg.Property("ratio")
	assert.Equal(t, "0.5", v)

	for _, key := range []string{"empty", "absent"} {
		_, err := cfg.Property(key)
		assert.True(t, errors.Is(err, ErrMissingProperty), key)
		assert.Contains(t, err.Error(), key)
	}
}

func TestNotFoundErrors(t *testing.T) {
	for _, err := range []error{ErrScenarioNotFound, ErrPhaseNotFound, ErrEventNotFound, ErrConfigurationNotFound} {
		assert.True(t, errors.Is(err, ErrNotFound), err.Error())
	}
	assert.False(t, errors.Is(ErrInvalidShift, ErrNotFound))
}
