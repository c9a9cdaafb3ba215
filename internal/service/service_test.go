package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"tabletop/internal/actions"
	"tabletop/internal/collector"
	"tabletop/internal/core"
	"tabletop/internal/scenario"
	"tabletop/internal/simulation"
	"tabletop/internal/storage"
)

type fixture struct {
	repo       *scenario.Repository
	svc        *Service
	scenarioID int64
	standard   int64
	evacuation int64
	configID   int64
	eventIDs   []int64
}

func noopKind(ev scenario.Event, _ scenario.Configuration) core.Action {
	return core.ActionFunc(func(context.Context) core.ExecutionReport {
		if fail, _ := ev.Data["fail"].(bool); fail {
			return core.ExecutionReport{Kind: "noop", Outcome: core.CompletedExceptionally, Error: "refused"}
		}
		return core.ExecutionReport{Kind: "noop", Outcome: core.CompletedNormal}
	})
}

// newFixture creates a scenario with a standard phase holding events at
// 0ms and 10ms and an evacuation phase holding a failing event at 5ms.
func newFixture(t *testing.T, archive Archive) *fixture {
	t.Helper()
	reg := actions.NewRegistry(nil, nil)
	reg.RegisterFunc("noop", noopKind)
	repo := scenario.NewRepository(reg)

	sc := repo.CreateScenario("Rhine flood")
	evac, err := repo.AddPhase(sc.ID, "Evacuation")
	require.NoError(t, err)

	f := &fixture{repo: repo, scenarioID: sc.ID, standard: sc.StandardPhaseID, evacuation: evac.ID}
	for _, e := range []struct {
		phase int64
		at    int64
		data  map[string]any
	}{
		{sc.StandardPhaseID, 0, nil},
		{sc.StandardPhaseID, 10, nil},
		{evac.ID, 5, map[string]any{"fail": true}},
	} {
		ev, err := repo.AddEvent(sc.ID, e.phase, "noop", e.at, e.data)
		require.NoError(t, err)
		f.eventIDs = append(f.eventIDs, ev.ID)
	}
	f.configID = repo.CreateConfiguration(scenario.Configuration{ScenarioStartTime: 1561968000000}).ID

	svc, err := New(Options{Repository: repo, Factories: reg, Archive: archive})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = svc.Close(ctx)
	})
	f.svc = svc
	return f
}

func (f *fixture) create(t *testing.T, phases ...int64) Snapshot {
	t.Helper()
	snap, err := f.svc.Create(CreateRequest{ScenarioID: f.scenarioID, ConfigurationID: f.configID, PhaseIDs: phases})
	require.NoError(t, err)
	return snap
}

func waitDone(t *testing.T, svc *Service, id int64) {
	t.Helper()
	sim, err := svc.Simulation(id)
	require.NoError(t, err)
	select {
	case <-sim.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("simulation %d did not finish", id)
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	_, err = New(Options{Repository: scenario.NewRepository(nil)})
	assert.Error(t, err)
}

func TestService_CreateValidates(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"no phases", CreateRequest{ScenarioID: f.scenarioID, ConfigurationID: f.configID}, ErrNoPhases},
		{"unknown scenario", CreateRequest{ScenarioID: 99, ConfigurationID: f.configID, PhaseIDs: []int64{f.standard}}, scenario.ErrScenarioNotFound},
		{"unknown configuration", CreateRequest{ScenarioID: f.scenarioID, ConfigurationID: 99, PhaseIDs: []int64{f.standard}}, scenario.ErrConfigurationNotFound},
		{"unknown phase", CreateRequest{ScenarioID: f.scenarioID, ConfigurationID: f.configID, PhaseIDs: []int64{99}}, scenario.ErrPhaseNotFound},
		{"invalid speed", CreateRequest{ScenarioID: f.scenarioID, ConfigurationID: f.configID, PhaseIDs: []int64{f.standard}, Speed: -2}, simulation.ErrInvalidSpeed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	// failed creations do not use up ids
	assert.Equal(t, int64(1), f.create(t, f.standard).ID)
}

func TestService_CreateAndList(t *testing.T) {
	f := newFixture(t, nil)
	other := f.repo.CreateScenario("Storm")

	first := f.create(t, f.standard)
	second := f.create(t, f.standard, f.evacuation)
	_, err := f.svc.Create(CreateRequest{ScenarioID: other.ID, ConfigurationID: f.configID, PhaseIDs: []int64{other.StandardPhaseID}})
	require.NoError(t, err)

	assert.Equal(t, simulation.Initialized, first.State)
	assert.Equal(t, 2, first.Pending)
	assert.Equal(t, 3, second.Pending)
	assert.Equal(t, []int64{f.standard, f.evacuation}, second.PhaseIDs)
	assert.Equal(t, 1.0, second.Speed)

	assert.Len(t, f.svc.List(), 3)
	forScenario := f.svc.ListForScenario(f.scenarioID)
	require.Len(t, forScenario, 2)
	assert.Equal(t, first.ID, forScenario[0].ID)
	assert.Equal(t, second.ID, forScenario[1].ID)

	got, err := f.svc.Get(second.ID)
	require.NoError(t, err)
	assert.Equal(t, f.configID, got.ConfigurationID)
}

func TestService_UnknownSimulation(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.svc.Get(42)
	assert.ErrorIs(t, err, ErrSimulationNotFound)
	_, err = f.svc.Start(42)
	assert.ErrorIs(t, err, ErrSimulationNotFound)
	_, err = f.svc.Collect(context.Background(), 42, nil)
	assert.ErrorIs(t, err, ErrSimulationNotFound)
}

func TestService_ControlOperations(t *testing.T) {
	f := newFixture(t, nil)
	ev, err := f.repo.AddEvent(f.scenarioID, f.evacuation, "noop", 3600000, nil)
	require.NoError(t, err)
	id := f.create(t, f.evacuation).ID

	snap, err := f.svc.Start(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Running, snap.State)

	snap, err = f.svc.TogglePause(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Paused, snap.State)

	snap, err = f.svc.ChangeSpeed(id, 60)
	require.NoError(t, err)
	assert.Equal(t, 60.0, snap.Speed)
	_, err = f.svc.ChangeSpeed(id, 0)
	assert.ErrorIs(t, err, simulation.ErrInvalidSpeed)

	_, err = f.svc.FastForward(id, 12345)
	assert.ErrorIs(t, err, simulation.ErrUnknownAction)

	snap, err = f.svc.FastForward(id, ev.ID)
	require.NoError(t, err)
	assert.Equal(t, simulation.Paused, snap.State)
	assert.Equal(t, int64(3600000), snap.PointInTime)
	assert.Equal(t, 1, snap.Dispatched)

	snap, err = f.svc.Stop(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Terminated, snap.State)
}

func TestService_PlayAndPause(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.repo.AddEvent(f.scenarioID, f.evacuation, "noop", 3600000, nil)
	require.NoError(t, err)
	id := f.create(t, f.evacuation).ID

	snap, err := f.svc.Pause(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Initialized, snap.State)

	snap, err = f.svc.Play(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Running, snap.State)

	snap, err = f.svc.Pause(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Paused, snap.State)

	snap, err = f.svc.Play(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Running, snap.State)
}

func TestService_CollectArchives(t *testing.T) {
	ctrl := gomock.NewController(t)
	archive := NewMockArchive(ctrl)
	f := newFixture(t, archive)
	id := f.create(t, f.standard, f.evacuation).ID

	archive.EXPECT().
		Save(gomock.Any(), id, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ int64, s *collector.Summary, th *collector.ThresholdResults) (storage.Report, error) {
			assert.Equal(t, 3, s.Total)
			assert.False(t, th.Passed)
			return storage.Report{RunID: "run-1"}, nil
		})

	_, err := f.svc.Start(id)
	require.NoError(t, err)
	waitDone(t, f.svc, id)

	th := &collector.Thresholds{ActionsFailed: &collector.FailureThresholds{Rate: "10%"}}
	res, err := f.svc.Collect(context.Background(), id, th)
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, "1", res.Summary.Simulation)
	assert.Equal(t, 2, res.Summary.CompletedNormal)
	assert.Equal(t, 1, res.Summary.CompletedExceptionally)
	require.Len(t, res.Summary.Failures, 1)
	assert.Equal(t, f.eventIDs[2], res.Summary.Failures[0].ActionID)
	assert.Equal(t, int64(5), res.Summary.Failures[0].DueTime)

	snap, err := f.svc.Get(id)
	require.NoError(t, err)
	assert.Equal(t, simulation.Finished, snap.State)
}

func TestService_CollectArchiveError(t *testing.T) {
	ctrl := gomock.NewController(t)
	archive := NewMockArchive(ctrl)
	f := newFixture(t, archive)
	id := f.create(t, f.standard).ID

	archive.EXPECT().Save(gomock.Any(), id, gomock.Any(), gomock.Any()).Return(storage.Report{}, errors.New("disk full"))

	_, err := f.svc.Start(id)
	require.NoError(t, err)
	waitDone(t, f.svc, id)

	_, err = f.svc.Collect(context.Background(), id, nil)
	assert.ErrorContains(t, err, "disk full")
}

func TestService_CollectBeforeStartIsEmpty(t *testing.T) {
	f := newFixture(t, nil)
	id := f.create(t, f.standard).ID

	res, err := f.svc.Collect(context.Background(), id, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Summary.Total)
	assert.True(t, res.Thresholds.Passed)
	assert.Empty(t, res.RunID)
}

func TestService_CloseStopsEverything(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.repo.AddEvent(f.scenarioID, f.evacuation, "noop", 3600000, nil)
	require.NoError(t, err)
	a := f.create(t, f.evacuation).ID
	b := f.create(t, f.standard).ID
	_, err = f.svc.Start(a)
	require.NoError(t, err)

	require.NoError(t, f.svc.Close(context.Background()))

	for _, id := range []int64{a, b} {
		snap, err := f.svc.Get(id)
		require.NoError(t, err)
		assert.True(t, snap.State.Terminal(), "simulation %d is %s", id, snap.State)
	}
}
