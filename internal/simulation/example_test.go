package simulation_test

import (
	"context"
	"fmt"
	"time"

	"tabletop/internal/core"
	"tabletop/internal/simulation"
)

func notify(kind string) core.Action {
	return core.ActionFunc(func(context.Context) core.ExecutionReport {
		return core.ExecutionReport{Kind: kind, Outcome: core.CompletedNormal}
	})
}

func ExampleSimulation_FastForwardTo() {
	clock := core.NewFakeClock(time.Date(2019, 7, 1, 8, 0, 0, 0, time.UTC))
	q, err := simulation.NewQueue([]simulation.Entry{
		{ID: 1, DueTime: 0, Action: notify("observation")},
		{ID: 2, DueTime: 60000, Action: notify("message")},
		{ID: 3, DueTime: 300000, Action: notify("location")},
	})
	if err != nil {
		fmt.Println(err)
		return
	}
	sim, err := simulation.New(q, simulation.Options{Name: "drill", Clock: clock})
	if err != nil {
		fmt.Println(err)
		return
	}

	// Skip the first two actions; the third becomes due as soon as the
	// simulation starts.
	sim.FastForwardTo(3)
	fmt.Println(sim.State(), "pending:", sim.Pending(), "dispatched:", len(sim.ResultHandles()))

	sim.Start()
	<-sim.Done()
	fmt.Println(sim.State(), "t =", sim.PointInTime())

	for _, h := range sim.ResultHandles() {
		r, _ := h.Wait(context.Background())
		fmt.Println(h.ActionID(), r.Kind, r.Outcome)
	}
	// Output:
	// INITIALIZED pending: 1 dispatched: 2
	// FINISHED t = 300000
	// 1 observation COMPLETED_NORMAL
	// 2 message COMPLETED_NORMAL
	// 3 location COMPLETED_NORMAL
}

func ExampleSimulation_ChangeSpeed() {
	clock := core.NewFakeClock(time.Date(2019, 7, 1, 8, 0, 0, 0, time.UTC))
	q, _ := simulation.NewQueue([]simulation.Entry{
		{ID: 1, DueTime: 3600000, Action: notify("message")},
	})
	sim, _ := simulation.New(q, simulation.Options{Clock: clock})
	defer sim.Stop()

	sim.Start()
	clock.Advance(10 * time.Second)
	fmt.Println("t =", sim.PointInTime())

	// Ten more wall seconds at x60 cover ten simulated minutes.
	_ = sim.ChangeSpeed(60)
	clock.Advance(10 * time.Second)
	fmt.Println("t =", sim.PointInTime())
	// Output:
	// t = 10000
	// t = 610000
}
