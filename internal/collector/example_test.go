package collector_test

import (
	"fmt"
	"os"
	"time"

	"tabletop/internal/collector"
	"tabletop/internal/core"
)

func ExampleCollector() {
	c := collector.NewCollector()

	// Typically handed to the worker pool as its reporter.
	c.Report(core.ExecutionReport{ActionID: 1, Kind: "observation", Outcome: core.CompletedNormal})
	c.Report(core.ExecutionReport{ActionID: 2, Kind: "message", Outcome: core.CompletedExceptionally, Error: "chat not found"})
	c.Close()

	s := c.Compute("1")
	fmt.Printf("normal=%d exceptional=%d\n", s.CompletedNormal, s.CompletedExceptionally)
	// Output: normal=1 exceptional=1
}

func ExampleFormatText() {
	s := collector.ComputeSummary("3", []core.ExecutionReport{
		{ActionID: 1, Kind: "observation", Outcome: core.CompletedNormal, Duration: 15 * time.Millisecond},
		{ActionID: 2, Kind: "observation", Outcome: core.CompletedNormal, Duration: 25 * time.Millisecond},
	}, time.Second)

	collector.FormatText(os.Stdout, s, nil)
}
