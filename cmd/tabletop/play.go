package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"tabletop/internal/actions"
	"tabletop/internal/collector"
	"tabletop/internal/config"
	"tabletop/internal/progress"
	"tabletop/internal/ratelimit"
	"tabletop/internal/scenario"
	"tabletop/internal/simulation"
)

// defaultHarvestTimeout bounds the wait for in-flight actions after a run
// when the playbook sets no timeout.
const defaultHarvestTimeout = 30 * time.Second

type playOptions struct {
	file    string
	speed   float64
	output  string
	quiet   bool
	verbose bool
}

var playOpts playOptions

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Replay a playbook headless and print a report.",
	Long: "`play -f playbook.yaml` plays the selected phases of the playbook's " +
		"scenario and prints a report. The exit code is 1 when a threshold " +
		"fails and 2 on errors. An interrupt stops the run and still prints " +
		"the report.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return exitCode(runPlay(ctx, playOpts, cmd.OutOrStdout(), cmd.ErrOrStderr()))
	},
}

func init() {
	rootCmd.AddCommand(playCmd)
	playCmd.Flags().StringVarP(&playOpts.file, "file", "f", "", "path to the playbook (required)")
	playCmd.Flags().Float64Var(&playOpts.speed, "speed", 0, "speed factor, overrides the playbook")
	playCmd.Flags().StringVar(&playOpts.output, "output", "text", "output format: text, json")
	playCmd.Flags().BoolVar(&playOpts.quiet, "quiet", false, "suppress progress output")
	playCmd.Flags().BoolVar(&playOpts.verbose, "verbose", false, "log every request and response")
	_ = playCmd.MarkFlagRequired("file")
}

// prepared is a playbook turned into a runnable queue.
type prepared struct {
	scenario scenario.Scenario
	config   scenario.Configuration
	events   []scenario.Event
	queue    *simulation.Queue
}

func prepare(pb *config.Playbook, reg *actions.Registry, now time.Time) (*prepared, error) {
	repo := scenario.NewRepository(reg)
	sc, err := repo.ImportScenario(pb.Scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	cfg, err := pb.ScenarioConfiguration(now)
	if err != nil {
		return nil, err
	}
	cfg = repo.CreateConfiguration(cfg)

	ids, err := pb.PhaseIDs(sc)
	if err != nil {
		return nil, err
	}
	events, err := scenario.SelectEvents(sc, ids)
	if err != nil {
		return nil, err
	}
	queue, err := scenario.BuildQueue(events, reg.Factory(cfg))
	if err != nil {
		return nil, err
	}
	return &prepared{scenario: sc, config: cfg, events: events, queue: queue}, nil
}

// span is the scripted length of the prepared events in milliseconds.
func (p *prepared) span() int64 {
	if len(p.events) == 0 {
		return 0
	}
	return p.events[len(p.events)-1].PointInTime
}

func runPlay(ctx context.Context, o playOptions, stdout, stderr io.Writer) int {
	if o.output != "text" && o.output != "json" {
		fmt.Fprintf(stderr, "error: --output must be 'text' or 'json', got %q\n", o.output)
		return ExitError
	}
	pb, err := config.LoadPlaybook(o.file)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	if o.speed < 0 {
		fmt.Fprintf(stderr, "error: --speed must be positive, got %v\n", o.speed)
		return ExitError
	}
	if o.speed > 0 {
		pb.Speed = o.speed
	}

	logger := log.New(io.Discard, "", 0)
	var debug *actions.DebugLogger
	if o.verbose {
		logger = log.New(stderr, "tabletop: ", log.LstdFlags|log.Lmicroseconds)
		debug = actions.NewDebugLogger(stderr)
	}
	reg := actions.NewRegistry(&http.Client{Timeout: actions.DefaultTimeout}, debug)

	p, err := prepare(pb, reg, time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	var limiter *ratelimit.RateLimiter
	if pb.Pool.RatePerSecond > 0 {
		limiter = ratelimit.NewRateLimiter(pb.Pool.RatePerSecond)
	}
	live := collector.NewCollector()
	pool := simulation.NewPool(simulation.PoolOptions{
		MaxInFlight: pb.Pool.MaxInFlight,
		Limiter:     limiter,
		Reporter:    live,
	})
	sim, err := simulation.New(p.queue, simulation.Options{
		Name:   p.scenario.Name,
		Logger: logger,
		Pool:   pool,
		Speed:  pb.Speed,
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	prog := progress.NewProgress(sim, live, o.quiet)
	prog.SetOutput(stderr)
	prog.Printf("tabletop playing %q: %d events over %s at x%g",
		p.scenario.Name, len(p.events), progress.FormatPointInTime(p.span()), sim.Speed())

	sim.Start()
	prog.Start()

	interrupted := false
	select {
	case <-sim.Done():
	case <-ctx.Done():
		interrupted = true
		sim.Stop()
	}
	prog.Stop()
	if interrupted {
		prog.Print("Received interrupt signal, stopped the simulation")
	}

	timeout := pb.Timeout
	if timeout == 0 {
		timeout = defaultHarvestTimeout
	}
	hctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	results := collector.NewCollector()
	harvestErr := results.Harvest(hctx, sim.ResultHandles())
	results.Close()
	live.Close()

	summary := collector.ComputeSummary(xid.New().String(), results.Reports(), live.Duration())
	var thresholds *collector.ThresholdResults
	if pb.Thresholds != nil {
		thresholds = pb.Thresholds.Check(summary)
	}

	if o.output == "json" {
		if err := collector.FormatJSON(stdout, summary, thresholds); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return ExitError
		}
	} else {
		collector.FormatText(stdout, summary, thresholds)
	}

	if harvestErr != nil {
		fmt.Fprintf(stderr, "error: harvest incomplete after %v: %v\n", timeout, harvestErr)
		return ExitError
	}
	if interrupted {
		return ExitSuccess
	}
	if thresholds != nil && !thresholds.Passed {
		if o.output == "text" {
			fmt.Fprintln(stderr, "\nThreshold check failed!")
		}
		return ExitThresholdFailed
	}
	return ExitSuccess
}
