package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"tabletop/internal/actions"
	"tabletop/internal/config"
	"tabletop/internal/progress"
)

var validateFile string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a playbook without playing it.",
	Long: "`validate -f playbook.yaml` parses the playbook, validates every " +
		"event against its kind and builds the simulation queue.",
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return exitCode(runValidate(validateFile, cmd.OutOrStdout(), cmd.ErrOrStderr()))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&validateFile, "file", "f", "", "path to the playbook (required)")
	_ = validateCmd.MarkFlagRequired("file")
}

func runValidate(file string, stdout, stderr io.Writer) int {
	pb, err := config.LoadPlaybook(file)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}
	p, err := prepare(pb, actions.NewRegistry(nil, nil), time.Now())
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return ExitError
	}

	fmt.Fprintf(stdout, "%s: scenario %q is valid\n", file, p.scenario.Name)
	fmt.Fprintf(stdout, "  phases:  %d of %d selected\n", countSelected(pb, len(p.scenario.Phases)), len(p.scenario.Phases))
	fmt.Fprintf(stdout, "  events:  %d over %s\n", len(p.events), progress.FormatPointInTime(p.span()))
	if pb.Speed > 0 {
		fmt.Fprintf(stdout, "  speed:   x%g\n", pb.Speed)
	}
	return ExitSuccess
}

func countSelected(pb *config.Playbook, total int) int {
	if len(pb.Phases) == 0 {
		return total
	}
	return len(pb.Phases)
}
