// Command tabletop replays scripted exercise scenarios, either headless from
// a playbook file or behind a REST API.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

// exitError carries a process exit code out of a command. A nil err means
// the command already reported the problem.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// exitCode turns a run result into a command error.
func exitCode(code int) error {
	if code == ExitSuccess {
		return nil
	}
	return &exitError{code: code}
}

var rootCmd = &cobra.Command{
	Use:   "tabletop",
	Short: "Replay scripted exercise scenarios against real services.",
	Long: `tabletop plays the events of an exercise scenario at their scripted ` +
		`points in time, at adjustable speed, and reports how every action ` +
		`completed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(ExitSuccess)
	}

	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", ee.err)
		}
		os.Exit(ee.code)
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(ExitError)
}
