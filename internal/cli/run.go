package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/me/gocoro/internal/jsexpr"
	"github.com/me/gocoro/internal/plan"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// errPlanFailed is returned when a run ends with a faulted task, so the
// process exits non-zero.
var errPlanFailed = errors.New("plan finished with failed tasks")

func newRunCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "run <plan-file>",
		Short: "Run a plan until every task finishes",
		Long: `Runs every task in the plan on a fresh scheduler, waits until the live set
is empty (or the plan timeout elapses), then prints a report.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := loadPlan(args[0])
			if err != nil {
				return err
			}
			env, err := jsexpr.New()
			if err != nil {
				return err
			}
			exec, err := plan.New(p, env, cfg.Precision, logger, cfg.SchedulerOptions(logger)...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rep, runErr := exec.Run(ctx)
			if err := writeReport(cmd.OutOrStdout(), rep, output); err != nil {
				return err
			}
			if runErr != nil && !errors.Is(runErr, context.Canceled) {
				return runErr
			}
			if rep.Failed() {
				return errPlanFailed
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "yaml", "Report format (yaml, json)")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan-file>...",
		Short: "Check plan files without running them",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				if _, err := loadPlan(path); err != nil {
					fmt.Fprintf(out, "%s: %v\n", path, err)
					failed++
					continue
				}
				fmt.Fprintf(out, "%s: ok\n", path)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d plans invalid", failed, len(args))
			}
			return nil
		},
	}
}

// loadPlan reads and validates a plan file. Validation problems are folded
// into the returned error one per line.
func loadPlan(path string) (*plan.Plan, error) {
	p, err := plan.Load(path)
	if err != nil {
		return nil, err
	}
	if apiErr := plan.Validate(p); apiErr != nil {
		return nil, errors.New(apiErr.Report())
	}
	return p, nil
}

func writeReport(w io.Writer, rep plan.Report, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(rep); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}
