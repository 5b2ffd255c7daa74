package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/controlnode/pkg/model"
)

func newJobCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "job",
		Short: "Manage job progress records",
	}
	cmd.AddCommand(
		newJobCreateCmd(),
		newJobStatusCmd(),
		newJobListCmd(),
	)
	return cmd
}

func newJobCreateCmd() *cobra.Command {
	var params model.SimulationParams
	var queue bool
	cmd := &cobra.Command{
		Use:   "create <project> <job>",
		Short: "Register a job and its simulation parameters",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client.CreateJob(cmd.Context(), args[0], args[1], params)
			if err != nil {
				return fmt.Errorf("create job: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created %s/%s: %s steps in %s batch(es)\n",
				p.Project, p.Job, humanize.Comma(p.TotalSteps), humanize.Comma(p.Batches))

			if queue {
				if err := client.AddTask(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("add task: %w", err)
				}
				fmt.Fprintf(out, "Queued %s/%s\n", p.Project, p.Job)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&params.Duration, "duration", 0, "simulated time to cover")
	cmd.Flags().Float64Var(&params.StepDuration, "step-duration", 1, "simulated time per step")
	cmd.Flags().Int64Var(&params.BatchLength, "batch-length", 1000, "steps per simulation task")
	cmd.Flags().BoolVar(&queue, "queue", false, "queue the first simulation batch right away")
	cmd.MarkFlagRequired("duration")
	return cmd
}

func newJobStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <project> <job>",
		Short: "Show a job's progress",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := client.JobStatus(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("job status: %w", err)
			}
			printProgress(cmd.OutOrStdout(), p)
			return nil
		},
	}
}

func newJobListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := client.ListJobs(cmd.Context())
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(list) == 0 {
				fmt.Fprintln(out, "No jobs found.")
				return nil
			}

			fmt.Fprintf(out, "%-20s  %-20s  %-20s  %s\n", "PROJECT", "JOB", "SIMULATION", "STATISTICS")
			fmt.Fprintf(out, "%-20s  %-20s  %-20s  %s\n", "-------", "---", "----------", "----------")
			for _, p := range list {
				fmt.Fprintf(out, "%-20s  %-20s  %-20s  %s\n", p.Project, p.Job, steps(p), statistics(p))
			}
			return nil
		},
	}
}

func printProgress(out io.Writer, p *model.JobProgress) {
	fmt.Fprintf(out, "Job: %s/%s\n", p.Project, p.Job)
	fmt.Fprintf(out, "  Simulation: %s\n", steps(p))
	fmt.Fprintf(out, "  Batches:    %s of %s steps\n", humanize.Comma(p.Batches), humanize.Comma(p.BatchLength))
	fmt.Fprintf(out, "  Statistics: %s\n", statistics(p))
	if !p.UpdatedAt.IsZero() {
		fmt.Fprintf(out, "  Updated:    %s\n", humanize.Time(p.UpdatedAt))
	}
}

// steps renders "done/total (pct%)".
func steps(p *model.JobProgress) string {
	pct := 100.0
	if p.TotalSteps > 0 {
		pct = float64(p.Done) / float64(p.TotalSteps) * 100
	}
	return fmt.Sprintf("%s/%s (%s%%)", humanize.Comma(p.Done), humanize.Comma(p.TotalSteps), humanize.FtoaWithDigits(pct, 1))
}

// statistics lists which statistics are done.
func statistics(p *model.JobProgress) string {
	if p.FullStatistics {
		return "complete"
	}
	if !p.SimulationDone() {
		return "waiting for simulation"
	}
	pending := p.Pending()
	s := "pending:"
	for _, t := range pending {
		s += " " + string(t)
	}
	return s
}
