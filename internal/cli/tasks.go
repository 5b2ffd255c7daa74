package cli

import (
	"fmt"
	"slices"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/controlnode/pkg/model"
)

func newHelloCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hello",
		Short: "Check that the control node answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			msg, err := client.Hello(cmd.Context())
			if err != nil {
				return fmt.Errorf("hello: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), msg)
			return nil
		},
	}
}

func newAddTaskCmd() *cobra.Command {
	var types []string
	cmd := &cobra.Command{
		Use:   "add-task <project> <job>",
		Short: "Queue the next work for a job",
		Long:  "Queue the next work for a job: its next simulation batch, or its missing statistics once the simulation is done.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var tt []model.TaskType
			for _, name := range types {
				tt = append(tt, model.TaskType(name))
			}
			if err := client.AddTask(cmd.Context(), args[0], args[1], tt...); err != nil {
				return fmt.Errorf("add task: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Queued %s/%s\n", args[0], args[1])
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&types, "type", nil, "task types the caller expects (validated by the control node)")
	return cmd
}

func newAbortCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "abort <project> <job>",
		Short: "Drop every queued, offered or running task of a job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := client.AbortTask(cmd.Context(), args[0], args[1])
			if err != nil {
				return fmt.Errorf("abort: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Aborted %s/%s: %d task(s) removed\n", args[0], args[1], n)
			return nil
		},
	}
}

func newTasksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tasks",
		Short: "List outstanding leases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			refs, err := client.CurrentTasks(cmd.Context())
			if err != nil {
				return fmt.Errorf("current tasks: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(refs) == 0 {
				fmt.Fprintln(out, "No outstanding leases.")
				return nil
			}

			fmt.Fprintf(out, "%-38s  %-38s  %s\n", "WORKER", "SIGNATURE", "LAST UPDATE")
			fmt.Fprintf(out, "%-38s  %-38s  %s\n", "------", "---------", "-----------")
			for _, ref := range refs {
				fmt.Fprintf(out, "%-38s  %-38s  %s\n", ref.WorkerID, ref.Signature, age(ref.LastUpdate))
			}
			return nil
		},
	}
}

func newRestartCmd() *cobra.Command {
	var olderThan time.Duration
	var all bool
	cmd := &cobra.Command{
		Use:   "restart [worker-id...]",
		Short: "Return leased tasks to the queue",
		Long: "Return the tasks leased by the given workers to the queue. With --older-than, " +
			"restart every lease not renewed within that duration; with --all, restart every lease.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && olderThan <= 0 && !all {
				return fmt.Errorf("restart: name worker ids, or pass --older-than or --all")
			}

			refs, err := client.CurrentTasks(cmd.Context())
			if err != nil {
				return fmt.Errorf("current tasks: %w", err)
			}

			deadline := time.Now().Add(-olderThan)
			var selected []model.LeaseRef
			for _, ref := range refs {
				switch {
				case all:
				case len(args) > 0 && slices.Contains(args, ref.WorkerID):
				case olderThan > 0 && !ref.LastUpdate.IsZero() && ref.LastUpdate.Before(deadline):
				default:
					continue
				}
				selected = append(selected, model.LeaseRef{WorkerID: ref.WorkerID, Signature: ref.Signature})
			}

			out := cmd.OutOrStdout()
			if len(selected) == 0 {
				fmt.Fprintln(out, "No matching leases.")
				return nil
			}

			n, err := client.RestartTasks(cmd.Context(), selected)
			if err != nil {
				return fmt.Errorf("restart tasks: %w", err)
			}
			fmt.Fprintf(out, "Restarted %d of %d task(s)\n", n, len(selected))
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "restart leases not renewed within this duration")
	cmd.Flags().BoolVar(&all, "all", false, "restart every outstanding lease")
	return cmd
}

// age renders a lease timestamp relative to now.
func age(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
