package main

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the job queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued jobs in processing order",
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter queue.Status
			if statusFilter != "" {
				parsed, ok := queue.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q", statusFilter)
				}
				filter = parsed
			}

			return ctx.withQueue(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				var jobs []queue.Job
				var err error
				if client != nil {
					jobs, err = client.List(cmd.Context())
					if err != nil {
						return err
					}
				} else {
					jobs = store.Load().Jobs
				}

				if filter != "" {
					kept := jobs[:0]
					for _, job := range jobs {
						if job.Status == filter {
							kept = append(kept, job)
						}
					}
					jobs = kept
				}
				if len(jobs) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.OriginalName,
						string(job.Status),
						job.Group,
						formatProgress(job.Progress),
						job.CreatedAt.Local().Format(time.RFC3339),
					})
				}
				table := renderTable(
					[]string{"ID", "Name", "Status", "Group", "Progress", "Created"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&statusFilter, "status", "s", "", "Filter by job status")
	return cmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				stats := make(map[string]int)
				if client != nil {
					status, err := client.Status(cmd.Context())
					if err != nil {
						return err
					}
					stats = status.Stats
				} else {
					for status, count := range store.Load().Stats() {
						stats[string(status)] = count
					}
				}

				rows := buildStatusRows(stats)
				if len(rows) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <jobID>",
		Short: "Show one job in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				var job *queue.Job
				if client != nil {
					fetched, err := client.Get(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					job = fetched
				} else {
					fetched, ok := store.Get(args[0])
					if !ok {
						return fmt.Errorf("job %s not found", args[0])
					}
					job = fetched
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", job.ID)
				fmt.Fprintf(out, "Name:      %s\n", job.OriginalName)
				fmt.Fprintf(out, "Source:    %s\n", job.SourcePath)
				fmt.Fprintf(out, "Status:    %s\n", job.Status)
				fmt.Fprintf(out, "Group:     %s\n", job.Group)
				fmt.Fprintf(out, "Reprocess: %s\n", yesNo(job.Reprocess))
				fmt.Fprintf(out, "Created:   %s\n", job.CreatedAt.Local().Format(time.RFC3339))
				if job.StartedAt != nil {
					fmt.Fprintf(out, "Started:   %s\n", job.StartedAt.Local().Format(time.RFC3339))
				}
				if job.CompletedAt != nil {
					fmt.Fprintf(out, "Completed: %s\n", job.CompletedAt.Local().Format(time.RFC3339))
				}
				if job.Progress != nil {
					fmt.Fprintf(out, "Progress:  %s %s\n", formatProgress(job.Progress), job.Progress.Message)
				}
				if job.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:     %s\n", job.ErrorMessage)
				}
				if job.ResultRef != "" {
					fmt.Fprintf(out, "Result:    %s\n", job.ResultRef)
				}
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <jobID>...",
		Short: "Requeue failed or cancelled jobs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					var err error
					if client != nil {
						_, err = client.Retry(cmd.Context(), id)
					} else {
						err = retryDirect(store, id)
					}
					if err != nil {
						fmt.Fprintf(out, "Job %s: %v\n", id, err)
						continue
					}
					fmt.Fprintf(out, "Job %s requeued\n", id)
				}
				return nil
			})
		},
	}
}

func retryDirect(store *queue.Store, id string) error {
	job, ok := store.Get(id)
	if !ok {
		return queue.ErrNotFound
	}
	if job.Status != queue.StatusFailed && job.Status != queue.StatusCancelled {
		return fmt.Errorf("job is %s; only failed or cancelled jobs can be retried", job.Status)
	}
	_, err := store.Update(id, func(j *queue.Job) { j.ResetForRetry() })
	return err
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <jobID>...",
		Short: "Remove jobs from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range args {
					var removed bool
					var err error
					if client != nil {
						removed, err = client.Remove(cmd.Context(), id)
					} else {
						removed, err = store.Remove(id)
					}
					switch {
					case err != nil:
						fmt.Fprintf(out, "Job %s: %v\n", id, err)
					case removed:
						fmt.Fprintf(out, "Job %s removed\n", id)
					default:
						fmt.Fprintf(out, "Job %s not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				var removed int
				var err error
				if client != nil {
					removed, err = client.ClearCompleted(cmd.Context())
				} else {
					removed, err = store.ClearCompleted()
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed jobs\n", removed)
				return nil
			})
		},
	}
}

func buildStatusRows(stats map[string]int) [][]string {
	ordered := make([]string, 0, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		ordered = append(ordered, string(status))
	}

	rows := make([][]string, 0, len(stats))
	seen := make(map[string]bool, len(stats))
	for _, status := range ordered {
		if count, ok := stats[status]; ok && count > 0 {
			rows = append(rows, []string{status, strconv.Itoa(count)})
			seen[status] = true
		}
	}

	var extra []string
	for status, count := range stats {
		if !seen[status] && count > 0 {
			extra = append(extra, status)
		}
	}
	sort.Strings(extra)
	for _, status := range extra {
		rows = append(rows, []string{status, strconv.Itoa(stats[status])})
	}
	return rows
}

func formatProgress(progress *queue.Progress) string {
	if progress == nil {
		return ""
	}
	if progress.Total > 0 {
		return fmt.Sprintf("%d/%d %s", progress.Current, progress.Total, progress.Step)
	}
	return progress.Step
}
