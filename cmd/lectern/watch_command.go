package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"lectern/internal/events"
	"lectern/internal/queue"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow queue events live",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			err = client.Events(cmd.Context(), func(event events.Event) {
				switch event.Kind {
				case events.KindState:
					if event.State == nil {
						return
					}
					stats := event.State.Stats()
					fmt.Fprintf(out, "queue: %d jobs", len(event.State.Jobs))
					if event.State.CurrentJobID != "" {
						fmt.Fprintf(out, ", processing %s", event.State.CurrentJobID)
					}
					if pending := stats[queue.StatusPending]; pending > 0 {
						fmt.Fprintf(out, ", %d pending", pending)
					}
					fmt.Fprintln(out)
				case events.KindProgress:
					if event.Job == nil || event.Progress == nil {
						return
					}
					fmt.Fprintf(out, "%s: %s %s\n", event.Job.OriginalName, formatProgress(event.Progress), event.Progress.Message)
				case events.KindJobComplete:
					if event.Job == nil {
						return
					}
					fmt.Fprintf(out, "%s: completed (%s)\n", event.Job.OriginalName, event.Job.ResultRef)
				case events.KindJobFailed:
					name := "job"
					if event.Job != nil {
						name = event.Job.OriginalName
					}
					fmt.Fprintf(out, "%s: failed: %s\n", name, event.Error)
				case events.KindJobCancelled:
					if event.Job == nil {
						return
					}
					fmt.Fprintf(out, "%s: cancelled\n", event.Job.OriginalName)
				}
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("watch: %w (is the daemon running?)", err)
			}
			return nil
		},
	}
}
