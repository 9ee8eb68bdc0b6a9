package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			status, err := client.Status(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, "Daemon:  not running")
				return nil
			}

			fmt.Fprintln(out, "Daemon:  running")
			fmt.Fprintf(out, "PID:     %d\n", status.PID)
			fmt.Fprintf(out, "Queue:   %s\n", status.QueuePath)
			if status.CurrentJobID != "" {
				fmt.Fprintf(out, "Active:  %s\n", status.CurrentJobID)
			} else {
				fmt.Fprintln(out, "Active:  idle")
			}
			rows := buildStatusRows(status.Stats)
			if len(rows) > 0 {
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}
}
