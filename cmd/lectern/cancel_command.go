package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the job currently being processed",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			cancelled, err := client.CancelCurrent(cmd.Context())
			if err != nil {
				return fmt.Errorf("cancel: %w (is the daemon running?)", err)
			}
			if cancelled {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancellation requested")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No job is being processed")
			}
			return nil
		},
	}
}
