package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lectern/internal/api"
	"lectern/internal/queue"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mkv":  {},
	".mov":  {},
	".avi":  {},
	".webm": {},
}

func newAddCommand(ctx *commandContext) *cobra.Command {
	var group string
	var reprocess bool

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Queue recordings for processing",
		Long: "Queue one or more recordings for processing. With --reprocess each " +
			"path is an existing output folder to run again instead of a new recording.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if reprocess && group != "" {
				return fmt.Errorf("--group cannot be combined with --reprocess")
			}

			submissions := make([]api.Submission, 0, len(args))
			for _, arg := range args {
				sub, err := buildSubmission(arg, group, reprocess)
				if err != nil {
					return err
				}
				submissions = append(submissions, sub)
			}

			return ctx.withQueue(cmd.Context(), func(client *api.Client, store *queue.Store) error {
				var jobs []queue.Job
				var err error
				if client != nil {
					jobs, err = client.Add(cmd.Context(), submissions)
				} else {
					inputs := make([]queue.NewJob, 0, len(submissions))
					for _, sub := range submissions {
						inputs = append(inputs, queue.NewJob{
							SourcePath:   sub.SourcePath,
							OriginalName: sub.OriginalName,
							SizeBytes:    sub.SizeBytes,
							Group:        sub.Group,
							Reprocess:    sub.Reprocess,
						})
					}
					jobs, err = store.Add(inputs)
				}
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				for _, job := range jobs {
					fmt.Fprintf(out, "Queued %s (%s)\n", job.OriginalName, job.ID)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Group related recordings under one label")
	cmd.Flags().BoolVar(&reprocess, "reprocess", false, "Re-run processing on an existing output folder")
	return cmd
}

func buildSubmission(arg, group string, reprocess bool) (api.Submission, error) {
	trimmed := strings.TrimSpace(arg)
	if trimmed == "" {
		return api.Submission{}, fmt.Errorf("path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return api.Submission{}, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return api.Submission{}, fmt.Errorf("stat %s: %w", absPath, err)
	}

	if reprocess {
		if !info.IsDir() {
			return api.Submission{}, fmt.Errorf("reprocess path %q is not a folder", absPath)
		}
		return api.Submission{
			SourcePath:   absPath,
			OriginalName: info.Name(),
			Reprocess:    true,
		}, nil
	}

	if info.IsDir() {
		return api.Submission{}, fmt.Errorf("path %q is a folder; use --reprocess for output folders", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	if _, ok := videoExtensions[ext]; !ok {
		return api.Submission{}, fmt.Errorf("unsupported file extension %q", ext)
	}

	return api.Submission{
		SourcePath:   absPath,
		OriginalName: info.Name(),
		SizeBytes:    info.Size(),
		Group:        group,
	}, nil
}
