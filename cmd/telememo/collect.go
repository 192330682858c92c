package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/blockedby/telememo/internal/collector"
)

func newDumpCmd(a *app) *cobra.Command {
	var (
		limit  int
		resume bool
		quiet  bool
	)

	cmd := &cobra.Command{
		Use:   "dump <channel>",
		Short: "Download the full history of a channel, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 {
				return collector.ErrInvalidLimit
			}
			mgr, err := a.manager(cmd.Context(), true)
			if err != nil {
				return err
			}

			opts := collector.DumpOptions{Channel: args[0], Limit: limit, Resume: resume}
			if !quiet {
				opts.Progress = progressPrinter(cmd.ErrOrStderr())
			}
			res, err := mgr.Dump(cmd.Context(), opts)
			if res != nil {
				printResult(cmd.OutOrStdout(), res)
			}
			return err
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "stop after this many messages (0 = whole history)")
	cmd.Flags().BoolVar(&resume, "resume", false, "continue below the oldest stored message")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print progress")
	return cmd
}

func newSyncCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <channel>...",
		Short: "Fetch messages newer than the checkpoint of previously dumped channels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := a.manager(cmd.Context(), true)
			if err != nil {
				return err
			}

			outcomes, err := mgr.SyncAll(cmd.Context(), args)
			out := cmd.OutOrStdout()
			for _, o := range outcomes {
				if o.Err != nil {
					fmt.Fprintf(out, "%s: %s: %v\n", o.Ref, errorKind(o.Err), o.Err)
					continue
				}
				printResult(out, o.Result)
			}
			return err
		},
	}
}

// progressPrinter reports once per committed page.
func progressPrinter(w io.Writer) collector.ProgressFunc {
	return func(p collector.Progress) {
		if p.State != collector.StateCheckpointing {
			return
		}
		checkpoint := "-"
		if p.Checkpoint != nil {
			checkpoint = fmt.Sprint(*p.Checkpoint)
		}
		fmt.Fprintf(w, "page %d: fetched %d, inserted %d, updated %d, skipped %d, checkpoint %s\n",
			p.Pages, p.Fetched, p.Inserted, p.Updated, p.Skipped, checkpoint)
	}
}
