package main

import (
	"github.com/spf13/cobra"

	"github.com/blockedby/telememo/internal/collector"
	"github.com/blockedby/telememo/internal/repository"
)

func newInfoCmd(a *app) *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "info <channel>",
		Short: "Show channel metadata and local statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			var (
				info *collector.ChannelInfo
				err  error
			)
			if offline {
				svc, lerr := a.local(ctx)
				if lerr != nil {
					return lerr
				}
				ch, lerr := svc.Lookup(ctx, args[0])
				if lerr != nil {
					return lerr
				}
				info, err = svc.Stats(ctx, ch)
			} else {
				mgr, merr := a.manager(ctx, true)
				if merr != nil {
					return merr
				}
				info, err = mgr.Service().Info(ctx, args[0])
			}
			if err != nil {
				return err
			}

			printInfo(cmd.OutOrStdout(), info)
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "read the stored channel without contacting telegram")
	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		limit   int
		channel string
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search stored message text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if limit < 0 {
				return collector.ErrInvalidLimit
			}
			svc, err := a.local(ctx)
			if err != nil {
				return err
			}

			q := repository.SearchQuery{Text: args[0], Limit: limit}
			if channel != "" {
				ch, err := svc.Lookup(ctx, channel)
				if err != nil {
					return err
				}
				q.ChannelID = &ch.ID
			}

			msgs, err := svc.Store().Messages.Search(ctx, q)
			if err != nil {
				return err
			}
			printMessages(cmd.OutOrStdout(), msgs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", repository.DefaultSearchLimit, "maximum number of results")
	cmd.Flags().StringVar(&channel, "channel", "", "only search this channel")
	return cmd
}

func newShowCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <channel>",
		Short: "Print the latest posts of a stored channel, albums merged",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if limit <= 0 {
				return collector.ErrInvalidLimit
			}
			svc, err := a.local(ctx)
			if err != nil {
				return err
			}
			ch, err := svc.Lookup(ctx, args[0])
			if err != nil {
				return err
			}

			units, err := svc.LatestUnits(ctx, ch, limit, 0)
			if err != nil {
				return err
			}
			printUnits(cmd.OutOrStdout(), ch, units)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of posts")
	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs <channel>",
		Short: "List recent dump and sync runs of a channel",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := a.local(ctx)
			if err != nil {
				return err
			}
			ch, err := svc.Lookup(ctx, args[0])
			if err != nil {
				return err
			}

			runs, err := svc.Store().Runs.Latest(ctx, ch.ID, limit)
			if err != nil {
				return err
			}
			printRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 10, "number of runs")
	return cmd
}
