package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/blockedby/telememo/internal/nats"
)

func newEventsCmd(a *app) *cobra.Command {
	var consumer string

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print messages-stored events from NATS as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if a.cfg.NatsURL == "" {
				return errors.New("NATS_URL is not set")
			}

			nc, err := nats.New(ctx, a.cfg.NatsURL)
			if err != nil {
				return err
			}
			a.nc = nc
			if err := nc.EnsureStream(ctx, nats.StreamName, []string{nats.SubjectAll}); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			err = nc.Subscribe(ctx, nats.StreamName, consumer, nats.SubjectMessagesStored, func(data []byte) error {
				_, err := fmt.Fprintln(out, string(data))
				return err
			})
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&consumer, "consumer", "telememo-events", "durable consumer name")
	return cmd
}
