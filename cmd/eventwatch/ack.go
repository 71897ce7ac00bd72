package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func ackCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "ack <event-id>...",
		Short: "Acknowledge scheduled events so maintenance starts now",
		Long: `Acknowledge one or more scheduled events. Acknowledgment cannot be undone:
the platform may start maintenance on this VM immediately.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("acknowledgment starts maintenance immediately; pass --yes to confirm")
			}

			client, err := metadataClient()
			if err != nil {
				return err
			}

			var errs []error
			for _, id := range args {
				if err := client.Acknowledge(context.Background(), id); err != nil {
					errs = append(errs, fmt.Errorf("event %s: %w", id, err))
					continue
				}
				fmt.Printf("Event %s acknowledged\n", id)
			}
			return errors.Join(errs...)
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the acknowledgment")

	return cmd
}
