package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEventsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "events",
		Aliases: []string{"event"},
		Short:   "Inspect and toggle system notification events",
	}
	cmd.AddCommand(newEventsListCmd(opts))
	cmd.AddCommand(newEventToggleCmd(opts, true))
	cmd.AddCommand(newEventToggleCmd(opts, false))
	return cmd
}

func newEventsListCmd(opts *options) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List system notification events",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			resp, err := c.ListEvents(cmd.Context())
			if err != nil {
				return err
			}

			events := resp.Events[:0:0]
			for _, e := range resp.Events {
				if category == "" || strings.EqualFold(e.Category, category) {
					events = append(events, e)
				}
			}

			p := opts.printer(cmd)
			if done, err := p.structured(events); done {
				return err
			}
			rows := make([][]interface{}, 0, len(events))
			for _, e := range events {
				rows = append(rows, []interface{}{e.ID, e.EventType, e.Category, e.Severity,
					statusText(e.Enabled, "enabled", "disabled"), len(e.Targets)})
			}
			p.table([]string{"ID", "EVENT", "CATEGORY", "SEVERITY", "STATUS", "TARGETS"}, rows)
			return nil
		},
	}

	cmd.Flags().StringVar(&category, "category", "", "Only show events in this category")
	return cmd
}

func newEventToggleCmd(opts *options, enabled bool) *cobra.Command {
	use, short := "disable <id>", "Disable an event"
	if enabled {
		use, short = "enable <id>", "Enable an event (it needs at least one target)"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			e, err := c.SetEventEnabled(cmd.Context(), args[0], enabled)
			if err != nil {
				return err
			}
			state := "disabled"
			if e.Enabled {
				state = "enabled"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Event %s %s\n", e.EventType, state)
			return nil
		},
	}
}
