package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newCacheCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or flush the Redis cache",
	}
	cmd.AddCommand(newCacheStatusCmd(opts))
	cmd.AddCommand(newCacheFlushCmd(opts))
	return cmd
}

func newCacheStatusCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache connectivity and statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			st, err := c.CacheStatus(cmd.Context())
			if err != nil {
				return err
			}

			p := opts.printer(cmd)
			if done, err := p.structured(st); done {
				return err
			}
			connected, _ := st["connected"].(bool)
			pairs := [][2]interface{}{
				{"Connected", statusText(connected, "yes", "no")},
			}
			if msg, ok := st["error"].(string); ok && msg != "" {
				pairs = append(pairs, [2]interface{}{"Error", msg})
			}
			if connected {
				pairs = append(pairs,
					[2]interface{}{"Version", st["version"]},
					[2]interface{}{"Keys", st["keys"]},
					[2]interface{}{"Memory", st["used_memory"]},
				)
				if rate, ok := st["hit_rate"].(float64); ok {
					pairs = append(pairs, [2]interface{}{"Hit rate", fmt.Sprintf("%.1f%%", rate*100)})
				}
			}
			p.keyValues(pairs)
			return nil
		},
	}
}

func newCacheFlushCmd(opts *options) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Delete every key in the cache database",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to flush the cache without --yes")
			}
			c, err := opts.client()
			if err != nil {
				return err
			}
			if err := c.FlushCache(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Cache flushed")
			return nil
		},
	}

	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm the flush")
	return cmd
}
