package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/n8nhost/console/client"
	"github.com/n8nhost/console/db"
)

func newBackupCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Create and list archive backups of the n8n data directory",
	}
	cmd.AddCommand(newBackupCreateCmd(opts))
	cmd.AddCommand(newBackupListCmd(opts))
	return cmd
}

func newBackupCreateCmd(opts *options) *cobra.Command {
	var (
		wait     bool
		interval time.Duration
		maxPolls int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Start a backup job",
		Long: `Start a backup job. With --wait the command polls the job until it
completes or fails, at most --max-polls times. Ctrl+C stops polling; the job
keeps running on the server.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			b, err := c.CreateBackup(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup %s started\n", b.ID)
			if !wait {
				return nil
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			last := -1
			b, err = c.WaitForBackup(ctx, b.ID, interval, maxPolls, func(b db.Backup) {
				if b.Progress != last {
					last = b.Progress
					fmt.Fprintf(cmd.OutOrStdout(), "  %s %d%%\n", b.Status, b.Progress)
				}
			})
			switch {
			case errors.Is(err, context.Canceled):
				fmt.Fprintln(cmd.OutOrStdout(), "Stopped waiting; the backup continues on the server")
				return nil
			case errors.Is(err, client.ErrPollLimit):
				return fmt.Errorf("backup %s still %s after %d polls", b.ID, b.Status, maxPolls)
			case err != nil:
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup completed: %s (%d bytes)\n", b.Filename, b.Size)
			return nil
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the job to finish")
	cmd.Flags().DurationVar(&interval, "interval", client.DefaultPollInterval, "Poll interval")
	cmd.Flags().IntVar(&maxPolls, "max-polls", client.DefaultMaxPolls, "Give up after this many polls")
	return cmd
}

func newBackupListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List backups",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			backups, err := c.ListBackups(cmd.Context())
			if err != nil {
				return err
			}

			p := opts.printer(cmd)
			if done, err := p.structured(backups); done {
				return err
			}
			rows := make([][]interface{}, 0, len(backups))
			for _, b := range backups {
				rows = append(rows, []interface{}{b.ID, b.Filename, b.Status, fmt.Sprintf("%d%%", b.Progress),
					b.Size, b.CreatedAt.Local().Format("2006-01-02 15:04")})
			}
			p.table([]string{"ID", "FILE", "STATUS", "PROGRESS", "SIZE", "CREATED"}, rows)
			return nil
		},
	}
}
