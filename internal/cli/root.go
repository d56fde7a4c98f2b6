package cli

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"github.com/n8nhost/console/client"
)

// options are the flags shared by every command
type options struct {
	server     string
	token      string
	output     string
	configPath string
}

func (o *options) settings() (Settings, error) {
	s, err := LoadSettings(o.configPath)
	if err != nil {
		return s, err
	}
	if v := os.Getenv("CONSOLE_URL"); v != "" {
		s.Server = v
	}
	if v := os.Getenv("CONSOLE_TOKEN"); v != "" {
		s.Token = v
	}
	if o.server != "" {
		s.Server = o.server
	}
	if o.token != "" {
		s.Token = o.token
	}
	return s, nil
}

// client builds an API client from the saved session and the flags
func (o *options) client() (*client.Client, error) {
	s, err := o.settings()
	if err != nil {
		return nil, err
	}
	if s.Server == "" {
		return nil, errors.New("no server configured, run `consolectl login --server <url>` first")
	}
	return client.NewClient(s.Server, s.Token), nil
}

func (o *options) printer(cmd *cobra.Command) printer {
	return printer{out: cmd.OutOrStdout(), format: OutputFormat(o.output)}
}

// NewRootCmd builds the consolectl command tree
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "consolectl",
		Short: "Manage an n8n hosting console from the command line",
		Long: `consolectl talks to the console API to run backups, toggle system
notification events, edit environment variables and inspect the cache.

Run 'consolectl login --server <url>' once; the session is saved for
later commands.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.server, "server", "", "Console API URL (env CONSOLE_URL)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "Session token (env CONSOLE_TOKEN)")
	rootCmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", defaultSettingsPath(), "Session file")

	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newBackupCmd(opts))
	rootCmd.AddCommand(newEventsCmd(opts))
	rootCmd.AddCommand(newEnvCmd(opts))
	rootCmd.AddCommand(newCacheCmd(opts))

	return rootCmd
}

// Execute runs the command tree. It is called by main.main().
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}
