package cli

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/n8nhost/console/client"
)

func newLoginCmd(opts *options) *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and save the session token",
		Long: `Log in with the console operator account. Without --password the
password is read from the first line of stdin.

Examples:
  consolectl login --server https://console.example.com --username admin
  echo "$PW" | consolectl login --server https://console.example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings()
			if err != nil {
				return err
			}
			if s.Server == "" {
				return fmt.Errorf("--server is required")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			c := client.NewClient(s.Server, "")
			resp, err := c.Login(cmd.Context(), username, password)
			if err != nil {
				return err
			}

			s.Token = resp.Token
			s.Username = resp.Username
			if err := SaveSettings(opts.configPath, s); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (session valid until %s)\n",
				resp.Username, resp.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "admin", "Operator username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Operator password (read from stdin when empty)")
	return cmd
}
