package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newEnvCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Read and edit the n8n environment file",
	}
	cmd.AddCommand(newEnvGetCmd(opts))
	cmd.AddCommand(newEnvSetCmd(opts))
	return cmd
}

func newEnvGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [KEY]",
		Short: "Show environment variables, or a single one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			resp, err := c.GetEnvConfig(cmd.Context())
			if err != nil {
				return err
			}

			if len(args) == 1 {
				for _, g := range resp.Groups {
					for _, v := range g.Variables {
						if v.Key == args[0] {
							fmt.Fprintln(cmd.OutOrStdout(), v.Value)
							return nil
						}
					}
				}
				return fmt.Errorf("variable %s not found", args[0])
			}

			p := opts.printer(cmd)
			if done, err := p.structured(resp); done {
				return err
			}
			var rows [][]interface{}
			for _, g := range resp.Groups {
				for _, v := range g.Variables {
					rows = append(rows, []interface{}{g.Name, v.Key, v.Value, statusText(v.Editable || v.IsCustom, "yes", "no")})
				}
			}
			p.table([]string{"GROUP", "KEY", "VALUE", "EDITABLE"}, rows)
			if !resp.RiskAcknowledged {
				fmt.Fprintln(cmd.ErrOrStderr(), "Editing is locked until the risk is acknowledged in the console")
			}
			return nil
		},
	}
}

func newEnvSetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Update an environment variable",
		Long: `Update an environment variable in place. The command prints the
containers that have to be restarted for the change to take effect.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := opts.client()
			if err != nil {
				return err
			}
			containers, err := c.SetEnv(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", args[0])
			if len(containers) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Restart required: %s\n", strings.Join(containers, ", "))
			}
			return nil
		},
	}
}
