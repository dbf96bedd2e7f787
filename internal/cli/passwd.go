package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/david/licitacoes/internal/auth"
)

var passwdCmd = &cobra.Command{
	Use:   "passwd <password>",
	Short: "Print a bcrypt hash to place under auth.users in the config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cost, _ := cmd.Flags().GetInt("cost")
		hash, err := auth.HashPassword(args[0], cost)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(passwdCmd)
	passwdCmd.Flags().Int("cost", 0, "bcrypt cost (0 uses the library default)")
}
