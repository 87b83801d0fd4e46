package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionvault/storage"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create or upgrade the store file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		fmt.Fprintf(cmd.OutOrStdout(), "Session store %s ready (schema %d)\n", c.Config().SessionStore, storage.SchemaVersion)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
