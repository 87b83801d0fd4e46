package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmcleod/sessionvault/session"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect and manage sessions",
}

var sessionNewCmd = &cobra.Command{
	Use:   "new <username>",
	Short: "Open a session for username without checking a password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		token, err := c.Sessions().NewSession(session.NewPayload(args[0]))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <token>",
	Short: "Print a session's payload without refreshing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		p, ok, err := c.Sessions().Get(args[0])
		if err != nil {
			return err
		}
		if !ok {
			return session.ErrSessionNotFound
		}
		return printPayload(cmd, p)
	},
}

var sessionVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Validate a token, refreshing its activity time",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		p, err := c.Authenticate(args[0])
		if err != nil {
			return err
		}
		return printPayload(cmd, p)
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <token>",
	Short: "Remove a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		return c.Logout(args[0])
	},
}

var sessionSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove every expired session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		n, err := c.Sessions().Sweep()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d expired sessions\n", n)
		return nil
	},
}

func printPayload(cmd *cobra.Command, p session.Payload) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionNewCmd, sessionShowCmd, sessionVerifyCmd, sessionDeleteCmd, sessionSweepCmd)
}
