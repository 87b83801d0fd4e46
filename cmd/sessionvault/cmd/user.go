package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var passwordStdin bool

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage console accounts",
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Register a user, replacing any existing password",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		if err := c.AddUser(args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Stored credential for %s\n", args[0])
		return nil
	},
}

var userVerifyCmd = &cobra.Command{
	Use:   "verify <username>",
	Short: "Check a username and password against the store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		password, err := readPassword(cmd)
		if err != nil {
			return err
		}
		c, err := openConsole(cmd)
		if err != nil {
			return err
		}
		defer c.Close()
		id, err := c.Credentials().VerifyUser(args[0], password)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "OK %s\n", id.Username)
		return nil
	},
}

// readPassword reads one line from stdin. A prompt is written to stderr
// unless --password-stdin says the input is piped.
func readPassword(cmd *cobra.Command) (string, error) {
	if !passwordStdin {
		fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userAddCmd, userVerifyCmd)
	userCmd.PersistentFlags().BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin without prompting")
}
