package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var loginUsername string
var loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Authenticate and store the session",
	Long: `Authenticate against the Quantify API and persist the session.

The access, refresh, and CSRF tokens and the user identity are stored in the
local session database, so later commands (and later runs) reuse them until
they expire or you log out.

Examples:
  quantify login -u alice
  quantify login -u alice -p secret`,
	RunE: runLogin,
}

func init() {
	loginCmd.Flags().StringVarP(&loginUsername, "username", "u", "", "username")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "password (prompted when omitted)")
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	username := loginUsername
	if username == "" {
		username, err = prompt("Username: ")
		if err != nil {
			return err
		}
	}
	password := loginPassword
	if password == "" {
		password, err = prompt("Password: ")
		if err != nil {
			return err
		}
	}

	if err := a.client.LoginWithPassword(cmd.Context(), username, password); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	sess := a.sessions.Current()
	fmt.Printf("Logged in as %s (%d permissions)\n", sess.User.Username, len(sess.Permissions))
	return nil
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
