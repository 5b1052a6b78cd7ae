package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current identity and permissions",
	Long: `Show the stored session: username, role, permission set, and the access
token's expiry time. Exits with an error when no session is stored.`,
	RunE: runWhoami,
}

func init() {
	rootCmd.AddCommand(whoamiCmd)
}

func runWhoami(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	sess := a.sessions.Current()
	if !sess.IsAuthenticated {
		return fmt.Errorf("not logged in (run: quantify login)")
	}

	fmt.Printf("Username: %s\n", sess.User.Username)
	if sess.User.Role.Name != "" {
		fmt.Printf("Role:     %s\n", sess.User.Role.Name)
	}
	if expiry := sess.AccessTokenExpiry(); !expiry.IsZero() {
		fmt.Printf("Token expires: %s\n", expiry.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Printf("Permissions (%d):\n", len(sess.Permissions))
	for _, p := range sess.Permissions {
		fmt.Printf("  %s\n", p)
	}
	return nil
}
