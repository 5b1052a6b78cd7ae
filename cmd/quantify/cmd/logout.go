package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate and clear the session",
	Long: `Invalidate the session server-side (best effort) and remove all stored
credentials from the local session database.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	a.client.Logout(cmd.Context())
	fmt.Println("Logged out")
	return nil
}
