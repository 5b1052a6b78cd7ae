package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MuhibNayem/quantify-go/internal/config"
)

var initPath string

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a quantify.yaml populated with defaults to the current directory.
Edit api.base_url to point at your Quantify server.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initPath, "path", "quantify.yaml", "where to write the config file")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	if err := config.WriteDefaultConfig(initPath); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", initPath)
	return nil
}
