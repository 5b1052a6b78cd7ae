// Package cmd provides the CLI commands for the Quantify client.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MuhibNayem/quantify-go/internal/config"
)

var cfgFile string
var traceEnabled bool

var rootCmd = &cobra.Command{
	Use:   "quantify",
	Short: "Quantify - inventory management terminal client",
	Long: `Quantify is a terminal client for the Quantify inventory management API.

It manages an authenticated session (login, automatic token refresh, durable
storage between runs) and a live notification channel over WebSocket.

Quick start:
  1. Create a config file: quantify init
  2. Log in: quantify login -u alice
  3. Check your session: quantify whoami

Configuration:
  Config is loaded from quantify.yaml in the current directory or
  $HOME/.quantify/.

  Environment variables can override config values with the QUANTIFY_ prefix.
  Example: QUANTIFY_API_BASE_URL=https://api.example.com/v1

Commands:
  login          Authenticate and store the session
  logout         Invalidate and clear the session
  whoami         Show the current identity and permissions
  notifications  List or watch notifications
  settings       Show the server's business configuration
  init           Write a default config file
  version        Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./quantify.yaml)")
	rootCmd.PersistentFlags().BoolVar(&traceEnabled, "trace", false, "print a span for every API request to stderr")
}

func initConfig() {
	config.InitViper(cfgFile)
}
