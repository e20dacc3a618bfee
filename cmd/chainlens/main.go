package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

var configFile string

// rootCmd is the chainlens entry point
var rootCmd = &cobra.Command{
	Use:   "chainlens",
	Short: "Supply chain triangle analytics",
	Long: `chainlens scores how a business balances service level, cost and
working capital, recommends where to improve, raises alerts on tenant rules
and runs background insight agents.`,
	SilenceUsage: true,
}

// versionCmd prints build information
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "chainlens version %s\nCommit: %s\nBuilt: %s\n", version, commit, date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config/config.yaml", "Configuration file path")
	rootCmd.AddCommand(serveCmd, scoreCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
