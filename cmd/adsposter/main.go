package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "adsposter",
	Short: "Publish and schedule Meta Business Suite posts through AdsPower profiles",
	Long: `adsposter drives the Business Suite post composer inside AdsPower browser
profiles, one run at a time.

  adsposter serve --config config.yaml     # chat + HTTP control + autorun
  adsposter run --config config.yaml -p p1 # one run from the terminal`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the build version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "adsposter", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "./config.json", "path to config (json or yaml)")
	rootCmd.AddCommand(serveCmd, runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
