package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	serverURL      string
	organizationID string
	verbose        bool
	output         string // json, yaml, table
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "snapseal-cli",
	Short: "Snapseal evidence snapshot CLI",
	Long: `A command-line interface for managing evidence snapshots in Snapseal.

The CLI creates, locks, verifies, and packages evidence snapshots through the
snapshot API. Every call is scoped to one organization; set the organization
via --org or the SNAPSEAL_ORG_ID environment variable.`,
	Version: "1.0.0",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global persistent flags
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", getEnvOrDefault("SNAPSEAL_SERVER_URL", "http://localhost:8080"), "Snapshot API server URL")
	rootCmd.PersistentFlags().StringVar(&organizationID, "org", os.Getenv("SNAPSEAL_ORG_ID"), "Organization ID (UUID) scoping every request")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (json, yaml, table)")

	// Add subcommands
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(versionCmd)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Snapseal CLI v1.0.0")
	},
}
