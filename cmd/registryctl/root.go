package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
	outputFmt string
)

var rootCmd = &cobra.Command{
	Use:   "registryctl",
	Short: "CLI for the protocol registry server",
	Long: `registryctl talks to a running registry server over its REST API.

Static commands cover health checks and listing or fetching protocols,
runs and samples. Mutations go through the web application; this tool
is read-oriented.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Registry server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "Bearer token (default: from REGISTRY_TOKEN env)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table", "Output format: table, json, yaml")

	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(protocolsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(samplesCmd)
}

// resolvedToken returns the effective bearer token.
// Priority: --token flag > REGISTRY_TOKEN env var.
func resolvedToken() string {
	if token != "" {
		return token
	}
	return os.Getenv("REGISTRY_TOKEN")
}
