package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/sitebookify/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running sitebookify server via HTTP.

These commands require a running server (sitebookify serve).
Use --server to specify a custom server URL.

Examples:
  sitebookify api health                       # Check server health
  sitebookify api start https://docs.example/  # Start a crawl job
  sitebookify api get <job-id>                 # Get job status
  sitebookify api fetch <job-id>               # Download the artifact`,
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8090", "Server URL",
	)

	for _, ep := range endpoints.All() {
		apiCmd.AddCommand(ep.Command(getServerURL))
	}

	rootCmd.AddCommand(apiCmd)
}
