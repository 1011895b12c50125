package main

import (
	"github.com/spf13/cobra"

	"github.com/jackzampolin/sitebookify/internal/api"
	"github.com/jackzampolin/sitebookify/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "sitebookify",
	Short: "Turn a website or a topic into a book",
	Long: `sitebookify converts a website (or a topical web query) into a
book-shaped artifact: a chaptered Markdown tree, a bundled book.md, and an
EPUB, delivered as a downloadable ZIP.

The pipeline includes:
  - Scoped site crawling with URL normalization
  - Readability-style content extraction to Markdown
  - TOC planning (heuristic, subprocess, or LLM)
  - Placeholder-protected LLM rewriting that never corrupts code or links
  - Single-file bundling and EPUB 3 generation`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.sitebookify/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "sitebookify home directory (default: ~/.sitebookify)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}
