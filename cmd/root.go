// Package cmd holds the kagaj command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "kagaj",
	Short: "kagaj - document question answering over a local model host",
	Long: `kagaj ingests PDF documents into a vector store and answers
questions grounded in their content, using a local Ollama host for
embeddings and generation.

Common workflow:

  kagaj ingest handbook.pdf --title "Employee Handbook"
  kagaj ask "how many days of leave do I get?"
  kagaj serve`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
