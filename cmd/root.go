// Package cmd implements the boga command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "boga",
	Short: "Boga - retrieval-augmented chat backend",
	Long: `Boga serves a retrieval-augmented chat API over your own documents.

Ingest documents with "boga ingest", then run "boga serve" to expose the
chat, search, and document endpoints over HTTP.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
