// Package cmd defines the knowledge service's CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "knowledge",
	Short: "Knowledge retrieval service",
	Long: `knowledge ingests documents into a multi-tenant vector index and
retrieves relevant passages to augment conversational context.

Run "knowledge serve" to start the HTTP API server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
