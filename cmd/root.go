// Package cmd wires the knowbot CLI.
package cmd

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "knowbot",
	Short: "knowbot - knowledge base chatbot backend",
	Long: `knowbot answers customer questions from curated Q&A knowledge bases.

It retrieves relevant documents with vector search, composes a persona-aware
prompt and generates answers through a language model. Running knowbot
without a subcommand starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
}
