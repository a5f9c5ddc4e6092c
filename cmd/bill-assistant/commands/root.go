// Package commands implements the bill-assistant CLI.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/bill-assistant/cmd/bill-assistant/ui"
)

var version = "0.1.0"

var (
	cfgFile string
	verbose bool
	noColor bool
)

var rootCmd = &cobra.Command{
	Use:   "bill-assistant",
	Short: "Translate German hospital bills into Chinese and answer questions about them",
	Long: `bill-assistant extracts the text of a German hospital bill PDF, translates it
into Simplified Chinese chunk by chunk and answers follow-up questions about the
bill in Chinese, either in the terminal or over an HTTP API.`,
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.InitUI(noColor, verbose)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
