package cmd

import (
	"github.com/spf13/cobra"
)

// defaultCmd represents the command that runs when no subcommand is specified
var defaultCmd = &cobra.Command{
	Use:    "default",
	Short:  "Default command when no subcommand is provided",
	Long:   `Lists the installed files, like the installed command.`,
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return installedCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(defaultCmd)
	defaultCmd.Flags().Bool("json", false, "print the entries as JSON")

	// rootCmd runs defaultCmd when no subcommand is provided
	rootCmd.Args = cobra.NoArgs
	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return defaultCmd.RunE(cmd, args)
	}
}
