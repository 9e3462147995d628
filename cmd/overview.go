package cmd

import (
	"github.com/spf13/cobra"
)

var overviewCmd = &cobra.Command{
	Use:   "overview <file>",
	Short: "Get an overview of the symbols in a file",
	Long: `Get an overview of the symbols in a file.

Example:
  navi overview src/Entity/Customer.php`,
	Args: cobra.ExactArgs(1),
	RunE: runOverview,
}

func init() {
	rootCmd.AddCommand(overviewCmd)
}

func runOverview(cmd *cobra.Command, args []string) error {
	return runCommand("overview", map[string]any{"file": args[0]}, "")
}
