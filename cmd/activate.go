package cmd

import (
	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate <project>",
	Short: "Activate a project by name or path",
	Long: `Activate a project by name or path.

Activation can take a while on large projects because the language
server indexes the codebase, so this command uses a longer timeout
than the other commands.`,
	Args: cobra.ExactArgs(1),
	RunE: runActivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	return runCommand("activate-project", map[string]any{"project": args[0]}, "")
}
