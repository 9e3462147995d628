package cmd

import (
	"github.com/spf13/cobra"
)

var memMoveCmd = &cobra.Command{
	Use:   "move <source> <dest>",
	Short: "Rename a memory or move it to a different folder",
	Args:  cobra.ExactArgs(2),
	RunE:  runMemoryMove,
}

var memArchiveCategory string

var memArchiveCmd = &cobra.Command{
	Use:   "archive <path>",
	Short: "Move a memory into the dated archive",
	Long: `Move a memory into the dated archive.

The memory lands under "archive/" with today's date prefixed to its
name, e.g. "archive/20260829_auth-flow". Use --category to group
archived memories into a subfolder.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryArchive,
}

func init() {
	memArchiveCmd.Flags().StringVar(&memArchiveCategory, "category", "", "archive subfolder to file the memory under")

	memoryCmd.AddCommand(memMoveCmd)
	memoryCmd.AddCommand(memArchiveCmd)
}

func runMemoryMove(cmd *cobra.Command, args []string) error {
	return runCommand("memory.move", map[string]any{
		"source": args[0],
		"dest":   args[1],
	}, "")
}

func runMemoryArchive(cmd *cobra.Command, args []string) error {
	params := map[string]any{"path": args[0]}
	if memArchiveCategory != "" {
		params["category"] = memArchiveCategory
	}
	return runCommand("memory.archive", params, "")
}
