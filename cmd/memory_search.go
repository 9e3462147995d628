package cmd

import (
	"github.com/spf13/cobra"
)

var memSearchFolder string

var memSearchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search memory contents for a pattern",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemorySearch,
}

var memStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	Args:  cobra.NoArgs,
	RunE:  runMemoryStats,
}

func init() {
	memSearchCmd.Flags().StringVar(&memSearchFolder, "folder", "", "search only memories under this folder")

	memoryCmd.AddCommand(memSearchCmd)
	memoryCmd.AddCommand(memStatsCmd)
}

func runMemorySearch(cmd *cobra.Command, args []string) error {
	params := map[string]any{"pattern": args[0]}
	if memSearchFolder != "" {
		params["folder"] = memSearchFolder
	}
	return runCommand("memory.search", params, "")
}

func runMemoryStats(cmd *cobra.Command, args []string) error {
	return runCommand("memory.stats", nil, "")
}
