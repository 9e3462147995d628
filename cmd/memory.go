package cmd

import (
	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:     "memory",
	Aliases: []string{"mem"},
	Short:   "Manage project memories",
	Long: `Manage project memories.

Memories are named markdown documents stored by the backend. Paths may
use "/" to form folders, e.g. "architecture/auth-flow". The special
"archive/" folder holds dated snapshots created by "memory archive".`,
}

var (
	memListFolder string
	memListFlat   bool
)

var memListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory paths",
	Args:  cobra.NoArgs,
	RunE:  runMemoryList,
}

var memReadCmd = &cobra.Command{
	Use:   "read <path>",
	Short: "Print the content of a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryRead,
}

var memTreeRoot string

var memTreeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Show memories as a folder tree",
	Args:  cobra.NoArgs,
	RunE:  runMemoryTree,
}

func init() {
	memListCmd.Flags().StringVar(&memListFolder, "folder", "", "list only memories under this folder")
	memListCmd.Flags().BoolVar(&memListFlat, "flat", false, "do not recurse into subfolders")
	memTreeCmd.Flags().StringVar(&memTreeRoot, "root", "", "subtree to show")

	memoryCmd.AddCommand(memListCmd)
	memoryCmd.AddCommand(memReadCmd)
	memoryCmd.AddCommand(memTreeCmd)
	rootCmd.AddCommand(memoryCmd)
}

func runMemoryList(cmd *cobra.Command, args []string) error {
	params := map[string]any{"recursive": !memListFlat}
	if memListFolder != "" {
		params["folder"] = memListFolder
	}
	return runCommand("memory.list", params, "")
}

func runMemoryRead(cmd *cobra.Command, args []string) error {
	return runCommand("memory.read", map[string]any{"path": args[0]}, "")
}

func runMemoryTree(cmd *cobra.Command, args []string) error {
	params := map[string]any{}
	if memTreeRoot != "" {
		params["root"] = memTreeRoot
	}
	return runCommand("memory.tree", params, "")
}
