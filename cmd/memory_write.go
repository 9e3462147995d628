package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pders01/navi/internal/config"
)

var memWriteNoStamp bool

var memWriteCmd = &cobra.Command{
	Use:   "write <path> <content>",
	Short: "Create or overwrite a memory",
	Long: `Create or overwrite a memory.

Pass "-" as the content to read it from stdin:

  cat notes.md | navi memory write architecture/auth-flow -`,
	Args: cobra.ExactArgs(2),
	RunE: runMemoryWrite,
}

var memEditMode string

var memEditCmd = &cobra.Command{
	Use:   "edit <path> <find> <replace>",
	Short: "Replace text inside a memory",
	Long: `Replace text inside a memory.

By default <find> is matched literally and every occurrence is
replaced. With --mode regex it is compiled as a regular expression
and <replace> may use capture group references like $1.`,
	Args: cobra.ExactArgs(3),
	RunE: runMemoryEdit,
}

var memDeleteCmd = &cobra.Command{
	Use:   "delete <path>",
	Short: "Delete a memory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

func init() {
	memWriteCmd.Flags().BoolVar(&memWriteNoStamp, "no-timestamp", false, "do not append an update timestamp")
	memEditCmd.Flags().StringVar(&memEditMode, "mode", "literal", "match mode: literal or regex")

	memoryCmd.AddCommand(memWriteCmd)
	memoryCmd.AddCommand(memEditCmd)
	memoryCmd.AddCommand(memDeleteCmd)
}

func runMemoryWrite(cmd *cobra.Command, args []string) error {
	content, err := readBody(args[1])
	if err != nil {
		return err
	}
	params := map[string]any{"path": args[0]}
	// The flag disables stamping for one write; the memory.timestamp
	// config key disables it globally.
	if memWriteNoStamp || !config.TimestampWrites() {
		params["timestamp"] = false
	}
	return runCommand("memory.write", params, content)
}

func runMemoryEdit(cmd *cobra.Command, args []string) error {
	return runCommand("memory.edit", map[string]any{
		"path":    args[0],
		"find":    args[1],
		"replace": args[2],
		"mode":    memEditMode,
	}, "")
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	return runCommand("memory.delete", map[string]any{"path": args[0]}, "")
}
