package cmd

import (
	"github.com/spf13/cobra"
)

var refsAll bool

var refsCmd = &cobra.Command{
	Use:   "refs <symbol> <file>",
	Short: "Find all references to a symbol",
	Long: `Find all references to a symbol.

Shows the first 10 references unless --all is given.

Examples:
  navi refs "Customer/getName" src/Entity/Customer.php
  navi refs Order/save src/Entity/Order.php --all`,
	Args: cobra.ExactArgs(2),
	RunE: runRefs,
}

func init() {
	rootCmd.AddCommand(refsCmd)

	refsCmd.Flags().BoolVarP(&refsAll, "all", "a", false, "show all references")
}

func runRefs(cmd *cobra.Command, args []string) error {
	params := map[string]any{
		"symbol": args[0],
		"file":   args[1],
	}
	if refsAll {
		params["all"] = true
	}
	return runCommand("find-references", params, "")
}
