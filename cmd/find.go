package cmd

import (
	"github.com/spf13/cobra"
)

var (
	findKind  string
	findPath  string
	findBody  bool
	findDepth int
	findExact bool
)

var findCmd = &cobra.Command{
	Use:   "find <pattern>",
	Short: "Find symbols by name pattern",
	Long: `Find symbols by name pattern.

Examples:
  navi find Customer --kind class
  navi find "get*" --kind method --path src/
  navi find Payment --body --path src/billing/`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	rootCmd.AddCommand(findCmd)

	findCmd.Flags().StringVarP(&findKind, "kind", "k", "", "filter: class, method, interface, function, namespace, property, constant")
	findCmd.Flags().StringVarP(&findPath, "path", "p", "", "restrict to path (e.g. 'src/billing/')")
	findCmd.Flags().BoolVarP(&findBody, "body", "b", false, "include symbol body/implementation")
	findCmd.Flags().IntVarP(&findDepth, "depth", "d", 0, "traversal depth (0=symbol, 1=children)")
	findCmd.Flags().BoolVarP(&findExact, "exact", "e", false, "exact match only")
}

func runFind(cmd *cobra.Command, args []string) error {
	params := map[string]any{"pattern": args[0]}
	if findKind != "" {
		params["kind"] = findKind
	}
	if findPath != "" {
		params["path"] = findPath
	}
	if findBody {
		params["body"] = true
	}
	if findDepth != 0 {
		params["depth"] = findDepth
	}
	if findExact {
		params["exact"] = true
	}
	return runCommand("find-symbol", params, "")
}
