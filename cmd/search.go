package cmd

import (
	"github.com/spf13/cobra"
)

var (
	searchPath  string
	searchGlob  string
	searchLines int
)

var searchCmd = &cobra.Command{
	Use:   "search <pattern>",
	Short: "Search the codebase for a regular expression",
	Long: `Search the codebase for a regular expression.

Example:
  navi search 'getCustomerBy\w+' --glob '*.php' --lines 2`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchPath, "path", "", "restrict the search to a file or directory")
	searchCmd.Flags().StringVar(&searchGlob, "glob", "", "restrict the search to files matching a glob")
	searchCmd.Flags().IntVar(&searchLines, "lines", 0, "context lines to include around each match")

	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	params := map[string]any{"pattern": args[0]}
	if searchPath != "" {
		params["path"] = searchPath
	}
	if searchGlob != "" {
		params["glob"] = searchGlob
	}
	if searchLines > 0 {
		params["lines"] = searchLines
	}
	return runCommand("search-pattern", params, "")
}
