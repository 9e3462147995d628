package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pders01/navi/internal/backend"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the navi version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("navi %s\n", backend.Version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
