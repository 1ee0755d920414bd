package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the oxcryptfs version",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("oxcryptfs %s (%s)\n", Version, Commit)
		return nil
	},
}
