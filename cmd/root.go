package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dbporter",
	Short: "dbporter migrates the full contents of one relational database into another.",
	Long: `dbporter migrates the full contents of one relational database into
another engine. It analyzes the dependency graph between record types to
produce a safe, grouped migration order, then executes that plan as a
four-phase batch operation: clean, copy, link tables, and sequence
resynchronization.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
