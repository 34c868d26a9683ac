package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbporter/dbporter/internal/wizard"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a new dbporter config",
	Long: `Walk through connection setup for the source and destination
databases and write dbporter.toml plus per-environment .env files.`,
	Run: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().Bool("force", false, "Overwrite an existing dbporter.toml file")
}

func runInit(cmd *cobra.Command, args []string) {
	force, _ := cmd.Flags().GetBool("force")
	if err := wizard.Run(force); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
