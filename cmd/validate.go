package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/dbporter/dbporter/internal/planner"
)

var validateCmd = &cobra.Command{
	Use:   "validate <plan-file>",
	Short: "Validate a migration plan file",
	Long: `Validate a migration plan JSON file against the dbporter plan schema
and check that the flat migration order matches the grouped order.`,
	Example: `  # Validate a plan file (text output)
  dbporter validate plan.json

  # Validate with JSON output for programmatic consumption
  dbporter validate --format json plan.json`,
	Args: cobra.ExactArgs(1),
	Run:  runValidate,
}

var validateFormat string

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVar(&validateFormat, "format", "text", "Output format: text or json")
}

// ValidationResult is the JSON shape emitted with --format json
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	File   string   `json:"file"`
	Models int      `json:"models,omitempty"`
	Groups int      `json:"groups,omitempty"`
	Errors []string `json:"errors,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) {
	path := args[0]

	plan, err := planner.Load(path)
	result := ValidationResult{Valid: err == nil, File: path}
	if err != nil {
		result.Errors = []string{err.Error()}
	} else {
		result.Models = plan.Models()
		result.Groups = len(plan.Groups)
	}

	if validateFormat == "json" {
		jsonBytes, marshalErr := json.MarshalIndent(result, "", "  ")
		if marshalErr != nil {
			log.Fatalf("Failed to marshal result: %v", marshalErr)
		}
		fmt.Println(string(jsonBytes))
		if !result.Valid {
			os.Exit(1)
		}
		return
	}

	if !result.Valid {
		fmt.Fprintln(os.Stderr, errorStyle.Render(fmt.Sprintf("✗ Plan validation failed: %s", path)))
		fmt.Fprintf(os.Stderr, "  %s\n", err.Error())
		os.Exit(1)
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("✓ Valid plan: %d models in %d groups", result.Models, result.Groups)))
	for _, warning := range plan.Warnings {
		fmt.Println(warningStyle.Render("⚠ " + warning))
	}
}
