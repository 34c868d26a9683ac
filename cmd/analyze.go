package cmd

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbporter/dbporter/internal/config"
	"github.com/dbporter/dbporter/internal/planner"
	"github.com/dbporter/dbporter/internal/registry"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze model dependencies and generate a migration plan",
	Long: `Analyze the dependency graph between the registered record types and
generate a grouped migration plan. Each group contains the models whose
to-one references were all satisfied by earlier groups; link tables
behind to-many references are collected separately.

A cycle in the graph fails the analysis unless --ignore-cycles is set,
in which case the cyclic models are emitted as a final best-effort group
with a warning.`,
	Example: `  # Print the grouped migration order
  dbporter analyze --models models.toml

  # Write the plan for later execution
  dbporter analyze --models models.toml --output plan.json

  # Tolerate dependency cycles
  dbporter analyze --models models.toml --ignore-cycles --output plan.json`,
	Run: runAnalyze,
}

var (
	analyzeModels       string
	analyzeOutput       string
	analyzeIgnoreCycles bool
	analyzeFlat         bool
	analyzeEnvironment  string
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().StringVar(&analyzeModels, "models", "", "Path to the model manifest (models.toml)")
	analyzeCmd.Flags().StringVar(&analyzeOutput, "output", "", "Write the plan JSON to this file")
	analyzeCmd.Flags().BoolVar(&analyzeIgnoreCycles, "ignore-cycles", false, "Emit cyclic models as a final unordered group instead of failing")
	analyzeCmd.Flags().BoolVar(&analyzeFlat, "flat", false, "Print the flat migration order instead of groups")
	analyzeCmd.Flags().StringVar(&analyzeEnvironment, "environment", "", "Environment from dbporter.toml providing the models path")
}

func runAnalyze(cmd *cobra.Command, args []string) {
	modelsPath := analyzeModels
	if modelsPath == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		env, err := config.ResolveEnvironment(cfg, analyzeEnvironment)
		if err != nil {
			log.Fatalf("Failed to resolve environment: %v", err)
		}
		modelsPath = env.ModelsPath
	}
	if modelsPath == "" {
		log.Fatal("No model manifest: pass --models or set models_path in dbporter.toml")
	}

	models, err := registry.Load(modelsPath)
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}

	plan, err := planner.Generate(models, analyzeIgnoreCycles)
	if err != nil {
		var cycleErr *planner.CycleError
		if errors.As(err, &cycleErr) {
			fmt.Println(errorStyle.Render("✗ Circular dependency detected"))
			fmt.Println("  The following models could not be ordered:")
			for _, name := range cycleErr.Names {
				fmt.Printf("    • %s\n", name)
			}
			fmt.Println(mutedStyle.Render("  Re-run with --ignore-cycles to emit them as a final unordered group."))
		}
		log.Fatalf("Failed to generate plan: %v", err)
	}

	printPlan(plan)

	if analyzeOutput != "" {
		if err := plan.Save(analyzeOutput); err != nil {
			log.Fatalf("Failed to save plan: %v", err)
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("✓ Plan written to %s", analyzeOutput)))
	}
}

func printPlan(plan *planner.Plan) {
	fmt.Println(headerStyle.Render(fmt.Sprintf("Migration plan: %d models in %d groups", plan.Models(), len(plan.Groups))))

	if analyzeFlat {
		for i, name := range plan.FlatOrder {
			fmt.Printf("  %3d. %s\n", i+1, name)
		}
	} else {
		for i, group := range plan.Groups {
			fmt.Printf("\n%s\n", headerStyle.Render(fmt.Sprintf("Group %d", i+1)))
			for _, entry := range group {
				if len(entry.Dependencies) == 0 {
					fmt.Printf("  %s %s\n", entry.Model, mutedStyle.Render("(no dependencies)"))
				} else {
					fmt.Printf("  %s %s\n", entry.Model, mutedStyle.Render("← "+strings.Join(entry.Dependencies, ", ")))
				}
			}
		}
	}

	if len(plan.LinkTables) > 0 {
		fmt.Printf("\n%s\n", headerStyle.Render(fmt.Sprintf("Link tables (%d)", len(plan.LinkTables))))
		for _, table := range plan.LinkTables {
			fmt.Printf("  %s\n", table)
		}
	}

	for _, warning := range plan.Warnings {
		fmt.Println(warningStyle.Render("⚠ " + warning))
	}
}
