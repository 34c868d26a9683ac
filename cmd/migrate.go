package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dbporter/dbporter/internal/config"
	"github.com/dbporter/dbporter/internal/executor"
	"github.com/dbporter/dbporter/internal/planner"
	"github.com/dbporter/dbporter/internal/registry"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <plan-file>",
	Short: "Execute a migration plan against the source and destination databases",
	Long: `Execute a previously generated migration plan. The destination is
wiped table by table in reverse dependency order, then every record is
copied from the source in plan order, followed by link tables and a
primary-key sequence resynchronization.

The destination database is cleaned destructively. A failed run is
recovered by re-running: the clean phase starts every run from scratch.`,
	Example: `  # Migrate using the default environment from dbporter.toml
  dbporter migrate plan.json

  # Pick an environment and skip the confirmation prompt
  dbporter migrate plan.json --environment staging --yes

  # Show what would be migrated without touching anything
  dbporter migrate plan.json --dry-run`,
	Args: cobra.ExactArgs(1),
	Run:  runMigrate,
}

var (
	migrateEnvironment string
	migrateModels      string
	migrateDryRun      bool
	migrateYes         bool
)

func init() {
	rootCmd.AddCommand(migrateCmd)

	migrateCmd.Flags().StringVar(&migrateEnvironment, "environment", "", "Environment from dbporter.toml providing the connections")
	migrateCmd.Flags().StringVar(&migrateModels, "models", "", "Path to the model manifest (overrides the environment)")
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "Print the migration order without touching either database")
	migrateCmd.Flags().BoolVarP(&migrateYes, "yes", "y", false, "Skip the destructive-operation confirmation prompt")
}

func runMigrate(cmd *cobra.Command, args []string) {
	planPath := args[0]

	plan, err := planner.Load(planPath)
	if err != nil {
		log.Fatalf("Failed to load plan: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	env, err := config.ResolveEnvironment(cfg, migrateEnvironment)
	if err != nil {
		log.Fatalf("Failed to resolve environment: %v", err)
	}
	if err := env.Validate(); err != nil {
		log.Fatalf("Invalid environment: %v", err)
	}

	modelsPath := migrateModels
	if modelsPath == "" {
		modelsPath = env.ModelsPath
	}
	if modelsPath == "" {
		log.Fatal("No model manifest: pass --models or set models_path in dbporter.toml")
	}
	models, err := registry.Load(modelsPath)
	if err != nil {
		log.Fatalf("Failed to load models: %v", err)
	}

	fmt.Println(headerStyle.Render(fmt.Sprintf("Migration: %d models, %d link tables", plan.Models(), len(plan.LinkTables))))
	fmt.Printf("  environment: %s\n", env.Name)
	fmt.Printf("  source:      %s\n", redactURL(env.SourceURL))
	fmt.Printf("  destination: %s\n", redactURL(env.DestinationURL))

	if migrateDryRun {
		fmt.Println(mutedStyle.Render("\nDry run: no changes will be made. Migration order:"))
		for i, name := range plan.FlatOrder {
			fmt.Printf("  %3d. %s\n", i+1, name)
		}
		return
	}

	if !migrateYes {
		fmt.Println(warningStyle.Render("\nThis wipes every planned table in the destination database."))
		fmt.Print("Proceed? (yes/no): ")
		var response string
		if _, err := fmt.Scanln(&response); err != nil {
			log.Fatalf("Failed to read input: %v", err)
		}
		if response != "yes" && response != "y" {
			fmt.Println("Aborted.")
			return
		}
	}

	ctx := context.Background()

	source, err := executor.Open(ctx, env.SourceURL)
	if err != nil {
		log.Fatalf("Failed to open source: %v", err)
	}
	defer func() { _ = source.DB.Close() }()

	dest, err := executor.Open(ctx, env.DestinationURL)
	if err != nil {
		log.Fatalf("Failed to open destination: %v", err)
	}
	defer func() { _ = dest.DB.Close() }()

	report, err := executor.Execute(ctx, plan, models, source, dest, printProgress)
	if report != nil {
		printReport(report)
	}
	if err != nil {
		var fatal *executor.FatalError
		if errors.As(err, &fatal) {
			if fatal.Model != "" {
				fmt.Println(errorStyle.Render(fmt.Sprintf("\n✗ Migration aborted during the %s phase at %s.", fatal.Phase, fatal.Model)))
			} else {
				fmt.Println(errorStyle.Render(fmt.Sprintf("\n✗ Migration aborted during the %s phase.", fatal.Phase)))
			}
			fmt.Println(mutedStyle.Render("  Integrity enforcement has been restored. Re-running will re-clean and retry from the start."))
		}
		log.Fatalf("Migration failed: %v", err)
	}

	fmt.Println(successStyle.Render("\n✓ Migration complete"))
}

func printProgress(severity executor.Severity, message string) {
	switch severity {
	case executor.SeverityWarning:
		fmt.Println(warningStyle.Render("⚠ " + message))
	case executor.SeverityError:
		fmt.Println(errorStyle.Render("✗ " + message))
	default:
		fmt.Println("  " + message)
	}
}

func printReport(report *executor.RunReport) {
	fmt.Printf("\n%s\n", headerStyle.Render("Run report"))
	fmt.Printf("  models migrated: %d (%d rows)\n", report.Migrated(), report.TotalRows())
	if skipped := report.Skipped(); skipped > 0 {
		fmt.Printf("  models skipped:  %d\n", skipped)
	}
	for _, link := range report.LinkTables {
		if !link.Skipped {
			fmt.Printf("  link table %s: %d rows\n", link.Table, link.Rows)
		}
	}
	if len(report.Warnings) > 0 {
		fmt.Printf("  warnings: %d\n", len(report.Warnings))
	}
}

// redactURL hides the password portion of a connection URL for display
func redactURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at == -1 || scheme == -1 || at < scheme {
		return url
	}
	creds := url[scheme+3 : at]
	if colon := strings.Index(creds, ":"); colon != -1 {
		return url[:scheme+3] + creds[:colon] + ":••••" + url[at:]
	}
	return url
}
