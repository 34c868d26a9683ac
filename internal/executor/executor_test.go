package executor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/dbporter/dbporter/database"
	"github.com/dbporter/dbporter/database/sqlite"
	"github.com/dbporter/dbporter/internal/planner"
	"github.com/dbporter/dbporter/internal/registry"
)

func openTestDB(t *testing.T, path string) Conn {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return Conn{DB: db, Driver: sqlite.NewDriver()}
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec failed: %v\nquery: %s", err, query)
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count failed for %s: %v", table, err)
	}
	return n
}

func teamUserModels() []registry.Model {
	return []registry.Model{
		{Name: "app.Team", Table: "app_team", PrimaryKey: "id", AutoIncrement: true},
		{Name: "app.User", Table: "app_user", PrimaryKey: "id", AutoIncrement: true,
			References: []registry.Reference{
				{Field: "team", Target: "app.Team", Kind: registry.ToOne},
				{Field: "groups", Target: "app.Team", Kind: registry.ToMany, ThroughTable: "app_user_groups"},
			}},
	}
}

func teamUserPlan(t *testing.T) *planner.Plan {
	t.Helper()
	plan, err := planner.Generate(teamUserModels(), false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	return plan
}

const teamUserSchema = `
CREATE TABLE app_team (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  name TEXT NOT NULL
);
CREATE TABLE app_user (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  email TEXT NOT NULL,
  team_id INTEGER REFERENCES app_team(id)
);
CREATE TABLE app_user_groups (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  user_id INTEGER NOT NULL,
  team_id INTEGER NOT NULL
);
`

func TestExecute_CopiesAllTables(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, teamUserSchema)
	mustExec(t, dest.DB, teamUserSchema)

	mustExec(t, source.DB, "INSERT INTO app_team (id, name) VALUES (1, 'core'), (2, 'infra')")
	mustExec(t, source.DB, "INSERT INTO app_user (id, email, team_id) VALUES (1, 'a@example.com', 1), (2, 'b@example.com', 2), (3, 'c@example.com', 1)")
	mustExec(t, source.DB, "INSERT INTO app_user_groups (id, user_id, team_id) VALUES (1, 1, 2), (2, 3, 2)")

	// Stale destination rows must be gone after the run
	mustExec(t, dest.DB, "INSERT INTO app_team (id, name) VALUES (99, 'stale')")
	mustExec(t, dest.DB, "INSERT INTO app_user_groups (id, user_id, team_id) VALUES (99, 99, 99)")

	report, err := Execute(context.Background(), teamUserPlan(t), teamUserModels(), source, dest, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if got := countRows(t, dest.DB, "app_team"); got != 2 {
		t.Errorf("expected 2 teams in destination, got %d", got)
	}
	if got := countRows(t, dest.DB, "app_user"); got != 3 {
		t.Errorf("expected 3 users in destination, got %d", got)
	}
	if got := countRows(t, dest.DB, "app_user_groups"); got != 2 {
		t.Errorf("expected 2 link rows in destination, got %d", got)
	}

	var stale int
	if err := dest.DB.QueryRow("SELECT COUNT(*) FROM app_team WHERE id = 99").Scan(&stale); err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if stale != 0 {
		t.Error("stale destination row survived the clean phase")
	}

	if report.TotalRows() != 5 {
		t.Errorf("expected 5 primary rows in report, got %d", report.TotalRows())
	}
	if report.Migrated() != 2 {
		t.Errorf("expected 2 migrated models, got %d", report.Migrated())
	}
	if len(report.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", report.Warnings)
	}
	if len(report.LinkTables) != 1 || report.LinkTables[0].Rows != 2 {
		t.Errorf("unexpected link table report: %+v", report.LinkTables)
	}
}

func TestExecute_PreservesPrimaryKeys(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, teamUserSchema)
	mustExec(t, dest.DB, teamUserSchema)

	// Sparse keys must survive as-is, not be renumbered
	mustExec(t, source.DB, "INSERT INTO app_team (id, name) VALUES (7, 'seven'), (42, 'answer')")

	if _, err := Execute(context.Background(), teamUserPlan(t), teamUserModels(), source, dest, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	var name string
	if err := dest.DB.QueryRow("SELECT name FROM app_team WHERE id = 42").Scan(&name); err != nil {
		t.Fatalf("expected row with original key 42: %v", err)
	}
	if name != "answer" {
		t.Errorf("expected name answer, got %s", name)
	}
}

func TestExecute_ResyncsSequences(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, teamUserSchema)
	mustExec(t, dest.DB, teamUserSchema)

	mustExec(t, source.DB, "INSERT INTO app_team (id, name) VALUES (10, 'alpha')")

	if _, err := Execute(context.Background(), teamUserPlan(t), teamUserModels(), source, dest, nil); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// The next generated key must land past the migrated maximum
	res, err := dest.DB.Exec("INSERT INTO app_team (name) VALUES ('beta')")
	if err != nil {
		t.Fatalf("insert after migration failed: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("LastInsertId failed: %v", err)
	}
	if id != 11 {
		t.Errorf("expected next generated key 11, got %d", id)
	}
}

func TestExecute_MissingDestinationTableIsWarning(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, teamUserSchema)
	// Destination is missing app_user and the link table
	mustExec(t, dest.DB, `CREATE TABLE app_team (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`)

	mustExec(t, source.DB, "INSERT INTO app_team (id, name) VALUES (1, 'core')")
	mustExec(t, source.DB, "INSERT INTO app_user (id, email, team_id) VALUES (1, 'a@example.com', 1)")

	report, err := Execute(context.Background(), teamUserPlan(t), teamUserModels(), source, dest, nil)
	if err != nil {
		t.Fatalf("missing destination table must not abort the run: %v", err)
	}

	if got := countRows(t, dest.DB, "app_team"); got != 1 {
		t.Errorf("expected app_team to still migrate, got %d rows", got)
	}
	if report.Skipped() != 1 {
		t.Errorf("expected 1 skipped model, got %d", report.Skipped())
	}
	if len(report.Warnings) == 0 {
		t.Fatal("expected warnings for the missing tables")
	}
	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "app_user") && strings.Contains(w, "not found in destination") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning naming app_user, got %v", report.Warnings)
	}
}

func TestExecute_MissingSourceTableIsWarning(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	// Source is missing app_user and the link table
	mustExec(t, source.DB, `CREATE TABLE app_team (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL)`)
	mustExec(t, dest.DB, teamUserSchema)

	mustExec(t, source.DB, "INSERT INTO app_team (id, name) VALUES (1, 'core')")
	// Pre-existing destination rows in a table absent from the source are
	// still cleaned in phase 1
	mustExec(t, dest.DB, "INSERT INTO app_user (id, email, team_id) VALUES (50, 'stale@example.com', 1)")

	report, err := Execute(context.Background(), teamUserPlan(t), teamUserModels(), source, dest, nil)
	if err != nil {
		t.Fatalf("missing source table must not abort the run: %v", err)
	}

	if got := countRows(t, dest.DB, "app_user"); got != 0 {
		t.Errorf("expected app_user to be cleaned even though source lacks it, got %d rows", got)
	}
	if got := countRows(t, dest.DB, "app_team"); got != 1 {
		t.Errorf("expected app_team to migrate, got %d rows", got)
	}
	if report.Skipped() != 1 {
		t.Errorf("expected 1 skipped model, got %d", report.Skipped())
	}
}

func TestExecute_EmptySourceTables(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, teamUserSchema)
	mustExec(t, dest.DB, teamUserSchema)

	report, err := Execute(context.Background(), teamUserPlan(t), teamUserModels(), source, dest, nil)
	if err != nil {
		t.Fatalf("Execute failed on empty tables: %v", err)
	}
	if report.TotalRows() != 0 {
		t.Errorf("expected 0 rows copied, got %d", report.TotalRows())
	}
	if report.Migrated() != 2 {
		t.Errorf("expected both models to complete, got %d", report.Migrated())
	}
	if len(report.Warnings) != 0 {
		t.Errorf("expected no warnings, got %v", report.Warnings)
	}
}

func TestExecute_ProgressEvents(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, teamUserSchema)
	mustExec(t, dest.DB, teamUserSchema)
	mustExec(t, source.DB, "INSERT INTO app_team (id, name) VALUES (1, 'core')")

	var phases []string
	progress := func(severity Severity, message string) {
		if severity != SeverityInfo {
			t.Errorf("unexpected %s event: %s", severity, message)
		}
		if strings.HasPrefix(message, "phase ") {
			phases = append(phases, message)
		}
	}

	if _, err := Execute(context.Background(), teamUserPlan(t), teamUserModels(), source, dest, progress); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(phases) != 4 {
		t.Errorf("expected 4 phase announcements, got %d: %v", len(phases), phases)
	}
}

func TestExecute_PlanModelNotInManifest(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	plan := &planner.Plan{
		Groups:    [][]planner.PlanEntry{{{Model: "app.Ghost", Dependencies: []string{}}}},
		FlatOrder: []string{"app.Ghost"},
	}

	_, err := Execute(context.Background(), plan, teamUserModels(), source, dest, nil)
	if err == nil {
		t.Fatal("expected error for plan model missing from the manifest")
	}
	if !strings.Contains(err.Error(), "app.Ghost") {
		t.Errorf("expected error to name the model, got: %v", err)
	}
}

func TestExecute_WideTableStaysUnderParameterLimit(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	// 41 columns × a 1000-row batch would bind 41000 parameters, past
	// SQLite's 32766 cap; the copy must split batches by width instead
	const extraCols = 40
	var cols []string
	for i := 0; i < extraCols; i++ {
		cols = append(cols, fmt.Sprintf("c%02d TEXT", i))
	}
	schema := fmt.Sprintf("CREATE TABLE wide (id INTEGER PRIMARY KEY, %s)", strings.Join(cols, ", "))
	mustExec(t, source.DB, schema)
	mustExec(t, dest.DB, schema)

	tx, err := source.DB.Begin()
	if err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", extraCols+1), ", ")
	stmt, err := tx.Prepare("INSERT INTO wide VALUES (" + placeholders + ")")
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	for i := 1; i <= 1000; i++ {
		args := make([]any, extraCols+1)
		args[0] = i
		for j := 1; j <= extraCols; j++ {
			args[j] = fmt.Sprintf("v%d", j)
		}
		if _, err := stmt.Exec(args...); err != nil {
			t.Fatalf("seed insert failed: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit failed: %v", err)
	}

	models := []registry.Model{{Name: "app.Wide", Table: "wide", PrimaryKey: "id"}}
	plan, err := planner.Generate(models, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	report, err := Execute(context.Background(), plan, models, source, dest, nil)
	if err != nil {
		t.Fatalf("Execute failed on wide table: %v", err)
	}
	if report.TotalRows() != 1000 {
		t.Errorf("expected 1000 rows in report, got %d", report.TotalRows())
	}
	if got := countRows(t, dest.DB, "wide"); got != 1000 {
		t.Errorf("expected all 1000 rows at destination, got %d", got)
	}
}

// integrityRecorder wraps a driver and records every enforcement toggle
type integrityRecorder struct {
	database.Driver
	states []bool
}

func (r *integrityRecorder) SetIntegrityEnforcement(ctx context.Context, db database.DBTX, enabled bool) error {
	r.states = append(r.states, enabled)
	return r.Driver.SetIntegrityEnforcement(ctx, db, enabled)
}

func TestExecute_WriteFailureAbortsAndRestoresIntegrity(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, "CREATE TABLE app_team (id INTEGER PRIMARY KEY, name TEXT NOT NULL)")
	// The destination table exists but rejects the source data
	mustExec(t, dest.DB, "CREATE TABLE app_team (id INTEGER PRIMARY KEY, name TEXT NOT NULL CHECK (length(name) <= 2))")

	mustExec(t, source.DB, "INSERT INTO app_team (id, name) VALUES (1, 'much-too-long')")

	recorder := &integrityRecorder{Driver: dest.Driver}
	dest.Driver = recorder

	models := []registry.Model{{Name: "app.Team", Table: "app_team", PrimaryKey: "id"}}
	plan, err := planner.Generate(models, false)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	report, err := Execute(context.Background(), plan, models, source, dest, nil)
	if err == nil {
		t.Fatal("expected a destination write failure to abort the run")
	}

	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("expected *FatalError, got %T: %v", err, err)
	}
	if fatal.Phase != PhaseCopy {
		t.Errorf("expected abort in copy phase, got %s", fatal.Phase)
	}
	if fatal.Model != "app.Team" {
		t.Errorf("expected abort at app.Team, got %s", fatal.Model)
	}

	if len(report.Models) != 1 || !report.Models[0].Failed {
		t.Errorf("expected app.Team to be reported as failed, got %+v", report.Models)
	}

	// Enforcement must be disabled once and restored exactly once, even
	// though the run aborted mid-phase
	if len(recorder.states) != 2 || recorder.states[0] != false || recorder.states[1] != true {
		t.Errorf("expected enforcement toggles [disable, restore], got %v", recorder.states)
	}
}

func TestExecute_StaleLinkTableIsWarning(t *testing.T) {
	dir := t.TempDir()
	source := openTestDB(t, filepath.Join(dir, "source.db"))
	dest := openTestDB(t, filepath.Join(dir, "dest.db"))

	mustExec(t, source.DB, "CREATE TABLE app_team (id INTEGER PRIMARY KEY, name TEXT)")
	mustExec(t, dest.DB, "CREATE TABLE app_team (id INTEGER PRIMARY KEY, name TEXT)")

	// A plan generated from an older manifest still lists a link table
	// the current manifest has no to-many reference for
	plan := &planner.Plan{
		Groups:     [][]planner.PlanEntry{{{Model: "app.Team", Dependencies: []string{}}}},
		FlatOrder:  []string{"app.Team"},
		LinkTables: []string{"app_team_members"},
	}
	models := []registry.Model{{Name: "app.Team", Table: "app_team", PrimaryKey: "id"}}

	report, err := Execute(context.Background(), plan, models, source, dest, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	found := false
	for _, w := range report.Warnings {
		if strings.Contains(w, "app_team_members") && strings.Contains(w, "no to-many reference") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a warning naming the unaccounted link table, got %v", report.Warnings)
	}
}

func TestOpen_SQLitePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")

	conn, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer func() { _ = conn.DB.Close() }()

	if conn.Driver.Name() != "sqlite" {
		t.Errorf("expected sqlite driver, got %s", conn.Driver.Name())
	}
}

func TestNewDriver(t *testing.T) {
	tests := []struct {
		databaseType string
		want         string
	}{
		{"postgres", "postgres"},
		{"postgresql", "postgres"},
		{"mysql", "mysql"},
		{"mariadb", "mysql"},
		{"sqlite", "sqlite"},
		{"sqlite3", "sqlite"},
		{"libsql", "sqlite"},
	}
	for _, tt := range tests {
		driver, err := NewDriver(tt.databaseType)
		if err != nil {
			t.Errorf("NewDriver(%s) failed: %v", tt.databaseType, err)
			continue
		}
		if driver.Name() != tt.want {
			t.Errorf("NewDriver(%s): expected %s, got %s", tt.databaseType, tt.want, driver.Name())
		}
	}

	if _, err := NewDriver("oracle"); err == nil {
		t.Error("expected error for unsupported driver")
	}
}
