package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleManifest = `
[[models]]
name = "app.Team"
table = "app_team"
auto_increment = true

[[models]]
name = "app.User"
table = "app_user"
auto_increment = true

[[models.references]]
field = "team"
target = "app.Team"
kind = "to_one"

[[models]]
name = "app.Task"
table = "app_task"
auto_increment = true

[[models.references]]
field = "owner"
target = "app.User"
kind = "to_one"

[[models.references]]
field = "watchers"
target = "app.User"
kind = "to_many"
`

func TestParse_ValidManifest(t *testing.T) {
	models, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if len(models) != 3 {
		t.Fatalf("expected 3 models, got %d", len(models))
	}

	team := models[0]
	if team.Name != "app.Team" {
		t.Errorf("expected first model app.Team, got %s", team.Name)
	}
	if team.PrimaryKey != "id" {
		t.Errorf("expected primary key to default to id, got %s", team.PrimaryKey)
	}
	if !team.AutoIncrement {
		t.Error("expected app.Team to be auto-increment")
	}

	task := models[2]
	if len(task.References) != 2 {
		t.Fatalf("expected 2 references on app.Task, got %d", len(task.References))
	}
	if task.References[0].Kind != ToOne {
		t.Errorf("expected to_one reference, got %s", task.References[0].Kind)
	}
}

func TestParse_ThroughTableDefaults(t *testing.T) {
	models, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	watchers := models[2].References[1]
	if watchers.Kind != ToMany {
		t.Fatalf("expected watchers to be to_many, got %s", watchers.Kind)
	}
	if watchers.ThroughTable != "app_task_watchers" {
		t.Errorf("expected through table app_task_watchers, got %s", watchers.ThroughTable)
	}
}

func TestParse_ExplicitThroughTable(t *testing.T) {
	manifest := `
[[models]]
name = "app.Task"
table = "app_task"

[[models.references]]
field = "watchers"
target = "app.User"
kind = "to_many"
through_table = "task_watcher_link"
`
	models, err := Parse([]byte(manifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if got := models[0].References[0].ThroughTable; got != "task_watcher_link" {
		t.Errorf("expected through table task_watcher_link, got %s", got)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		wantErr  string
	}{
		{
			name:     "empty manifest",
			manifest: ``,
			wantErr:  "defines no models",
		},
		{
			name: "missing name",
			manifest: `
[[models]]
table = "app_team"
`,
			wantErr: "missing a name",
		},
		{
			name: "missing table",
			manifest: `
[[models]]
name = "app.Team"
`,
			wantErr: "missing a table",
		},
		{
			name: "duplicate model",
			manifest: `
[[models]]
name = "app.Team"
table = "app_team"

[[models]]
name = "app.Team"
table = "app_team2"
`,
			wantErr: "duplicate model",
		},
		{
			name: "duplicate field",
			manifest: `
[[models]]
name = "app.User"
table = "app_user"

[[models.references]]
field = "team"
target = "app.Team"
kind = "to_one"

[[models.references]]
field = "team"
target = "app.Org"
kind = "to_one"
`,
			wantErr: "declares field team twice",
		},
		{
			name: "missing target",
			manifest: `
[[models]]
name = "app.User"
table = "app_user"

[[models.references]]
field = "team"
kind = "to_one"
`,
			wantErr: "has no target",
		},
		{
			name: "invalid kind",
			manifest: `
[[models]]
name = "app.User"
table = "app_user"

[[models.references]]
field = "team"
target = "app.Team"
kind = "belongs_to"
`,
			wantErr: "invalid kind",
		},
		{
			name: "through_table on to_one",
			manifest: `
[[models]]
name = "app.User"
table = "app_user"

[[models.references]]
field = "team"
target = "app.Team"
kind = "to_one"
through_table = "user_team"
`,
			wantErr: "only valid for to_many",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.manifest))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got: %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing manifest file")
	}
}

func TestLoad_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.toml")
	if err := os.WriteFile(path, []byte(sampleManifest), 0644); err != nil {
		t.Fatalf("failed to write manifest: %v", err)
	}

	models, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if len(models) != 3 {
		t.Errorf("expected 3 models, got %d", len(models))
	}
}

func TestIndex(t *testing.T) {
	models, err := Parse([]byte(sampleManifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	idx := Index(models)
	if len(idx) != 3 {
		t.Fatalf("expected 3 indexed models, got %d", len(idx))
	}
	if idx["app.User"].Table != "app_user" {
		t.Errorf("expected app.User table app_user, got %s", idx["app.User"].Table)
	}
}

func TestLinkTables_SortedByModelThenField(t *testing.T) {
	manifest := `
[[models]]
name = "app.Task"
table = "app_task"

[[models.references]]
field = "watchers"
target = "app.User"
kind = "to_many"

[[models.references]]
field = "labels"
target = "app.Label"
kind = "to_many"

[[models]]
name = "app.Group"
table = "app_group"

[[models.references]]
field = "members"
target = "app.User"
kind = "to_many"
`
	models, err := Parse([]byte(manifest))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	links := LinkTables(models)
	if len(links) != 3 {
		t.Fatalf("expected 3 link tables, got %d", len(links))
	}

	want := []string{"app_group_members", "app_task_labels", "app_task_watchers"}
	for i, link := range links {
		if link.Table != want[i] {
			t.Errorf("link %d: expected %s, got %s", i, want[i], link.Table)
		}
	}
}
