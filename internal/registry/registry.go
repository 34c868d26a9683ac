package registry

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// ReferenceKind distinguishes how a reference is stored
type ReferenceKind string

const (
	// ToOne is a foreign-key column on the owning model
	ToOne ReferenceKind = "to_one"
	// ToMany is an association backed by a separate link table
	ToMany ReferenceKind = "to_many"
)

// Reference is a field on a model pointing at another model
type Reference struct {
	Field string `toml:"field"`
	// Target is the qualified name of the referenced model. A target
	// that is not itself a registered model is treated as external and
	// contributes no dependency edge.
	Target string        `toml:"target"`
	Kind   ReferenceKind `toml:"kind"`
	// ThroughTable backs a to_many reference; defaults to
	// <owner-table>_<field> when omitted
	ThroughTable string `toml:"through_table,omitempty"`
}

// Model describes one migratable record type, read from the model
// manifest at the start of a planning or execution run and never
// mutated afterward.
type Model struct {
	// Name is the qualified model name, e.g. "app.Team"
	Name  string `toml:"name"`
	Table string `toml:"table"`
	// PrimaryKey is the primary-key column name
	PrimaryKey string `toml:"primary_key"`
	// AutoIncrement marks an integer primary key backed by a sequence
	// or auto-increment counter
	AutoIncrement bool        `toml:"auto_increment"`
	References    []Reference `toml:"references,omitempty"`
}

// LinkTable is the association storage behind a to_many reference. It is
// copied as data but never ordered in the dependency graph.
type LinkTable struct {
	Model string `toml:"model"`
	Field string `toml:"field"`
	Table string `toml:"table"`
}

type manifest struct {
	Models []Model `toml:"models"`
}

// Load reads and validates a model manifest (models.toml)
func Load(path string) ([]Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read model manifest %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates manifest bytes
func Parse(data []byte) ([]Model, error) {
	var m manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse model manifest: %w", err)
	}
	if len(m.Models) == 0 {
		return nil, fmt.Errorf("model manifest defines no models")
	}

	seen := make(map[string]bool, len(m.Models))
	for i := range m.Models {
		model := &m.Models[i]
		if model.Name == "" {
			return nil, fmt.Errorf("model at index %d is missing a name", i)
		}
		if seen[model.Name] {
			return nil, fmt.Errorf("duplicate model %s", model.Name)
		}
		seen[model.Name] = true
		if model.Table == "" {
			return nil, fmt.Errorf("model %s is missing a table", model.Name)
		}
		if model.PrimaryKey == "" {
			model.PrimaryKey = "id"
		}

		fields := make(map[string]bool, len(model.References))
		for j := range model.References {
			ref := &model.References[j]
			if ref.Field == "" {
				return nil, fmt.Errorf("model %s has a reference with no field name", model.Name)
			}
			if fields[ref.Field] {
				return nil, fmt.Errorf("model %s declares field %s twice", model.Name, ref.Field)
			}
			fields[ref.Field] = true
			if ref.Target == "" {
				return nil, fmt.Errorf("model %s field %s has no target", model.Name, ref.Field)
			}
			switch ref.Kind {
			case ToOne:
				if ref.ThroughTable != "" {
					return nil, fmt.Errorf("model %s field %s: through_table is only valid for to_many references", model.Name, ref.Field)
				}
			case ToMany:
				if ref.ThroughTable == "" {
					ref.ThroughTable = model.Table + "_" + ref.Field
				}
			default:
				return nil, fmt.Errorf("model %s field %s has invalid kind %q (want to_one or to_many)", model.Name, ref.Field, ref.Kind)
			}
		}
	}

	return m.Models, nil
}

// Index builds a lookup of models by qualified name
func Index(models []Model) map[string]Model {
	idx := make(map[string]Model, len(models))
	for _, m := range models {
		idx[m.Name] = m
	}
	return idx
}

// LinkTables collects the link tables implied by to_many references,
// sorted by owning model then field
func LinkTables(models []Model) []LinkTable {
	var links []LinkTable
	for _, m := range models {
		for _, ref := range m.References {
			if ref.Kind == ToMany {
				links = append(links, LinkTable{
					Model: m.Name,
					Field: ref.Field,
					Table: ref.ThroughTable,
				})
			}
		}
	}
	sort.Slice(links, func(i, j int) bool {
		if links[i].Model != links[j].Model {
			return links[i].Model < links[j].Model
		}
		return links[i].Field < links[j].Field
	})
	return links
}
