package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// planSchema validates serialized plan files before decoding. Plans may
// be edited or generated out-of-band, so structure is checked up front
// rather than discovered midway through a destructive run.
const planSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "title": "dbporter migration plan",
  "type": "object",
  "required": ["grouped_migration_order", "migration_order", "m2m_through_models", "warnings"],
  "additionalProperties": false,
  "properties": {
    "grouped_migration_order": {
      "type": "array",
      "items": {
        "type": "array",
        "items": {
          "type": "object",
          "required": ["model", "dependencies"],
          "additionalProperties": false,
          "properties": {
            "model": {"type": "string", "minLength": 1},
            "dependencies": {
              "type": "array",
              "items": {"type": "string", "minLength": 1}
            }
          }
        }
      }
    },
    "migration_order": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "m2m_through_models": {
      "type": "array",
      "items": {"type": "string", "minLength": 1}
    },
    "warnings": {
      "type": "array",
      "items": {"type": "string"}
    }
  }
}`

// Marshal renders the plan as indented JSON. Group members, dependency
// lists, and link tables are already name-sorted, so marshaling the same
// plan twice yields byte-identical output.
func (p *Plan) Marshal() ([]byte, error) {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal plan: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the plan to a JSON file
func (p *Plan) Save(path string) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write plan to %s: %w", path, err)
	}
	return nil
}

// Load reads a plan file, validates it against the plan schema, and
// decodes it. Consistency between the grouped order and the flat order
// is also verified.
func Load(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}
	return Unmarshal(data)
}

// Unmarshal validates and decodes plan bytes
func Unmarshal(data []byte) (*Plan, error) {
	if err := validatePlanJSON(data); err != nil {
		return nil, err
	}

	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan: %w", err)
	}

	// The flat order must be exactly the concatenation of the groups
	var flattened []string
	for _, group := range plan.Groups {
		for _, entry := range group {
			flattened = append(flattened, entry.Model)
		}
	}
	if len(flattened) != len(plan.FlatOrder) {
		return nil, fmt.Errorf("plan migration_order lists %d models but grouped_migration_order contains %d", len(plan.FlatOrder), len(flattened))
	}
	for i, name := range flattened {
		if plan.FlatOrder[i] != name {
			return nil, fmt.Errorf("plan migration_order diverges from grouped_migration_order at position %d (%s vs %s)", i, plan.FlatOrder[i], name)
		}
	}

	return &plan, nil
}

func validatePlanJSON(data []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(planSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("failed to validate plan: %w", err)
	}
	if !result.Valid() {
		var issues []string
		for _, desc := range result.Errors() {
			issues = append(issues, desc.String())
		}
		return fmt.Errorf("invalid plan file:\n  %s", strings.Join(issues, "\n  "))
	}
	return nil
}
